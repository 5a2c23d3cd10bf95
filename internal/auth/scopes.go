package auth

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Scope names one API permission.
type Scope string

// Scopes understood by the API. ScopeAdmin grants every other scope.
const (
	ScopeMetricsRead Scope = "metrics:read"
	ScopeSyncWrite   Scope = "sync:write"
	ScopeAdmin       Scope = "wellness:admin"
)

// scopeList decodes the "scopes" claim from either a space-separated string
// or a JSON array. Entries are trimmed, deduplicated and sorted.
type scopeList []Scope

func (l *scopeList) UnmarshalJSON(b []byte) error {
	var raw []string
	switch {
	case string(b) == "null":
	case len(b) > 0 && b[0] == '"':
		var joined string
		if err := json.Unmarshal(b, &joined); err != nil {
			return err
		}
		raw = strings.Fields(joined)
	default:
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("scopes: %w", err)
		}
	}

	out := make(scopeList, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, Scope(s))
		}
	}
	slices.Sort(out)
	*l = slices.Compact(out)
	return nil
}
