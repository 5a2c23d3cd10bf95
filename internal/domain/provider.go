package domain

import (
	"fmt"
	"strings"
)

// Provider identifies an upstream tracker.
type Provider string

const (
	ProviderHealthStore   Provider = "health_store"
	ProviderWearableRelay Provider = "wearable_relay"
	ProviderActivityAPI   Provider = "activity_api"
)

// Providers lists every known provider in declaration order.
func Providers() []Provider {
	return []Provider{ProviderHealthStore, ProviderWearableRelay, ProviderActivityAPI}
}

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	for _, known := range Providers() {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProvider resolves a configured provider name. Matching is exact after
// trimming and lower-casing.
func ParseProvider(raw string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", raw)
	}
	return p, nil
}
