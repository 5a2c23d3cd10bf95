// Package events defines the sync event payloads exchanged over Kafka.
package events

import "time"

// Event type header values.
const (
	TypeDataUpdated   = "wellness.data_updated"
	TypeSyncRequested = "wellness.sync_requested"
)

// DataUpdated is emitted once after a sync pass that wrote data.
type DataUpdated struct {
	PassID     string    `json:"pass_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Days       []string  `json:"days"`
	LoadDays   []string  `json:"load_days,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SyncRequested asks the service to run a sync pass over [From, To]. Dates are
// YYYY-MM-DD; empty values default to the configured lookback window.
type SyncRequested struct {
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
