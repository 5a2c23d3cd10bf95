// Package domain defines the canonical wellness records shared by the sync pipeline.
package domain

import "errors"

var (
	// ErrLinkageRequired is returned when a provider has no linked athlete identity.
	// Callers must treat it differently from an empty result.
	ErrLinkageRequired = errors.New("provider authentication or linkage required")
	// ErrInvalidSample flags a sample that cannot be attributed to a metric day.
	ErrInvalidSample = errors.New("invalid sample")
	// ErrNotFound signals a missing daily record.
	ErrNotFound = errors.New("record not found")
)
