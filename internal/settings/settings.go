// Package settings reads athlete calibration and records body-mass write-backs.
package settings

import (
	"context"
	"sync"
	"time"
)

// Athlete holds the calibration constants used by the TSS estimator.
type Athlete struct {
	FTP        float64
	LTHR       float64
	BodyMassKg *float64
	BodyMassAt time.Time
}

// Provider supplies athlete settings.
type Provider interface {
	Athlete(ctx context.Context) (Athlete, error)
	// RecordBodyMass stores kg observed at at unless a newer observation exists.
	RecordBodyMass(ctx context.Context, kg float64, at time.Time) error
}

// Static is an in-process Provider seeded from configuration.
type Static struct {
	mu      sync.RWMutex
	athlete Athlete
}

// NewStatic builds a Static provider.
func NewStatic(ftp, lthr float64) *Static {
	return &Static{athlete: Athlete{FTP: ftp, LTHR: lthr}}
}

func (s *Static) Athlete(ctx context.Context) (Athlete, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.athlete
	if a.BodyMassKg != nil {
		v := *a.BodyMassKg
		a.BodyMassKg = &v
	}
	return a, nil
}

func (s *Static) RecordBodyMass(ctx context.Context, kg float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.athlete.BodyMassKg != nil && at.Before(s.athlete.BodyMassAt) {
		return nil
	}
	s.athlete.BodyMassKg = &kg
	s.athlete.BodyMassAt = at
	return nil
}
