package syncer

import (
	"context"
	"errors"
	"log"
	"time"

	"example.com/wellness/internal/domain"
)

// Runner runs a sync pass over local days from..to inclusive.
type Runner interface {
	Sync(ctx context.Context, from, to time.Time) (Result, error)
}

// Scheduler runs a pass over the trailing lookback window on every tick.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	lookback int
	loc      *time.Location
	now      func() time.Time
	logger   *log.Logger

	shutdownComplete chan struct{}
}

// NewScheduler builds a Scheduler; lookbackDays includes today.
func NewScheduler(runner Runner, interval time.Duration, lookbackDays int, loc *time.Location, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[scheduler] ", log.LstdFlags|log.Lshortfile)
	}
	return &Scheduler{
		runner:           runner,
		interval:         interval,
		lookback:         lookbackDays,
		loc:              loc,
		now:              time.Now,
		logger:           logger,
		shutdownComplete: make(chan struct{}),
	}
}

// Window returns the days the next pass covers.
func (s *Scheduler) Window() (time.Time, time.Time) {
	to := domain.StartOfDay(s.now(), s.loc)
	return to.AddDate(0, 0, -(s.lookback - 1)), to
}

// Start runs a pass immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.shutdownComplete)
	}()

	for {
		from, to := s.Window()
		if res, err := s.runner.Sync(ctx, from, to); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("scheduled sync failed: %v", err)
		} else if res.Skipped {
			s.logger.Printf("scheduled sync skipped: pass already running")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until the scheduler stops.
func (s *Scheduler) Wait() {
	<-s.shutdownComplete
}
