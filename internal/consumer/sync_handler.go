package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
	"example.com/wellness/internal/syncer"
)

// Syncer runs a sync pass over local days from..to inclusive.
type Syncer interface {
	Sync(ctx context.Context, from, to time.Time) (syncer.Result, error)
}

// SyncHandler runs a sync pass for each wellness.sync_requested event.
type SyncHandler struct {
	syncer   Syncer
	lookback int
	loc      *time.Location
	now      func() time.Time
	logger   *log.Logger
}

// NewSyncHandler builds a SyncHandler. Requests without a range cover the
// last lookbackDays local days including today.
func NewSyncHandler(s Syncer, lookbackDays int, loc *time.Location, logger *log.Logger) *SyncHandler {
	if loc == nil {
		loc = time.UTC
	}
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile)
	}
	return &SyncHandler{syncer: s, lookback: lookbackDays, loc: loc, now: time.Now, logger: logger}
}

// Handle decodes the request and runs the pass. A pass skipped because one is
// already running counts as handled.
func (h *SyncHandler) Handle(ctx context.Context, msg Message) error {
	var req events.SyncRequested
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return fmt.Errorf("decode sync request: %w", err)
	}
	from, to, err := h.window(req)
	if err != nil {
		return err
	}

	res, err := h.syncer.Sync(ctx, from, to)
	if err != nil {
		return fmt.Errorf("sync %s..%s: %w", domain.DayKey(from), domain.DayKey(to), err)
	}
	if res.Skipped {
		h.logger.Printf("sync request at offset %d skipped: pass already running", msg.Offset)
		return nil
	}
	h.logger.Printf("sync request (%s) handled by pass %s: %d days", req.Reason, res.PassID, len(res.Days))
	return nil
}

func (h *SyncHandler) window(req events.SyncRequested) (time.Time, time.Time, error) {
	to := domain.StartOfDay(h.now(), h.loc)
	from := to.AddDate(0, 0, -(h.lookback - 1))
	var err error
	if req.To != "" {
		if to, err = domain.ParseDay(req.To, h.loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("sync request to: %w", err)
		}
		if req.From == "" {
			from = to.AddDate(0, 0, -(h.lookback - 1))
		}
	}
	if req.From != "" {
		if from, err = domain.ParseDay(req.From, h.loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("sync request from: %w", err)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("sync request range %s..%s is reversed", domain.DayKey(from), domain.DayKey(to))
	}
	return from, to, nil
}
