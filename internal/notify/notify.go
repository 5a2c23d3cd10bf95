// Package notify tells downstream observers that new data is available.
package notify

import (
	"context"
	"errors"
	"slices"
	"sync"

	"example.com/wellness/internal/events"
)

// Notifier delivers a single data-updated notification per successful sync.
type Notifier interface {
	DataUpdated(ctx context.Context, evt events.DataUpdated) error
}

// Noop discards notifications.
type Noop struct{}

// DataUpdated does nothing.
func (Noop) DataUpdated(context.Context, events.DataUpdated) error { return nil }

// Observers fans a notification out to in-process subscribers.
type Observers struct {
	mu   sync.RWMutex
	subs []func(events.DataUpdated)
}

// Subscribe registers fn for future notifications.
func (o *Observers) Subscribe(fn func(events.DataUpdated)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, fn)
}

// DataUpdated invokes every subscriber synchronously.
func (o *Observers) DataUpdated(ctx context.Context, evt events.DataUpdated) error {
	o.mu.RLock()
	subs := slices.Clone(o.subs)
	o.mu.RUnlock()
	for _, fn := range subs {
		fn(evt)
	}
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

// DataUpdated calls each notifier in order.
func (m Multi) DataUpdated(ctx context.Context, evt events.DataUpdated) error {
	var errs []error
	for _, n := range m {
		if err := n.DataUpdated(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
