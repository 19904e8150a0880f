package app

import (
	"context"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// UsageRecorder appends usage events and answers daily counts.
// Writes are synchronous: the next admission check must see them.
type UsageRecorder struct {
	store ports.UsageStore
	clock ports.Clock
	idGen ports.IDGenerator
}

// NewUsageRecorder creates a new usage recorder.
func NewUsageRecorder(store ports.UsageStore, clock ports.Clock, idGen ports.IDGenerator) *UsageRecorder {
	return &UsageRecorder{store: store, clock: clock, idGen: idGen}
}

// Record appends one event for k at the current time.
func (r *UsageRecorder) Record(ctx context.Context, k key.Key) (usage.Event, error) {
	e := usage.NewEvent(r.idGen.New(), k, r.clock.Now())
	if err := r.store.Record(ctx, e); err != nil {
		return usage.Event{}, err
	}
	return e, nil
}

// CountToday counts the key's events since the start of the current UTC day.
func (r *UsageRecorder) CountToday(ctx context.Context, keyID string) (int64, error) {
	return r.store.CountSince(ctx, keyID, usage.StartOfDay(r.clock.Now()))
}

// History returns the key's events in [start, end).
func (r *UsageRecorder) History(ctx context.Context, keyID string, start, end time.Time) ([]usage.Event, error) {
	return r.store.ListByKey(ctx, keyID, start, end)
}
