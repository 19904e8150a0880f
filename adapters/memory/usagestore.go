package memory

import (
	"context"
	"sort"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a usage store backed by db.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Record appends one usage event.
func (s *UsageStore) Record(ctx context.Context, e usage.Event) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	e.Timestamp = e.Timestamp.UTC()
	s.db.events[e.KeyID] = append(s.db.events[e.KeyID], e)
	return nil
}

// CountSince counts a key's events with timestamp >= since.
func (s *UsageStore) CountSince(ctx context.Context, keyID string, since time.Time) (int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var n int64
	for _, e := range s.db.events[keyID] {
		if !e.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// ListByKey returns a key's events in [start, end), oldest first.
func (s *UsageStore) ListByKey(ctx context.Context, keyID string, start, end time.Time) ([]usage.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []usage.Event
	for _, e := range s.db.events[keyID] {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Len returns the total number of recorded events (for testing).
func (s *UsageStore) Len() int {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	n := 0
	for _, events := range s.db.events {
		n += len(events)
	}
	return n
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
