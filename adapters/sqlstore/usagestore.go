package sqlstore

import (
	"context"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// UsageStore implements ports.UsageStore.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQL usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Record appends one usage event.
func (s *UsageStore) Record(ctx context.Context, e usage.Event) error {
	// Timestamps are stored in UTC so range comparisons are consistent.
	_, err := s.db.conn().exec(ctx, `
		INSERT INTO usage_events (id, key_id, account_id, tier, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.KeyID, e.AccountID, string(e.Tier), e.Timestamp.UTC())
	return err
}

// CountSince counts a key's events with timestamp >= since.
func (s *UsageStore) CountSince(ctx context.Context, keyID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.conn().queryRow(ctx, `
		SELECT COUNT(*)
		FROM usage_events
		WHERE key_id = ? AND occurred_at >= ?
	`, keyID, since.UTC()).Scan(&n)
	return n, err
}

// ListByKey returns a key's events in [start, end), oldest first.
func (s *UsageStore) ListByKey(ctx context.Context, keyID string, start, end time.Time) ([]usage.Event, error) {
	rows, err := s.db.conn().query(ctx, `
		SELECT id, key_id, account_id, tier, occurred_at
		FROM usage_events
		WHERE key_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at, id
	`, keyID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		var e usage.Event
		var tier string
		if err := rows.Scan(&e.ID, &e.KeyID, &e.AccountID, &tier, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Tier = key.Tier(tier)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
