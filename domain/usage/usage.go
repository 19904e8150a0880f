// Package usage provides usage event types and pure quota functions.
package usage

import (
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
)

// Event records one admitted request (immutable value type).
// AccountID and Tier are captured at admission time so the event
// stays billable after the key is deleted.
type Event struct {
	ID        string
	KeyID     string
	AccountID string
	Tier      key.Tier
	Timestamp time.Time
}

// AccountCount is the number of events attributed to an account.
type AccountCount struct {
	AccountID string
	Count     int64
}

// NewEvent builds an event for an admitted key at the given instant.
// This is a PURE function.
func NewEvent(id string, k key.Key, at time.Time) Event {
	return Event{
		ID:        id,
		KeyID:     k.ID,
		AccountID: k.AccountID,
		Tier:      k.Tier,
		Timestamp: at.UTC(),
	}
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// QuotaExceeded reports whether a free key that already used `used`
// requests today may not make another one.
// A non-positive quota admits nothing.
func QuotaExceeded(used int64, quota int) bool {
	return used >= int64(quota)
}
