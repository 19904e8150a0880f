// Package key provides API key value types and pure validation functions.
// This package has NO dependencies on I/O.
package key

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenBytes is the number of random bytes behind a token (128 bits).
const TokenBytes = 16

// Tier is the service level of a key.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Errors for key invariants.
var (
	ErrInvalidTier         = errors.New("invalid tier")
	ErrFreeKeyExists       = errors.New("account already has an active free key")
	ErrFreeKeyNotDeletable = errors.New("cannot delete free key")
	ErrInvalidToken        = errors.New("invalid token")
)

// Key represents an API key (immutable value type).
type Key struct {
	ID        string
	AccountID string
	Token     string
	Tier      Tier
	Active    bool
	CreatedAt time.Time
}

// ParseTier parses a tier name. Matching is case-insensitive.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierPaid:
		return TierPaid, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}

// IsFree reports whether the key is on the free tier.
func (k Key) IsFree() bool {
	return k.Tier == TierFree
}

// TokenFromBytes encodes random bytes as a key token.
// The token is lowercase hex with no separators.
// This is a PURE function.
func TokenFromBytes(b []byte) (string, error) {
	if len(b) < TokenBytes {
		return "", fmt.Errorf("%w: need %d random bytes, got %d", ErrInvalidToken, TokenBytes, len(b))
	}
	return hex.EncodeToString(b[:TokenBytes]), nil
}

// New builds a new active key.
// This is a PURE function - all inputs are explicit.
func New(id, accountID string, tier Tier, token string, now time.Time) Key {
	return Key{
		ID:        id,
		AccountID: accountID,
		Token:     token,
		Tier:      tier,
		Active:    true,
		CreatedAt: now.UTC(),
	}
}

// WithToken returns a copy of the key with a replaced token.
func (k Key) WithToken(token string) Key {
	k.Token = token
	return k
}

// WithActive returns a copy of the key with the active flag set.
func (k Key) WithActive(active bool) Key {
	k.Active = active
	return k
}

// CanDelete reports whether the key may be deleted.
// Free keys are never deletable.
func CanDelete(k Key) error {
	if k.IsFree() {
		return ErrFreeKeyNotDeletable
	}
	return nil
}

// HasActiveFree reports whether any of keys is an active free key,
// ignoring the key with id except (if non-empty).
func HasActiveFree(keys []Key, except string) bool {
	for _, k := range keys {
		if k.ID == except {
			continue
		}
		if k.IsFree() && k.Active {
			return true
		}
	}
	return false
}

// Mask hides all but the last four characters of a token.
func Mask(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
