package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// tokenAttempts bounds retries when a generated token collides.
const tokenAttempts = 3

// KeyService manages API keys on behalf of accounts.
//
// Methods take the acting account ID and return ErrForbidden for keys owned
// by another account. An empty account ID skips the ownership check.
type KeyService struct {
	keys     ports.KeyStore
	accounts ports.AccountStore
	random   ports.Random
	idGen    ports.IDGenerator
	clock    ports.Clock
	logger   zerolog.Logger
}

// KeyDeps contains dependencies for KeyService.
type KeyDeps struct {
	Keys     ports.KeyStore
	Accounts ports.AccountStore
	Random   ports.Random
	IDGen    ports.IDGenerator
	Clock    ports.Clock
}

// KeyUpdate describes a combined rotate and activation change.
type KeyUpdate struct {
	Rotate bool
	Active *bool
}

// NewKeyService creates a new key service.
func NewKeyService(deps KeyDeps, logger zerolog.Logger) *KeyService {
	return &KeyService{
		keys:     deps.Keys,
		accounts: deps.Accounts,
		random:   deps.Random,
		idGen:    deps.IDGen,
		clock:    deps.Clock,
		logger:   logger.With().Str("service", "keys").Logger(),
	}
}

// Create issues a new active key for an account.
// An account may hold at most one active free key.
func (s *KeyService) Create(ctx context.Context, accountID string, tier key.Tier) (key.Key, error) {
	if accountID == "" {
		return key.Key{}, fmt.Errorf("%w: account id required", ErrValidation)
	}
	if tier != key.TierFree && tier != key.TierPaid {
		return key.Key{}, fmt.Errorf("%w: %q", key.ErrInvalidTier, tier)
	}

	if tier == key.TierFree {
		existing, err := s.keys.ListByAccount(ctx, accountID)
		if err != nil {
			return key.Key{}, fmt.Errorf("list keys: %w", err)
		}
		if key.HasActiveFree(existing, "") {
			return key.Key{}, key.ErrFreeKeyExists
		}
	}

	now := s.clock.Now()
	if err := s.accounts.Ensure(ctx, accountID, now); err != nil {
		return key.Key{}, fmt.Errorf("ensure account: %w", err)
	}

	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return key.Key{}, err
		}

		k := key.New(s.idGen.New(), accountID, tier, token, now)
		err = s.keys.Create(ctx, k)
		if err == nil {
			s.logger.Info().
				Str("key_id", k.ID).
				Str("account_id", accountID).
				Str("tier", string(tier)).
				Msg("key created")
			return k, nil
		}
		if !errors.Is(err, ports.ErrDuplicate) || attempt == tokenAttempts {
			return key.Key{}, fmt.Errorf("create key: %w", err)
		}
	}
}

// Get returns a key owned by accountID.
func (s *KeyService) Get(ctx context.Context, accountID, id string) (key.Key, error) {
	k, err := s.keys.Get(ctx, id)
	if err != nil {
		return key.Key{}, err
	}
	if !owns(accountID, k.AccountID) {
		return key.Key{}, ErrForbidden
	}
	return k, nil
}

// List returns the account's keys, or every key for operator access.
func (s *KeyService) List(ctx context.Context, accountID string) ([]key.Key, error) {
	if accountID == "" {
		return s.keys.List(ctx)
	}
	return s.keys.ListByAccount(ctx, accountID)
}

// Rotate replaces the key's token in place and returns the updated key.
func (s *KeyService) Rotate(ctx context.Context, accountID, id string) (key.Key, error) {
	return s.Update(ctx, accountID, id, KeyUpdate{Rotate: true})
}

// SetActive activates or deactivates a key.
func (s *KeyService) SetActive(ctx context.Context, accountID, id string, active bool) (key.Key, error) {
	return s.Update(ctx, accountID, id, KeyUpdate{Active: &active})
}

// Update applies a rotate and/or activation change in one call.
func (s *KeyService) Update(ctx context.Context, accountID, id string, u KeyUpdate) (key.Key, error) {
	k, err := s.Get(ctx, accountID, id)
	if err != nil {
		return key.Key{}, err
	}

	if u.Active != nil && *u.Active != k.Active {
		if *u.Active && k.IsFree() {
			siblings, err := s.keys.ListByAccount(ctx, k.AccountID)
			if err != nil {
				return key.Key{}, fmt.Errorf("list keys: %w", err)
			}
			if key.HasActiveFree(siblings, k.ID) {
				return key.Key{}, key.ErrFreeKeyExists
			}
		}
		if err := s.keys.SetActive(ctx, k.ID, *u.Active); err != nil {
			return key.Key{}, fmt.Errorf("set active: %w", err)
		}
		k = k.WithActive(*u.Active)
		s.logger.Info().Str("key_id", k.ID).Bool("active", k.Active).Msg("key activation changed")
	}

	if u.Rotate {
		k, err = s.rotate(ctx, k)
		if err != nil {
			return key.Key{}, err
		}
	}

	return k, nil
}

func (s *KeyService) rotate(ctx context.Context, k key.Key) (key.Key, error) {
	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return key.Key{}, err
		}

		err = s.keys.UpdateToken(ctx, k.ID, token)
		if err == nil {
			s.logger.Info().Str("key_id", k.ID).Msg("key rotated")
			return k.WithToken(token), nil
		}
		if !errors.Is(err, ports.ErrDuplicate) || attempt == tokenAttempts {
			return key.Key{}, fmt.Errorf("rotate key: %w", err)
		}
	}
}

// Delete permanently removes a paid key. Free keys cannot be deleted.
// Usage recorded for the key is retained.
func (s *KeyService) Delete(ctx context.Context, accountID, id string) error {
	k, err := s.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if err := key.CanDelete(k); err != nil {
		return err
	}
	if err := s.keys.Delete(ctx, k.ID); err != nil {
		return err
	}

	s.logger.Info().Str("key_id", k.ID).Str("account_id", k.AccountID).Msg("key deleted")
	return nil
}

func (s *KeyService) newToken() (string, error) {
	b, err := s.random.Bytes(key.TokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return key.TokenFromBytes(b)
}
