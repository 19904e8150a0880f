package memory

import (
	"context"
	"sort"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/account"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// AccountStore is an in-memory implementation of ports.AccountStore.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates an account store backed by db.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// Ensure creates the account if it does not exist.
func (s *AccountStore) Ensure(ctx context.Context, id string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.accounts[id]; !ok {
		s.db.accounts[id] = account.Account{ID: id, CreatedAt: at.UTC()}
	}
	return nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, id string) (account.Account, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	a, ok := s.db.accounts[id]
	if !ok {
		return account.Account{}, ports.ErrNotFound
	}
	return a, nil
}

// List returns all accounts ordered by ID.
func (s *AccountStore) List(ctx context.Context) ([]account.Account, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	result := make([]account.Account, 0, len(s.db.accounts))
	for _, a := range s.db.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Ensure interface compliance.
var _ ports.AccountStore = (*AccountStore)(nil)
