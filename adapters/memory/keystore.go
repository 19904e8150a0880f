package memory

import (
	"context"
	"sort"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// KeyStore is an in-memory implementation of ports.KeyStore.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a key store backed by db.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.keys[k.ID]; ok {
		return ports.ErrDuplicate
	}
	if _, ok := s.db.tokens[k.Token]; ok {
		return ports.ErrDuplicate
	}
	s.db.keys[k.ID] = k
	s.db.tokens[k.Token] = k.ID
	return nil
}

// Get retrieves a key by ID.
func (s *KeyStore) Get(ctx context.Context, id string) (key.Key, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	k, ok := s.db.keys[id]
	if !ok {
		return key.Key{}, ports.ErrNotFound
	}
	return k, nil
}

// GetByToken retrieves a key by its token.
func (s *KeyStore) GetByToken(ctx context.Context, token string) (key.Key, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	id, ok := s.db.tokens[token]
	if !ok {
		return key.Key{}, ports.ErrNotFound
	}
	return s.db.keys[id], nil
}

// ListByAccount returns all keys owned by an account.
func (s *KeyStore) ListByAccount(ctx context.Context, accountID string) ([]key.Key, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []key.Key
	for _, k := range s.db.keys {
		if k.AccountID == accountID {
			result = append(result, k)
		}
	}
	sortKeys(result)
	return result, nil
}

// List returns every key.
func (s *KeyStore) List(ctx context.Context) ([]key.Key, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	result := make([]key.Key, 0, len(s.db.keys))
	for _, k := range s.db.keys {
		result = append(result, k)
	}
	sortKeys(result)
	return result, nil
}

// UpdateToken replaces a key's token in place.
func (s *KeyStore) UpdateToken(ctx context.Context, id, token string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	k, ok := s.db.keys[id]
	if !ok {
		return ports.ErrNotFound
	}
	if owner, taken := s.db.tokens[token]; taken && owner != id {
		return ports.ErrDuplicate
	}
	delete(s.db.tokens, k.Token)
	k.Token = token
	s.db.keys[id] = k
	s.db.tokens[token] = id
	return nil
}

// SetActive sets a key's active flag.
func (s *KeyStore) SetActive(ctx context.Context, id string, active bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	k, ok := s.db.keys[id]
	if !ok {
		return ports.ErrNotFound
	}
	k.Active = active
	s.db.keys[id] = k
	return nil
}

// Delete removes a key and its restrictions. Usage events are kept.
func (s *KeyStore) Delete(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	k, ok := s.db.keys[id]
	if !ok {
		return ports.ErrNotFound
	}
	delete(s.db.keys, id)
	delete(s.db.tokens, k.Token)
	for rid, r := range s.db.domains {
		if r.KeyID == id {
			delete(s.db.domains, rid)
		}
	}
	for rid, r := range s.db.ips {
		if r.KeyID == id {
			delete(s.db.ips, rid)
		}
	}
	return nil
}

func sortKeys(keys []key.Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].AccountID != keys[j].AccountID {
			return keys[i].AccountID < keys[j].AccountID
		}
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.Before(keys[j].CreatedAt)
		}
		return keys[i].ID < keys[j].ID
	})
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
