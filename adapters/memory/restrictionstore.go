package memory

import (
	"context"
	"sort"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// RestrictionStore is an in-memory implementation of ports.RestrictionStore.
type RestrictionStore struct {
	db *DB
}

// NewRestrictionStore creates a restriction store backed by db.
func NewRestrictionStore(db *DB) *RestrictionStore {
	return &RestrictionStore{db: db}
}

// ForKey returns every restriction attached to a key.
func (s *RestrictionStore) ForKey(ctx context.Context, keyID string) (key.Restrictions, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var r key.Restrictions
	for _, d := range s.db.domains {
		if d.KeyID == keyID {
			r.Domains = append(r.Domains, d)
		}
	}
	for _, ip := range s.db.ips {
		if ip.KeyID == keyID {
			r.IPs = append(r.IPs, ip)
		}
	}
	sort.Slice(r.Domains, func(i, j int) bool { return r.Domains[i].Domain < r.Domains[j].Domain })
	sort.Slice(r.IPs, func(i, j int) bool { return r.IPs[i].IP < r.IPs[j].IP })
	return r, nil
}

// CreateDomain stores a domain restriction.
func (s *RestrictionStore) CreateDomain(ctx context.Context, r key.DomainRestriction) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, d := range s.db.domains {
		if d.ID == r.ID || (d.KeyID == r.KeyID && d.Domain == r.Domain) {
			return ports.ErrDuplicate
		}
	}
	s.db.domains[r.ID] = r
	return nil
}

// GetDomain retrieves a domain restriction by ID.
func (s *RestrictionStore) GetDomain(ctx context.Context, id string) (key.DomainRestriction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	d, ok := s.db.domains[id]
	if !ok {
		return key.DomainRestriction{}, ports.ErrNotFound
	}
	return d, nil
}

// UpdateDomain changes the domain of a restriction.
func (s *RestrictionStore) UpdateDomain(ctx context.Context, id, domain string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	d, ok := s.db.domains[id]
	if !ok {
		return ports.ErrNotFound
	}
	for _, other := range s.db.domains {
		if other.ID != id && other.KeyID == d.KeyID && other.Domain == domain {
			return ports.ErrDuplicate
		}
	}
	d.Domain = domain
	s.db.domains[id] = d
	return nil
}

// DeleteDomain removes a domain restriction.
func (s *RestrictionStore) DeleteDomain(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.domains[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.db.domains, id)
	return nil
}

// CreateIP stores an IP restriction.
func (s *RestrictionStore) CreateIP(ctx context.Context, r key.IPRestriction) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, ip := range s.db.ips {
		if ip.ID == r.ID || (ip.KeyID == r.KeyID && ip.IP == r.IP) {
			return ports.ErrDuplicate
		}
	}
	s.db.ips[r.ID] = r
	return nil
}

// GetIP retrieves an IP restriction by ID.
func (s *RestrictionStore) GetIP(ctx context.Context, id string) (key.IPRestriction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	ip, ok := s.db.ips[id]
	if !ok {
		return key.IPRestriction{}, ports.ErrNotFound
	}
	return ip, nil
}

// DeleteIP removes an IP restriction.
func (s *RestrictionStore) DeleteIP(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.ips[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.db.ips, id)
	return nil
}

// Ensure interface compliance.
var _ ports.RestrictionStore = (*RestrictionStore)(nil)
