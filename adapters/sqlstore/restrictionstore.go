package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// RestrictionStore implements ports.RestrictionStore.
type RestrictionStore struct {
	db *DB
}

// NewRestrictionStore creates a new SQL restriction store.
func NewRestrictionStore(db *DB) *RestrictionStore {
	return &RestrictionStore{db: db}
}

// ForKey returns every restriction attached to a key.
func (s *RestrictionStore) ForKey(ctx context.Context, keyID string) (key.Restrictions, error) {
	var r key.Restrictions

	rows, err := s.db.conn().query(ctx, `
		SELECT id, key_id, domain FROM key_domain_restrictions WHERE key_id = ? ORDER BY domain
	`, keyID)
	if err != nil {
		return r, err
	}
	for rows.Next() {
		var d key.DomainRestriction
		if err := rows.Scan(&d.ID, &d.KeyID, &d.Domain); err != nil {
			rows.Close()
			return r, err
		}
		r.Domains = append(r.Domains, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return r, err
	}

	rows, err = s.db.conn().query(ctx, `
		SELECT id, key_id, ip FROM key_ip_restrictions WHERE key_id = ? ORDER BY ip
	`, keyID)
	if err != nil {
		return r, err
	}
	defer rows.Close()
	for rows.Next() {
		var ip key.IPRestriction
		if err := rows.Scan(&ip.ID, &ip.KeyID, &ip.IP); err != nil {
			return r, err
		}
		r.IPs = append(r.IPs, ip)
	}
	return r, rows.Err()
}

// CreateDomain stores a domain restriction.
func (s *RestrictionStore) CreateDomain(ctx context.Context, r key.DomainRestriction) error {
	_, err := s.db.conn().exec(ctx, `
		INSERT INTO key_domain_restrictions (id, key_id, domain) VALUES (?, ?, ?)
	`, r.ID, r.KeyID, r.Domain)
	if isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// GetDomain retrieves a domain restriction by ID.
func (s *RestrictionStore) GetDomain(ctx context.Context, id string) (key.DomainRestriction, error) {
	var d key.DomainRestriction
	err := s.db.conn().queryRow(ctx, `
		SELECT id, key_id, domain FROM key_domain_restrictions WHERE id = ?
	`, id).Scan(&d.ID, &d.KeyID, &d.Domain)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ports.ErrNotFound
	}
	return d, err
}

// UpdateDomain changes the domain of a restriction.
func (s *RestrictionStore) UpdateDomain(ctx context.Context, id, domain string) error {
	result, err := s.db.conn().exec(ctx, `
		UPDATE key_domain_restrictions SET domain = ? WHERE id = ?
	`, domain, id)
	if isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// DeleteDomain removes a domain restriction.
func (s *RestrictionStore) DeleteDomain(ctx context.Context, id string) error {
	result, err := s.db.conn().exec(ctx, `DELETE FROM key_domain_restrictions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// CreateIP stores an IP restriction.
func (s *RestrictionStore) CreateIP(ctx context.Context, r key.IPRestriction) error {
	_, err := s.db.conn().exec(ctx, `
		INSERT INTO key_ip_restrictions (id, key_id, ip) VALUES (?, ?, ?)
	`, r.ID, r.KeyID, r.IP)
	if isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// GetIP retrieves an IP restriction by ID.
func (s *RestrictionStore) GetIP(ctx context.Context, id string) (key.IPRestriction, error) {
	var r key.IPRestriction
	err := s.db.conn().queryRow(ctx, `
		SELECT id, key_id, ip FROM key_ip_restrictions WHERE id = ?
	`, id).Scan(&r.ID, &r.KeyID, &r.IP)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ports.ErrNotFound
	}
	return r, err
}

// DeleteIP removes an IP restriction.
func (s *RestrictionStore) DeleteIP(ctx context.Context, id string) error {
	result, err := s.db.conn().exec(ctx, `DELETE FROM key_ip_restrictions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// Ensure interface compliance.
var _ ports.RestrictionStore = (*RestrictionStore)(nil)
