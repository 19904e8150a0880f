package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// RestrictionService manages per-key domain and IP restrictions.
type RestrictionService struct {
	keys         ports.KeyStore
	restrictions ports.RestrictionStore
	idGen        ports.IDGenerator
	logger       zerolog.Logger
}

// NewRestrictionService creates a new restriction service.
func NewRestrictionService(keys ports.KeyStore, restrictions ports.RestrictionStore, idGen ports.IDGenerator, logger zerolog.Logger) *RestrictionService {
	return &RestrictionService{
		keys:         keys,
		restrictions: restrictions,
		idGen:        idGen,
		logger:       logger.With().Str("service", "restrictions").Logger(),
	}
}

// List returns all restrictions of a key.
func (s *RestrictionService) List(ctx context.Context, accountID, keyID string) (key.Restrictions, error) {
	if err := s.checkKey(ctx, accountID, keyID); err != nil {
		return key.Restrictions{}, err
	}
	return s.restrictions.ForKey(ctx, keyID)
}

// AddDomain restricts a key to requests from domain.
func (s *RestrictionService) AddDomain(ctx context.Context, accountID, keyID, domain string) (key.DomainRestriction, error) {
	if err := s.checkKey(ctx, accountID, keyID); err != nil {
		return key.DomainRestriction{}, err
	}
	d, err := key.NormalizeDomain(domain)
	if err != nil {
		return key.DomainRestriction{}, fmt.Errorf("%w: domain %q", ErrValidation, domain)
	}

	r := key.DomainRestriction{ID: s.idGen.New(), KeyID: keyID, Domain: d}
	if err := s.restrictions.CreateDomain(ctx, r); err != nil {
		return key.DomainRestriction{}, err
	}
	s.logger.Info().Str("key_id", keyID).Str("domain", d).Msg("domain restriction added")
	return r, nil
}

// UpdateDomain changes the domain of an existing restriction.
func (s *RestrictionService) UpdateDomain(ctx context.Context, accountID, id, domain string) (key.DomainRestriction, error) {
	r, err := s.restrictions.GetDomain(ctx, id)
	if err != nil {
		return key.DomainRestriction{}, err
	}
	if err := s.checkKey(ctx, accountID, r.KeyID); err != nil {
		return key.DomainRestriction{}, err
	}
	d, err := key.NormalizeDomain(domain)
	if err != nil {
		return key.DomainRestriction{}, fmt.Errorf("%w: domain %q", ErrValidation, domain)
	}

	if err := s.restrictions.UpdateDomain(ctx, id, d); err != nil {
		return key.DomainRestriction{}, err
	}
	r.Domain = d
	return r, nil
}

// RemoveDomain deletes a domain restriction.
func (s *RestrictionService) RemoveDomain(ctx context.Context, accountID, id string) error {
	r, err := s.restrictions.GetDomain(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkKey(ctx, accountID, r.KeyID); err != nil {
		return err
	}
	return s.restrictions.DeleteDomain(ctx, id)
}

// AddIP restricts a key to requests from ip.
func (s *RestrictionService) AddIP(ctx context.Context, accountID, keyID, ip string) (key.IPRestriction, error) {
	if err := s.checkKey(ctx, accountID, keyID); err != nil {
		return key.IPRestriction{}, err
	}
	normalized, err := key.NormalizeIP(ip)
	if err != nil {
		return key.IPRestriction{}, fmt.Errorf("%w: ip %q", ErrValidation, ip)
	}

	r := key.IPRestriction{ID: s.idGen.New(), KeyID: keyID, IP: normalized}
	if err := s.restrictions.CreateIP(ctx, r); err != nil {
		return key.IPRestriction{}, err
	}
	s.logger.Info().Str("key_id", keyID).Str("ip", normalized).Msg("ip restriction added")
	return r, nil
}

// RemoveIP deletes an IP restriction.
func (s *RestrictionService) RemoveIP(ctx context.Context, accountID, id string) error {
	r, err := s.restrictions.GetIP(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkKey(ctx, accountID, r.KeyID); err != nil {
		return err
	}
	return s.restrictions.DeleteIP(ctx, id)
}

func (s *RestrictionService) checkKey(ctx context.Context, accountID, keyID string) error {
	k, err := s.keys.Get(ctx, keyID)
	if err != nil {
		return err
	}
	if !owns(accountID, k.AccountID) {
		return ErrForbidden
	}
	return nil
}
