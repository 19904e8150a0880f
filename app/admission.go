package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/admission"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// AdmissionService decides whether a request carrying an API key may proceed.
type AdmissionService struct {
	keys         ports.KeyStore
	restrictions ports.RestrictionStore
	usage        *UsageRecorder
	settings     ports.AdmissionSettings
	locker       ports.KeyLocker
	logger       zerolog.Logger
}

// AdmissionDeps contains dependencies for AdmissionService.
type AdmissionDeps struct {
	Keys         ports.KeyStore
	Restrictions ports.RestrictionStore
	Usage        *UsageRecorder
	Settings     ports.AdmissionSettings

	// Locker serializes the free-tier check and record per key.
	// Nil leaves the limit soft under concurrent requests.
	Locker ports.KeyLocker
}

// NewAdmissionService creates a new admission service.
func NewAdmissionService(deps AdmissionDeps, logger zerolog.Logger) *AdmissionService {
	return &AdmissionService{
		keys:         deps.Keys,
		restrictions: deps.Restrictions,
		usage:        deps.Usage,
		settings:     deps.Settings,
		locker:       deps.Locker,
		logger:       logger.With().Str("service", "admission").Logger(),
	}
}

// Admit runs the key checks in order and records usage for admitted requests.
// A returned error means a store failed; rejections are reported in the result.
func (s *AdmissionService) Admit(ctx context.Context, req admission.Request) (admission.Result, error) {
	token, rej := admission.SingleToken(req.Tokens)
	if rej != nil {
		return admission.Deny(*rej), nil
	}

	k, err := s.keys.GetByToken(ctx, token)
	if errors.Is(err, ports.ErrNotFound) {
		return admission.Deny(admission.ErrKeyNotFound), nil
	}
	if err != nil {
		return admission.Result{}, fmt.Errorf("lookup key: %w", err)
	}

	if !k.Active {
		return deny(k, admission.ErrKeyInactive), nil
	}

	restrictions, err := s.restrictions.ForKey(ctx, k.ID)
	if err != nil {
		return admission.Result{}, fmt.Errorf("load restrictions: %w", err)
	}
	if !restrictions.Permits(req.Origin) {
		return deny(k, admission.ErrRestricted), nil
	}

	if !k.IsFree() {
		if _, err := s.usage.Record(ctx, k); err != nil {
			return admission.Result{}, fmt.Errorf("record usage: %w", err)
		}
		return admission.Allow(k, 0), nil
	}

	return s.admitFree(ctx, k)
}

func (s *AdmissionService) admitFree(ctx context.Context, k key.Key) (admission.Result, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, k.ID)
		if err != nil {
			return admission.Result{}, fmt.Errorf("lock key: %w", err)
		}
		defer unlock()
	}

	used, err := s.usage.CountToday(ctx, k.ID)
	if err != nil {
		return admission.Result{}, fmt.Errorf("count usage: %w", err)
	}

	quota := s.settings.FreeDailyQuota()
	if usage.QuotaExceeded(used, quota) {
		s.logger.Debug().
			Str("key_id", k.ID).
			Int64("used", used).
			Int("quota", quota).
			Msg("free quota exhausted")
		r := deny(k, admission.ErrQuotaExceeded)
		r.Used = used
		return r, nil
	}

	if _, err := s.usage.Record(ctx, k); err != nil {
		return admission.Result{}, fmt.Errorf("record usage: %w", err)
	}
	return admission.Allow(k, used), nil
}

func deny(k key.Key, r admission.Rejection) admission.Result {
	result := admission.Deny(r)
	result.Key = k
	return result
}
