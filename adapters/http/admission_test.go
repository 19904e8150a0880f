package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "github.com/AndresRodriguez-98/BibliotecaApi/adapters/http"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/metrics"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/admission"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
)

func TestAdmission_ExemptRoutesNeedNoKey(t *testing.T) {
	s := newTestServer(t, echoCatalog())

	for _, path := range []string{"/health", "/health/ready", "/version", "/swagger/doc.json"} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// management routes are exempt from admission but need a bearer token
	rec := s.do(t, http.MethodGet, "/api/keys", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.AdmissionDecisions.WithLabelValues("missing_header")))
}

func TestAdmission_HeaderRejections(t *testing.T) {
	s := newTestServer(t, echoCatalog())
	k, err := s.keys.Create(context.Background(), "acc-1", key.TierPaid)
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers []string
		status  int
		body    string
	}{
		{"missing", nil, http.StatusBadRequest, "missing header"},
		{"multiple", []string{"X-Api-Key", k.Token, "X-Api-Key", k.Token}, http.StatusBadRequest, "multiple headers"},
		{"unknown", []string{"X-Api-Key", "nope"}, http.StatusBadRequest, "key not found"},
		{"lowercase header name", []string{"x-api-key", k.Token}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/books", nil, tt.headers...)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
				assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestAdmission_InactiveKey(t *testing.T) {
	s := newTestServer(t, echoCatalog())
	ctx := context.Background()
	k, err := s.keys.Create(ctx, "acc-1", key.TierPaid)
	require.NoError(t, err)
	_, err = s.keys.SetActive(ctx, "acc-1", k.ID, false)
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/v1/books", nil, "X-Api-Key", k.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "key inactive", rec.Body.String())
}

func TestAdmission_FreeQuota(t *testing.T) {
	s := newTestServer(t, echoCatalog())
	ctx := context.Background()
	k, err := s.keys.Create(ctx, "acc-1", key.TierFree)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodGet, "/api/v1/books", nil, "X-Api-Key", k.Token)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/books", nil, "X-Api-Key", k.Token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "daily request limit exceeded; upgrade to a paid key to make more requests", rec.Body.String())

	used, err := s.usageStore.CountSince(ctx, k.ID, usage.StartOfDay(baseTime))
	require.NoError(t, err)
	assert.Equal(t, int64(2), used, "rejected request must not be recorded")

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.AdmissionDecisions.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.AdmissionDecisions.WithLabelValues("quota_exceeded")))

	// next UTC day resets the count
	s.clock.AdvanceDays(1)
	rec = s.do(t, http.MethodGet, "/api/v1/books", nil, "X-Api-Key", k.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmission_Restrictions(t *testing.T) {
	s := newTestServer(t, echoCatalog())
	ctx := context.Background()
	k, err := s.keys.Create(ctx, "acc-1", key.TierPaid)
	require.NoError(t, err)
	_, err = s.restrict.AddDomain(ctx, "acc-1", k.ID, "books.example.com")
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/v1/books", nil, "X-Api-Key", k.Token, "Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request not allowed by key restrictions", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/books", nil, "X-Api-Key", k.Token, "Origin", "https://BOOKS.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err = s.restrict.AddIP(ctx, "acc-1", k.ID, "203.0.113.9")
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/api/v1/books", nil, "X-Api-Key", k.Token, "X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusOK, rec.Code, "RealIP address should satisfy the IP restriction")
}

func TestAdmission_NoCatalogConfigured(t *testing.T) {
	s := newTestServer(t, nil)
	k, err := s.keys.Create(context.Background(), "acc-1", key.TierPaid)
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/v1/books", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "admission runs before the catalog")

	rec = s.do(t, http.MethodGet, "/api/v1/books", nil, "X-Api-Key", k.Token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "catalog_unavailable", errorCode(t, rec))
}

type failingAdmitter struct{}

func (failingAdmitter) Admit(context.Context, admission.Request) (admission.Result, error) {
	return admission.Result{}, errors.New("database is locked")
}

type recordingAdmitter struct {
	tokens []string
	result admission.Result
}

func (a *recordingAdmitter) Admit(_ context.Context, req admission.Request) (admission.Result, error) {
	a.tokens = req.Tokens
	return a.result, nil
}

func TestAdmissionMiddleware_StoreFailure(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	mw := apihttp.NewAdmissionMiddleware(failingAdmitter{}, "", m, zerolog.Nop())

	r := chi.NewRouter()
	apihttp.NewRegistrar(r, apihttp.NewRouteTable(), mw.Wrap).HandleFunc(http.MethodGet, "/books", func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("X-Api-Key", "k")
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionErrors))
}

func TestAdmissionMiddleware_CustomHeaderAndContextKey(t *testing.T) {
	admitted := key.Key{ID: "k1", AccountID: "acc-9", Tier: key.TierPaid, Active: true}
	a := &recordingAdmitter{result: admission.Allow(admitted, 0)}
	mw := apihttp.NewAdmissionMiddleware(a, "X-Library-Key", nil, zerolog.Nop())
	assert.Equal(t, "X-Library-Key", mw.Header())

	r := chi.NewRouter()
	var seen key.Key
	apihttp.NewRegistrar(r, apihttp.NewRouteTable(), mw.Wrap).HandleFunc(http.MethodGet, "/books", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = apihttp.KeyFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("X-Library-Key", "tok")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"tok"}, a.tokens)
	assert.Equal(t, "acc-9", seen.AccountID)
}
