package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/auth"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/clock"
	apihttp "github.com/AndresRodriguez-98/BibliotecaApi/adapters/http"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/idgen"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/memory"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/metrics"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/random"
	"github.com/AndresRodriguez-98/BibliotecaApi/app"
)

var baseTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type quotaSetting struct {
	v atomic.Int64
}

func (q *quotaSetting) FreeDailyQuota() int { return int(q.v.Load()) }

type testServer struct {
	router  chi.Router
	table   *apihttp.RouteTable
	clock   *clock.Fake
	quota   *quotaSetting
	metrics *metrics.Collector
	tokens  *auth.TokenService

	billingStore *memory.BillingStore
	usageStore   *memory.UsageStore
	keys         *app.KeyService
	restrict     *app.RestrictionService
	generator    *app.InvoiceGenerator
	evaluator    *app.DelinquencyEvaluator
}

func newTestServer(t *testing.T, catalog http.Handler) *testServer {
	t.Helper()

	db := memory.NewDB()
	s := &testServer{
		clock:        clock.NewFake(baseTime),
		quota:        &quotaSetting{},
		metrics:      metrics.NewWithRegistry(prometheus.NewRegistry()),
		billingStore: memory.NewBillingStore(db),
		usageStore:   memory.NewUsageStore(db),
	}
	s.quota.v.Store(2)

	ids := idgen.NewSequential("id-")
	keyStore := memory.NewKeyStore(db)
	restrictionStore := memory.NewRestrictionStore(db)
	accountStore := memory.NewAccountStore(db)
	logger := zerolog.Nop()

	s.keys = app.NewKeyService(app.KeyDeps{
		Keys:     keyStore,
		Accounts: accountStore,
		Random:   random.NewFake(),
		IDGen:    ids,
		Clock:    s.clock,
	}, logger)
	s.restrict = app.NewRestrictionService(keyStore, restrictionStore, ids, logger)
	admission := app.NewAdmissionService(app.AdmissionDeps{
		Keys:         keyStore,
		Restrictions: restrictionStore,
		Usage:        app.NewUsageRecorder(s.usageStore, s.clock, ids),
		Settings:     s.quota,
	}, logger)
	s.generator = app.NewInvoiceGenerator(s.billingStore, s.clock, ids, s.metrics, app.InvoiceConfig{}, logger)
	s.evaluator = app.NewDelinquencyEvaluator(s.billingStore, s.clock, s.metrics, logger)

	var err error
	s.tokens, err = auth.NewTokenService("test-secret", "biblioteca", time.Hour, s.clock)
	require.NoError(t, err)

	s.router, s.table = apihttp.NewRouter(apihttp.RouterConfig{
		Admission: apihttp.NewAdmissionMiddleware(admission, "", s.metrics, logger),
		Management: apihttp.NewAPIHandler(apihttp.APIDeps{
			Keys:         s.keys,
			Restrictions: s.restrict,
			Accounts:     app.NewAccountService(accountStore, memory.NewInvoiceStore(db)),
			Delinquency:  s.evaluator,
			Logger:       logger,
		}),
		Auth:    apihttp.BearerAuth(s.tokens, logger),
		Catalog: catalog,
		Health:  apihttp.NewHealthHandler(nil),
		Metrics: s.metrics,
		Docs:    true,
	}, logger)
	return s
}

func (s *testServer) bearer(t *testing.T, accountID string) string {
	t.Helper()
	token, _, err := s.tokens.Generate(accountID)
	require.NoError(t, err)
	return "Bearer " + token
}

// do sends a request; body is JSON-encoded unless nil. headers alternate name, value.
func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Add(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) api(t *testing.T, accountID, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, body, "Authorization", s.bearer(t, accountID))
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "body: %s", rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apihttp.ErrorResponse
	decodeJSON(t, rec, &resp)
	return resp.Error.Code
}

// echoCatalog answers 200 and echoes what the gate forwarded.
func echoCatalog() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"path":    r.URL.Path,
			"account": r.Header.Get("X-Biblioteca-Account"),
			"api_key": r.Header.Get("X-Api-Key"),
		})
	})
}
