package app_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/clock"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/idgen"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/memory"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/random"
	"github.com/AndresRodriguez-98/BibliotecaApi/app"
)

var baseTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// quotaSetting is a mutable ports.AdmissionSettings.
type quotaSetting struct {
	v atomic.Int64
}

func newQuota(n int) *quotaSetting {
	q := &quotaSetting{}
	q.v.Store(int64(n))
	return q
}

func (q *quotaSetting) FreeDailyQuota() int { return int(q.v.Load()) }
func (q *quotaSetting) Set(n int) { q.v.Store(int64(n)) }

type testEnv struct {
	db    *memory.DB
	clock *clock.Fake
	ids   *idgen.Sequential
	quota *quotaSetting

	keyStore     *memory.KeyStore
	usageStore   *memory.UsageStore
	restrictions *memory.RestrictionStore
	accountStore *memory.AccountStore
	invoiceStore *memory.InvoiceStore
	billingStore *memory.BillingStore

	keys      *app.KeyService
	restrict  *app.RestrictionService
	recorder  *app.UsageRecorder
	admission *app.AdmissionService
	generator *app.InvoiceGenerator
	evaluator *app.DelinquencyEvaluator
	accounts  *app.AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:    memory.NewDB(),
		clock: clock.NewFake(baseTime),
		ids:   idgen.NewSequential("id-"),
		quota: newQuota(3),
	}
	env.keyStore = memory.NewKeyStore(env.db)
	env.usageStore = memory.NewUsageStore(env.db)
	env.restrictions = memory.NewRestrictionStore(env.db)
	env.accountStore = memory.NewAccountStore(env.db)
	env.invoiceStore = memory.NewInvoiceStore(env.db)
	env.billingStore = memory.NewBillingStore(env.db)

	logger := zerolog.Nop()
	env.keys = app.NewKeyService(app.KeyDeps{
		Keys:     env.keyStore,
		Accounts: env.accountStore,
		Random:   random.NewFake(),
		IDGen:    env.ids,
		Clock:    env.clock,
	}, logger)
	env.restrict = app.NewRestrictionService(env.keyStore, env.restrictions, env.ids, logger)
	env.recorder = app.NewUsageRecorder(env.usageStore, env.clock, env.ids)
	env.admission = app.NewAdmissionService(app.AdmissionDeps{
		Keys:         env.keyStore,
		Restrictions: env.restrictions,
		Usage:        env.recorder,
		Settings:     env.quota,
	}, logger)
	env.generator = app.NewInvoiceGenerator(env.billingStore, env.clock, env.ids, nil, app.InvoiceConfig{}, logger)
	env.evaluator = app.NewDelinquencyEvaluator(env.billingStore, env.clock, nil, logger)
	env.accounts = app.NewAccountService(env.accountStore, env.invoiceStore)
	return env
}
