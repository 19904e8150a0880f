package sqlite_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/sqlite"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/sqlstore"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

func setupTestDB(t *testing.T) (*sqlstore.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "biblioteca-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := sqlite.Migrate(db); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
	}

	return db, cleanup
}

var t0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newKey(id, account string, tier key.Tier) key.Key {
	return key.New(id, account, tier, "tok-"+id, t0)
}

func TestMigrate_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := sqlite.Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

// -----------------------------------------------------------------------------
// KeyStore Tests
// -----------------------------------------------------------------------------

func TestKeyStore_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlstore.NewKeyStore(db)
	ctx := context.Background()

	k := newKey("k1", "acc-1", key.TierFree)
	if err := store.Create(ctx, k); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.AccountID != "acc-1" || got.Tier != key.TierFree || !got.Active {
		t.Errorf("unexpected key %+v", got)
	}
	if !got.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, t0)
	}

	byToken, err := store.GetByToken(ctx, "tok-k1")
	if err != nil {
		t.Fatalf("GetByToken error: %v", err)
	}
	if byToken.ID != "k1" {
		t.Errorf("GetByToken ID = %s", byToken.ID)
	}

	if _, err := store.GetByToken(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetByToken missing = %v, want ErrNotFound", err)
	}
}

func TestKeyStore_DuplicateToken(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlstore.NewKeyStore(db)
	ctx := context.Background()

	a := newKey("k1", "acc-1", key.TierPaid)
	b := newKey("k2", "acc-2", key.TierPaid)
	b.Token = a.Token

	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := store.Create(ctx, b); !errors.Is(err, ports.ErrDuplicate) {
		t.Errorf("Create duplicate = %v, want ErrDuplicate", err)
	}
}

func TestKeyStore_UpdateAndDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlstore.NewKeyStore(db)
	ctx := context.Background()

	store.Create(ctx, newKey("k1", "acc-1", key.TierPaid))
	store.Create(ctx, newKey("k2", "acc-1", key.TierFree))
	store.Create(ctx, newKey("k3", "acc-2", key.TierPaid))

	if err := store.UpdateToken(ctx, "k1", "rotated"); err != nil {
		t.Fatalf("UpdateToken error: %v", err)
	}
	if _, err := store.GetByToken(ctx, "tok-k1"); !errors.Is(err, ports.ErrNotFound) {
		t.Error("old token should no longer resolve")
	}
	if got, _ := store.GetByToken(ctx, "rotated"); got.ID != "k1" {
		t.Errorf("rotated token resolves to %q", got.ID)
	}

	if err := store.SetActive(ctx, "k2", false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}
	if got, _ := store.Get(ctx, "k2"); got.Active {
		t.Error("k2 should be inactive")
	}

	keys, err := store.ListByAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ListByAccount error: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("ListByAccount len = %d, want 2", len(keys))
	}

	if err := store.Delete(ctx, "k3"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := store.Delete(ctx, "k3"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
	if err := store.SetActive(ctx, "missing", true); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("SetActive missing = %v, want ErrNotFound", err)
	}

	all, _ := store.List(ctx)
	if len(all) != 2 {
		t.Errorf("List len = %d, want 2", len(all))
	}
}

// -----------------------------------------------------------------------------
// UsageStore Tests
// -----------------------------------------------------------------------------

func TestUsageStore_CountSince(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlstore.NewUsageStore(db)
	ctx := context.Background()
	k := newKey("k1", "acc-1", key.TierFree)

	times := []time.Time{
		t0.AddDate(0, 0, -1),
		usage.StartOfDay(t0),
		t0.Add(-time.Hour),
		t0.Add(500 * time.Millisecond),
	}
	for i, at := range times {
		if err := store.Record(ctx, usage.NewEvent(string(rune('a'+i)), k, at)); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}

	n, err := store.CountSince(ctx, "k1", usage.StartOfDay(t0))
	if err != nil {
		t.Fatalf("CountSince error: %v", err)
	}
	if n != 3 {
		t.Errorf("CountSince = %d, want 3", n)
	}

	other, _ := store.CountSince(ctx, "k2", usage.StartOfDay(t0))
	if other != 0 {
		t.Errorf("CountSince other key = %d, want 0", other)
	}
}

func TestUsageStore_ListByKey(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlstore.NewUsageStore(db)
	ctx := context.Background()
	k := newKey("k1", "acc-1", key.TierPaid)

	store.Record(ctx, usage.NewEvent("e2", k, t0.Add(2*time.Minute)))
	store.Record(ctx, usage.NewEvent("e1", k, t0.Add(time.Minute)))
	store.Record(ctx, usage.NewEvent("e3", k, t0.Add(time.Hour)))

	events, err := store.ListByKey(ctx, "k1", t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListByKey error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListByKey len = %d, want 2", len(events))
	}
	if events[0].ID != "e1" || events[1].ID != "e2" {
		t.Errorf("order = %s, %s", events[0].ID, events[1].ID)
	}
	if events[0].AccountID != "acc-1" || events[0].Tier != key.TierPaid {
		t.Errorf("snapshot fields lost: %+v", events[0])
	}
}

// -----------------------------------------------------------------------------
// RestrictionStore Tests
// -----------------------------------------------------------------------------

func TestRestrictionStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	keys := sqlstore.NewKeyStore(db)
	store := sqlstore.NewRestrictionStore(db)
	ctx := context.Background()

	keys.Create(ctx, newKey("k1", "acc-1", key.TierPaid))

	if err := store.CreateDomain(ctx, key.DomainRestriction{ID: "d1", KeyID: "k1", Domain: "books.example.com"}); err != nil {
		t.Fatalf("CreateDomain error: %v", err)
	}
	if err := store.CreateDomain(ctx, key.DomainRestriction{ID: "d2", KeyID: "k1", Domain: "books.example.com"}); !errors.Is(err, ports.ErrDuplicate) {
		t.Errorf("duplicate domain = %v, want ErrDuplicate", err)
	}
	if err := store.CreateIP(ctx, key.IPRestriction{ID: "i1", KeyID: "k1", IP: "10.0.0.7"}); err != nil {
		t.Fatalf("CreateIP error: %v", err)
	}

	r, err := store.ForKey(ctx, "k1")
	if err != nil {
		t.Fatalf("ForKey error: %v", err)
	}
	if len(r.Domains) != 1 || len(r.IPs) != 1 {
		t.Fatalf("ForKey = %+v", r)
	}

	if err := store.UpdateDomain(ctx, "d1", "app.example.com"); err != nil {
		t.Fatalf("UpdateDomain error: %v", err)
	}
	d, err := store.GetDomain(ctx, "d1")
	if err != nil || d.Domain != "app.example.com" {
		t.Errorf("GetDomain = %+v, %v", d, err)
	}

	if err := store.DeleteIP(ctx, "i1"); err != nil {
		t.Fatalf("DeleteIP error: %v", err)
	}
	if _, err := store.GetIP(ctx, "i1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetIP after delete = %v", err)
	}

	// Restrictions go away with their key.
	keys.Delete(ctx, "k1")
	r, _ = store.ForKey(ctx, "k1")
	if !r.Empty() {
		t.Errorf("restrictions survived key deletion: %+v", r)
	}
}

// -----------------------------------------------------------------------------
// AccountStore Tests
// -----------------------------------------------------------------------------

func TestAccountStore_Ensure(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlstore.NewAccountStore(db)
	ctx := context.Background()

	if err := store.Ensure(ctx, "acc-1", t0); err != nil {
		t.Fatalf("Ensure error: %v", err)
	}
	if err := store.Ensure(ctx, "acc-1", t0.Add(time.Hour)); err != nil {
		t.Fatalf("second Ensure error: %v", err)
	}

	a, err := store.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if a.Delinquent {
		t.Error("new account should not be delinquent")
	}
	if !a.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want %v", a.CreatedAt, t0)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get missing = %v", err)
	}
}

// -----------------------------------------------------------------------------
// BillingStore Tests
// -----------------------------------------------------------------------------

func TestBillingStore_InvoiceRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	keys := sqlstore.NewKeyStore(db)
	usageStore := sqlstore.NewUsageStore(db)
	invoices := sqlstore.NewInvoiceStore(db)
	store := sqlstore.NewBillingStore(db)

	paid := newKey("k1", "acc-1", key.TierPaid)
	free := newKey("k2", "acc-1", key.TierFree)
	other := newKey("k3", "acc-2", key.TierPaid)
	keys.Create(ctx, paid)
	keys.Create(ctx, free)
	keys.Create(ctx, other)

	march := billing.Period{Month: 3, Year: 2024}
	for i := 0; i < 10; i++ {
		usageStore.Record(ctx, usage.NewEvent("p"+string(rune('a'+i)), paid, march.Start().Add(time.Duration(i)*time.Hour)))
		usageStore.Record(ctx, usage.NewEvent("f"+string(rune('a'+i)), free, march.Start().Add(time.Duration(i)*time.Hour)))
	}
	// Outside the period on both sides.
	usageStore.Record(ctx, usage.NewEvent("o1", other, march.End()))
	usageStore.Record(ctx, usage.NewEvent("o2", other, march.Start().Add(-time.Second)))

	// Usage survives deletion of the paid key.
	keys.Delete(ctx, "k1")

	issued := time.Date(2024, 4, 1, 0, 5, 0, 0, time.UTC)
	var counts []usage.AccountCount
	err := store.Transaction(ctx, func(tx ports.BillingTx) error {
		ok, err := tx.EmitPeriod(ctx, march, issued)
		if err != nil || !ok {
			t.Fatalf("EmitPeriod = %v, %v", ok, err)
		}
		counts, err = tx.PaidUsageByAccount(ctx, march.Start(), march.End())
		if err != nil {
			return err
		}
		for _, c := range counts {
			inv, _ := billing.NewInvoice("inv-"+c.AccountID, c.AccountID, march, c.Count, billing.DefaultRate, issued, billing.DefaultDueDays)
			if err := tx.CreateInvoice(ctx, inv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction error: %v", err)
	}

	if len(counts) != 1 || counts[0].AccountID != "acc-1" || counts[0].Count != 10 {
		t.Fatalf("PaidUsageByAccount = %+v", counts)
	}

	inv, err := invoices.Get(ctx, "inv-acc-1")
	if err != nil {
		t.Fatalf("Get invoice error: %v", err)
	}
	if !inv.Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Amount = %s, want 5", inv.Amount)
	}
	if inv.Period != march || inv.Count != 10 || inv.Paid || inv.PaidAt != nil {
		t.Errorf("unexpected invoice %+v", inv)
	}
	if !inv.DueAt.Equal(issued.AddDate(0, 0, 60)) {
		t.Errorf("DueAt = %v", inv.DueAt)
	}

	// A second emit for the same period is refused.
	store.Transaction(ctx, func(tx ports.BillingTx) error {
		ok, err := tx.EmitPeriod(ctx, march, issued.Add(time.Hour))
		if err != nil || ok {
			t.Errorf("second EmitPeriod = %v, %v", ok, err)
		}
		return nil
	})

	periods, _ := invoices.ListEmittedPeriods(ctx)
	if len(periods) != 1 || periods[0] != march {
		t.Errorf("ListEmittedPeriods = %v", periods)
	}
}

func TestBillingStore_RollbackLeavesNoMarker(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := sqlstore.NewBillingStore(db)
	march := billing.Period{Month: 3, Year: 2024}
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx ports.BillingTx) error {
		if _, err := tx.EmitPeriod(ctx, march, t0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction error = %v, want boom", err)
	}

	periods, _ := sqlstore.NewInvoiceStore(db).ListEmittedPeriods(ctx)
	if len(periods) != 0 {
		t.Errorf("marker persisted after rollback: %v", periods)
	}
}

func TestBillingStore_Delinquency(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := sqlstore.NewBillingStore(db)
	accounts := sqlstore.NewAccountStore(db)
	invoices := sqlstore.NewInvoiceStore(db)

	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	today := billing.Today(now)

	overdue := billing.Invoice{ID: "inv-1", AccountID: "acc-1", Period: billing.Period{Month: 3, Year: 2024},
		Count: 2, Amount: decimal.NewFromInt(1), IssuedAt: now.AddDate(0, 0, -70), DueAt: now.AddDate(0, 0, -10)}
	dueToday := billing.Invoice{ID: "inv-2", AccountID: "acc-2", Period: billing.Period{Month: 3, Year: 2024},
		Count: 2, Amount: decimal.NewFromInt(1), IssuedAt: now.AddDate(0, 0, -60), DueAt: today.Add(time.Hour)}

	err := store.Transaction(ctx, func(tx ports.BillingTx) error {
		if err := tx.CreateInvoice(ctx, overdue); err != nil {
			return err
		}
		return tx.CreateInvoice(ctx, dueToday)
	})
	if err != nil {
		t.Fatalf("create invoices: %v", err)
	}

	var flagged []string
	store.Transaction(ctx, func(tx ports.BillingTx) error {
		var err error
		flagged, err = tx.OverdueAccounts(ctx, today)
		if err != nil {
			return err
		}
		for _, id := range flagged {
			if err := tx.SetDelinquent(ctx, id, true); err != nil {
				return err
			}
		}
		return nil
	})
	if len(flagged) != 1 || flagged[0] != "acc-1" {
		t.Fatalf("OverdueAccounts = %v", flagged)
	}
	if a, err := accounts.Get(ctx, "acc-1"); err != nil || !a.Delinquent {
		t.Errorf("acc-1 = %+v, %v", a, err)
	}

	err = store.Transaction(ctx, func(tx ports.BillingTx) error {
		if err := tx.SetInvoicePaid(ctx, "inv-1", now); err != nil {
			return err
		}
		n, err := tx.CountOverdue(ctx, "acc-1", today)
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("CountOverdue = %d, want 0", n)
		}
		return tx.SetDelinquent(ctx, "acc-1", false)
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	inv, _ := invoices.Get(ctx, "inv-1")
	if !inv.Paid || inv.PaidAt == nil || !inv.PaidAt.Equal(now) {
		t.Errorf("paid invoice = %+v", inv)
	}
	if a, _ := accounts.Get(ctx, "acc-1"); a.Delinquent {
		t.Error("acc-1 should no longer be delinquent")
	}

	list, _ := invoices.ListByAccount(ctx, "acc-2")
	if len(list) != 1 || list[0].ID != "inv-2" {
		t.Errorf("ListByAccount = %+v", list)
	}
}
