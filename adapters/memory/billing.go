package memory

import (
	"context"
	"maps"
	"sort"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/account"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// BillingStore is an in-memory implementation of ports.BillingStore.
//
// A transaction holds the DB write lock for its whole duration and works on
// copies of the invoice, account and period tables, which replace the
// originals only when fn succeeds. fn must not call other stores on the same
// DB.
type BillingStore struct {
	db *DB
}

// NewBillingStore creates a billing store backed by db.
func NewBillingStore(db *DB) *BillingStore {
	return &BillingStore{db: db}
}

// Transaction runs fn atomically.
func (s *BillingStore) Transaction(ctx context.Context, fn func(tx ports.BillingTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	tx := &billingTx{
		events:   s.db.events,
		invoices: maps.Clone(s.db.invoices),
		accounts: maps.Clone(s.db.accounts),
		periods:  maps.Clone(s.db.periods),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.db.invoices = tx.invoices
	s.db.accounts = tx.accounts
	s.db.periods = tx.periods
	return nil
}

type billingTx struct {
	events   map[string][]usage.Event // read-only
	invoices map[string]billing.Invoice
	accounts map[string]account.Account
	periods  map[billing.Period]time.Time
}

func (t *billingTx) EmitPeriod(ctx context.Context, p billing.Period, at time.Time) (bool, error) {
	if _, ok := t.periods[p]; ok {
		return false, nil
	}
	t.periods[p] = at.UTC()
	return true, nil
}

func (t *billingTx) PaidUsageByAccount(ctx context.Context, start, end time.Time) ([]usage.AccountCount, error) {
	counts := make(map[string]int64)
	for _, events := range t.events {
		for _, e := range events {
			if e.Tier == key.TierPaid && !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
				counts[e.AccountID]++
			}
		}
	}

	result := make([]usage.AccountCount, 0, len(counts))
	for id, n := range counts {
		result = append(result, usage.AccountCount{AccountID: id, Count: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result, nil
}

func (t *billingTx) CreateInvoice(ctx context.Context, inv billing.Invoice) error {
	if _, ok := t.invoices[inv.ID]; ok {
		return ports.ErrDuplicate
	}
	for _, existing := range t.invoices {
		if existing.AccountID == inv.AccountID && existing.Period == inv.Period {
			return ports.ErrDuplicate
		}
	}
	t.invoices[inv.ID] = inv
	return nil
}

func (t *billingTx) GetInvoice(ctx context.Context, id string) (billing.Invoice, error) {
	inv, ok := t.invoices[id]
	if !ok {
		return billing.Invoice{}, ports.ErrNotFound
	}
	return inv, nil
}

func (t *billingTx) SetInvoicePaid(ctx context.Context, id string, at time.Time) error {
	inv, ok := t.invoices[id]
	if !ok {
		return ports.ErrNotFound
	}
	paidAt := at.UTC()
	inv.Paid = true
	inv.PaidAt = &paidAt
	t.invoices[id] = inv
	return nil
}

func (t *billingTx) OverdueAccounts(ctx context.Context, cutoff time.Time) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, inv := range t.invoices {
		if !inv.Paid && inv.DueAt.Before(cutoff) && !seen[inv.AccountID] {
			seen[inv.AccountID] = true
			ids = append(ids, inv.AccountID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (t *billingTx) CountOverdue(ctx context.Context, accountID string, cutoff time.Time) (int64, error) {
	var n int64
	for _, inv := range t.invoices {
		if inv.AccountID == accountID && !inv.Paid && inv.DueAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (t *billingTx) SetDelinquent(ctx context.Context, accountID string, delinquent bool) error {
	a, ok := t.accounts[accountID]
	if !ok {
		a = account.Account{ID: accountID, CreatedAt: time.Now().UTC()}
	}
	a.Delinquent = delinquent
	t.accounts[accountID] = a
	return nil
}

// Ensure interface compliance.
var (
	_ ports.BillingStore = (*BillingStore)(nil)
	_ ports.BillingTx    = (*billingTx)(nil)
)
