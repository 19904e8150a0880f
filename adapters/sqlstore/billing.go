package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/usage"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// BillingStore implements ports.BillingStore on a database transaction.
type BillingStore struct {
	db *DB
}

// NewBillingStore creates a new SQL billing store.
func NewBillingStore(db *DB) *BillingStore {
	return &BillingStore{db: db}
}

// Transaction runs fn inside a database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *BillingStore) Transaction(ctx context.Context, fn func(tx ports.BillingTx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&billingTx{c: conn{q: sqlTx, dialect: s.db.dialect}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type billingTx struct {
	c conn
}

func (t *billingTx) EmitPeriod(ctx context.Context, p billing.Period, at time.Time) (bool, error) {
	// The primary key on (period_year, period_month) makes the insert the
	// compare-and-swap: exactly one run sees a row affected.
	result, err := t.c.exec(ctx, `
		INSERT INTO emitted_periods (period_year, period_month, emitted_at)
		VALUES (?, ?, ?)
		ON CONFLICT (period_year, period_month) DO NOTHING
	`, p.Year, p.Month, at.UTC())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *billingTx) PaidUsageByAccount(ctx context.Context, start, end time.Time) ([]usage.AccountCount, error) {
	rows, err := t.c.query(ctx, `
		SELECT account_id, COUNT(*)
		FROM usage_events
		WHERE tier = ? AND occurred_at >= ? AND occurred_at < ?
		GROUP BY account_id
		ORDER BY account_id
	`, string(key.TierPaid), start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []usage.AccountCount
	for rows.Next() {
		var ac usage.AccountCount
		if err := rows.Scan(&ac.AccountID, &ac.Count); err != nil {
			return nil, err
		}
		counts = append(counts, ac)
	}
	return counts, rows.Err()
}

func (t *billingTx) CreateInvoice(ctx context.Context, inv billing.Invoice) error {
	var paidAt any
	if inv.PaidAt != nil {
		paidAt = inv.PaidAt.UTC()
	}
	_, err := t.c.exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.AccountID, inv.Period.Year, inv.Period.Month, inv.Count,
		inv.Amount, inv.IssuedAt.UTC(), inv.DueAt.UTC(), inv.Paid, paidAt)
	if isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

func (t *billingTx) GetInvoice(ctx context.Context, id string) (billing.Invoice, error) {
	return getInvoice(ctx, t.c, id)
}

func (t *billingTx) SetInvoicePaid(ctx context.Context, id string, at time.Time) error {
	result, err := t.c.exec(ctx, `
		UPDATE invoices SET paid = ?, paid_at = ? WHERE id = ?
	`, true, at.UTC(), id)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

func (t *billingTx) OverdueAccounts(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := t.c.query(ctx, `
		SELECT DISTINCT account_id
		FROM invoices
		WHERE paid = ? AND due_at < ?
		ORDER BY account_id
	`, false, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *billingTx) CountOverdue(ctx context.Context, accountID string, cutoff time.Time) (int64, error) {
	var n int64
	err := t.c.queryRow(ctx, `
		SELECT COUNT(*)
		FROM invoices
		WHERE account_id = ? AND paid = ? AND due_at < ?
	`, accountID, false, cutoff.UTC()).Scan(&n)
	return n, err
}

func (t *billingTx) SetDelinquent(ctx context.Context, accountID string, delinquent bool) error {
	// Accounts that never created a key through the API still get a row.
	_, err := t.c.exec(ctx, `
		INSERT INTO accounts (id, delinquent, created_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET delinquent = excluded.delinquent
	`, accountID, delinquent)
	return err
}

// Ensure interface compliance.
var (
	_ ports.BillingStore = (*BillingStore)(nil)
	_ ports.BillingTx    = (*billingTx)(nil)
)

