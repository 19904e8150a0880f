package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// InvoiceStore implements ports.InvoiceStore.
type InvoiceStore struct {
	db *DB
}

// NewInvoiceStore creates a new SQL invoice store.
func NewInvoiceStore(db *DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

const invoiceColumns = `id, account_id, period_year, period_month, usage_count, amount, issued_at, due_at, paid, paid_at`

// Get retrieves an invoice by ID.
func (s *InvoiceStore) Get(ctx context.Context, id string) (billing.Invoice, error) {
	return getInvoice(ctx, s.db.conn(), id)
}

// ListByAccount returns an account's invoices, newest period first.
func (s *InvoiceStore) ListByAccount(ctx context.Context, accountID string) ([]billing.Invoice, error) {
	rows, err := s.db.conn().query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE account_id = ?
		ORDER BY period_year DESC, period_month DESC, id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListEmittedPeriods returns every period that has been billed, oldest first.
func (s *InvoiceStore) ListEmittedPeriods(ctx context.Context) ([]billing.Period, error) {
	rows, err := s.db.conn().query(ctx, `
		SELECT period_year, period_month FROM emitted_periods ORDER BY period_year, period_month
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []billing.Period
	for rows.Next() {
		var p billing.Period
		if err := rows.Scan(&p.Year, &p.Month); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func getInvoice(ctx context.Context, c conn, id string) (billing.Invoice, error) {
	row := c.queryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = ?
	`, id)
	return scanInvoice(row)
}

func scanInvoice(sc scanner) (billing.Invoice, error) {
	var inv billing.Invoice
	var paidAt sql.NullTime

	err := sc.Scan(
		&inv.ID, &inv.AccountID, &inv.Period.Year, &inv.Period.Month,
		&inv.Count, &inv.Amount, &inv.IssuedAt, &inv.DueAt, &inv.Paid, &paidAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Invoice{}, ports.ErrNotFound
	}
	if err != nil {
		return billing.Invoice{}, err
	}

	inv.IssuedAt = inv.IssuedAt.UTC()
	inv.DueAt = inv.DueAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		inv.PaidAt = &t
	}
	return inv, nil
}

// Ensure interface compliance.
var _ ports.InvoiceStore = (*InvoiceStore)(nil)
