package memory

import (
	"context"
	"sort"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// InvoiceStore is an in-memory implementation of ports.InvoiceStore.
type InvoiceStore struct {
	db *DB
}

// NewInvoiceStore creates an invoice store backed by db.
func NewInvoiceStore(db *DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// Get retrieves an invoice by ID.
func (s *InvoiceStore) Get(ctx context.Context, id string) (billing.Invoice, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	inv, ok := s.db.invoices[id]
	if !ok {
		return billing.Invoice{}, ports.ErrNotFound
	}
	return inv, nil
}

// ListByAccount returns an account's invoices, newest period first.
func (s *InvoiceStore) ListByAccount(ctx context.Context, accountID string) ([]billing.Invoice, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []billing.Invoice
	for _, inv := range s.db.invoices {
		if inv.AccountID == accountID {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Period, result[j].Period
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ListEmittedPeriods returns every billed period, oldest first.
func (s *InvoiceStore) ListEmittedPeriods(ctx context.Context) ([]billing.Period, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	result := make([]billing.Period, 0, len(s.db.periods))
	for p := range s.db.periods {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Start().Before(result[j].Start())
	})
	return result, nil
}

// Ensure interface compliance.
var _ ports.InvoiceStore = (*InvoiceStore)(nil)
