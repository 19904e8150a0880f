// Package billing provides invoice and billing-period value types and pure functions.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRate is the amount charged per admitted paid-tier request.
var DefaultRate = decimal.RequireFromString("0.5")

// DefaultDueDays is how long an account has to pay an invoice.
const DefaultDueDays = 60

// ErrInvalidPeriod is returned for out-of-range months or years.
var ErrInvalidPeriod = errors.New("invalid billing period")

// Period identifies one calendar month.
type Period struct {
	Month int
	Year  int
}

// PeriodOf returns the period containing t (UTC).
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// PreviousPeriod returns the calendar month immediately preceding now (UTC).
// This is a PURE function.
func PreviousPeriod(now time.Time) Period {
	return PeriodOf(PeriodOf(now).Start().AddDate(0, -1, 0))
}

// Validate checks the period fields.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 || p.Year < 1 {
		return fmt.Errorf("%w: %d/%d", ErrInvalidPeriod, p.Month, p.Year)
	}
	return nil
}

// Start returns the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following period (exclusive bound).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return PeriodOf(t), nil
}

// Invoice is a bill for one account and one period (value type).
type Invoice struct {
	ID        string
	AccountID string
	Period    Period
	Count     int64
	Amount    decimal.Decimal
	IssuedAt  time.Time
	DueAt     time.Time
	Paid      bool
	PaidAt    *time.Time
}

// Amount computes count * rate rounded to cents.
// This is a PURE function.
func Amount(count int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(count).Mul(rate).Round(2)
}

// NewInvoice builds an unpaid invoice. It returns false for a
// non-positive count, since no zero-amount invoice is ever issued.
// This is a PURE function.
func NewInvoice(id, accountID string, p Period, count int64, rate decimal.Decimal, issued time.Time, dueDays int) (Invoice, bool) {
	if count <= 0 {
		return Invoice{}, false
	}
	issued = issued.UTC()
	return Invoice{
		ID:        id,
		AccountID: accountID,
		Period:    p,
		Count:     count,
		Amount:    Amount(count, rate),
		IssuedAt:  issued,
		DueAt:     issued.AddDate(0, 0, dueDays),
		Paid:      false,
	}, true
}

// Today returns midnight UTC of now's day, the cutoff for overdue checks.
func Today(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// IsOverdue reports whether the invoice is unpaid and its due date is before today.
func (inv Invoice) IsOverdue(now time.Time) bool {
	return !inv.Paid && inv.DueAt.Before(Today(now))
}

// RunResult describes one invoice generation run.
type RunResult struct {
	Period   Period
	Skipped  bool // period was already emitted
	Invoices []Invoice
	Total    decimal.Decimal
}

// PaymentResult describes the outcome of marking an invoice paid.
type PaymentResult struct {
	Invoice            Invoice
	AlreadySettled     bool
	DelinquencyCleared bool
}
