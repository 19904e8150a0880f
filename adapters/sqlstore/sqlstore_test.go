package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

func newMockDB(t *testing.T, dialect Dialect) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return New(mockDB, dialect), mock
}

func TestRebind(t *testing.T) {
	query := "SELECT a FROM t WHERE x = ? AND y < ?"

	assert.Equal(t, query, rebind(SQLite, query))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y < $2", rebind(Postgres, query))
}

func TestKeyStore_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t, SQLite)

	mock.ExpectQuery(`SELECT .* FROM api_keys WHERE id = \?`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewKeyStore(db).Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyStore_SetActive_PostgresPlaceholders(t *testing.T) {
	db, mock := newMockDB(t, Postgres)

	mock.ExpectExec(`UPDATE api_keys SET active = \$1 WHERE id = \$2`).
		WithArgs(false, "k1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewKeyStore(db).SetActive(context.Background(), "k1", false)

	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyStore_Create_Duplicate(t *testing.T) {
	db, mock := newMockDB(t, Postgres)

	mock.ExpectExec(`INSERT INTO api_keys`).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "api_keys_token_key"`))

	err := NewKeyStore(db).Create(context.Background(), testKey())

	assert.ErrorIs(t, err, ports.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBillingStore_Transaction(t *testing.T) {
	period := billing.Period{Month: 3, Year: 2024}
	at := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("commits when fn succeeds", func(t *testing.T) {
		db, mock := newMockDB(t, SQLite)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO emitted_periods`).
			WithArgs(2024, 3, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var emitted bool
		err := NewBillingStore(db).Transaction(context.Background(), func(tx ports.BillingTx) error {
			var err error
			emitted, err = tx.EmitPeriod(context.Background(), period, at)
			return err
		})

		require.NoError(t, err)
		assert.True(t, emitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already emitted period reports false", func(t *testing.T) {
		db, mock := newMockDB(t, SQLite)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO emitted_periods`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		var emitted bool
		err := NewBillingStore(db).Transaction(context.Background(), func(tx ports.BillingTx) error {
			var err error
			emitted, err = tx.EmitPeriod(context.Background(), period, at)
			return err
		})

		require.NoError(t, err)
		assert.False(t, emitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		db, mock := newMockDB(t, SQLite)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO emitted_periods`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO invoices`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := NewBillingStore(db).Transaction(context.Background(), func(tx ports.BillingTx) error {
			if _, err := tx.EmitPeriod(context.Background(), period, at); err != nil {
				return err
			}
			inv, _ := billing.NewInvoice("inv-1", "acc-1", period, 4, decimal.RequireFromString("0.5"), at, 60)
			return tx.CreateInvoice(context.Background(), inv)
		})

		assert.EqualError(t, err, "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMockDB(t, SQLite)

		mock.ExpectBegin().WillReturnError(errors.New("locked"))

		called := false
		err := NewBillingStore(db).Transaction(context.Background(), func(tx ports.BillingTx) error {
			called = true
			return nil
		})

		assert.Error(t, err)
		assert.False(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBillingTx_SetInvoicePaid_NotFound(t *testing.T) {
	db, mock := newMockDB(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE invoices SET paid = \$1, paid_at = \$2 WHERE id = \$3`).
		WithArgs(true, sqlmock.AnyArg(), "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewBillingStore(db).Transaction(context.Background(), func(tx ports.BillingTx) error {
		return tx.SetInvoicePaid(context.Background(), "nope", time.Now())
	})

	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func testKey() key.Key {
	return key.New("k1", "acc-1", key.TierFree, "00112233445566778899aabbccddeeff", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}
