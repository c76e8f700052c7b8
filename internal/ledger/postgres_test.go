package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/models"
)

var accountCols = []string{"id", "tenant_id", "owner_id", "currency", "balance", "frozen_balance", "status", "version", "updated_at"}
var holdCols = []string{"hold_id", "tenant_id", "account_id", "amount", "currency", "status", "created_at", "updated_at"}

func newTestLedger(t *testing.T) (*PostgresLedger, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	clock := idgen.NewManualClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	return NewPostgresLedger(db, clock, zerolog.Nop()), mock, func() { db.Close() }
}

func TestPostgresLedger_Freeze(t *testing.T) {
	ctx := context.Background()

	t.Run("successful freeze", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE tenant_id = \\$1 AND owner_id = \\$2 AND currency = \\$3 FOR UPDATE").
			WithArgs("T1", "U1", "USD").
			WillReturnRows(sqlmock.NewRows(accountCols).
				AddRow("acct-1", "T1", "U1", "USD", "5000", "0", "ACTIVE", 1, time.Now()))
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, frozen_balance = \\$2, version = version \\+ 1, updated_at = \\$3 WHERE id = \\$4 AND version = \\$5").
			WithArgs(decimal.NewFromInt(5000), decimal.NewFromInt(1000), sqlmock.AnyArg(), "acct-1", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_holds").
			WithArgs(sqlmock.AnyArg(), "T1", "acct-1", decimal.NewFromInt(1000), "USD", "ACTIVE", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		handle, err := l.Freeze(ctx, "T1", "U1", "USD", decimal.NewFromInt(1000))
		require.NoError(t, err)
		_, parseErr := uuid.Parse(string(handle))
		assert.NoError(t, parseErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds counts frozen balance", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM accounts").
			WithArgs("T1", "U1", "USD").
			WillReturnRows(sqlmock.NewRows(accountCols).
				AddRow("acct-1", "T1", "U1", "USD", "5000", "4500", "ACTIVE", 3, time.Now()))
		mock.ExpectRollback()

		_, err := l.Freeze(ctx, "T1", "U1", "USD", decimal.NewFromInt(1000))
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inactive account", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM accounts").
			WithArgs("T1", "U1", "USD").
			WillReturnRows(sqlmock.NewRows(accountCols).
				AddRow("acct-1", "T1", "U1", "USD", "5000", "0", "SUSPENDED", 3, time.Now()))
		mock.ExpectRollback()

		_, err := l.Freeze(ctx, "T1", "U1", "USD", decimal.NewFromInt(1000))
		assert.ErrorIs(t, err, models.ErrAccountInactive)
	})

	t.Run("missing account", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM accounts").
			WithArgs("T1", "U1", "EUR").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := l.Freeze(ctx, "T1", "U1", "EUR", decimal.NewFromInt(10))
		assert.ErrorIs(t, err, models.ErrAccountInactive)
	})

	t.Run("optimistic lock failure", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM accounts").
			WithArgs("T1", "U1", "USD").
			WillReturnRows(sqlmock.NewRows(accountCols).
				AddRow("acct-1", "T1", "U1", "USD", "5000", "0", "ACTIVE", 1, time.Now()))
		mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := l.Freeze(ctx, "T1", "U1", "USD", decimal.NewFromInt(1000))
		assert.ErrorIs(t, err, models.ErrLedger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresLedger_Debit(t *testing.T) {
	ctx := context.Background()
	holdID := uuid.NewString()

	t.Run("debits balance and records entry", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_holds WHERE hold_id = \\$1 FOR UPDATE").
			WithArgs(holdID).
			WillReturnRows(sqlmock.NewRows(holdCols).
				AddRow(holdID, "T1", "acct-1", "1000", "USD", "ACTIVE", time.Now(), time.Now()))
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(accountCols).
				AddRow("acct-1", "T1", "U1", "USD", "5000", "1000", "ACTIVE", 2, time.Now()))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("T1", holdID, "acct-1", decimal.NewFromInt(-1000), "DEBIT", decimal.NewFromInt(4000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(decimal.NewFromInt(4000), decimal.NewFromInt(0), sqlmock.AnyArg(), "acct-1", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE ledger_holds SET status = \\$1").
			WithArgs("DEBITED", sqlmock.AnyArg(), holdID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := l.Debit(ctx, models.FreezeHandle(holdID))
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeat debit is a no-op", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_holds").
			WithArgs(holdID).
			WillReturnRows(sqlmock.NewRows(holdCols).
				AddRow(holdID, "T1", "acct-1", "1000", "USD", "DEBITED", time.Now(), time.Now()))
		mock.ExpectRollback()

		assert.NoError(t, l.Debit(ctx, models.FreezeHandle(holdID)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("released hold cannot be debited", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_holds").
			WithArgs(holdID).
			WillReturnRows(sqlmock.NewRows(holdCols).
				AddRow(holdID, "T1", "acct-1", "1000", "USD", "RELEASED", time.Now(), time.Now()))
		mock.ExpectRollback()

		err := l.Debit(ctx, models.FreezeHandle(holdID))
		assert.ErrorIs(t, err, models.ErrLedger)
		assert.ErrorIs(t, err, models.ErrHoldReleased)
		assert.NotErrorIs(t, err, models.ErrUnknownHandle)
	})
}

func TestPostgresLedger_Unfreeze(t *testing.T) {
	ctx := context.Background()
	holdID := uuid.NewString()

	t.Run("releases frozen balance without entry", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_holds").
			WithArgs(holdID).
			WillReturnRows(sqlmock.NewRows(holdCols).
				AddRow(holdID, "T1", "acct-1", "250.50", "USD", "ACTIVE", time.Now(), time.Now()))
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1").
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(accountCols).
				AddRow("acct-1", "T1", "U1", "USD", "5000", "250.50", "ACTIVE", 7, time.Now()))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(decimal.NewFromInt(5000), decimal.NewFromInt(0), sqlmock.AnyArg(), "acct-1", 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE ledger_holds").
			WithArgs("RELEASED", sqlmock.AnyArg(), holdID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, l.Unfreeze(ctx, models.FreezeHandle(holdID)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown handle", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_holds").
			WithArgs(holdID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := l.Unfreeze(ctx, models.FreezeHandle(holdID))
		assert.ErrorIs(t, err, models.ErrUnknownHandle)
		assert.ErrorIs(t, err, models.ErrLedger)
	})

	t.Run("debited hold cannot be released", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_holds").
			WithArgs(holdID).
			WillReturnRows(sqlmock.NewRows(holdCols).
				AddRow(holdID, "T1", "acct-1", "1000", "USD", "DEBITED", time.Now(), time.Now()))
		mock.ExpectRollback()

		err := l.Unfreeze(ctx, models.FreezeHandle(holdID))
		assert.ErrorIs(t, err, models.ErrHoldDebited)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed handle never reaches the database", func(t *testing.T) {
		l, mock, done := newTestLedger(t)
		defer done()

		err := l.Unfreeze(ctx, "not-a-hold")
		assert.ErrorIs(t, err, models.ErrUnknownHandle)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
