package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ruralpay/remittance/internal/database"
	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/models"
)

// PostgresLedger reserves and settles sender funds against the accounts table.
// A FreezeHandle is the id of a ledger_holds row.
type PostgresLedger struct {
	db    *sql.DB
	clock idgen.Clock
	log   zerolog.Logger
}

func NewPostgresLedger(db *sql.DB, clock idgen.Clock, log zerolog.Logger) *PostgresLedger {
	return &PostgresLedger{db: db, clock: clock, log: log}
}

func (l *PostgresLedger) Freeze(ctx context.Context, tenantID, ownerID, currency string, amount decimal.Decimal) (models.FreezeHandle, error) {
	if !amount.IsPositive() {
		return "", models.NewError(models.KindValidation, "freeze amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", database.ClassifyError(err, "begin freeze")
	}
	defer tx.Rollback()

	account, err := l.lockOwnerAccount(ctx, tx, tenantID, ownerID, currency)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.NewError(models.KindAccountInactive, "no %s account for %s", currency, ownerID)
	}
	if err != nil {
		return "", database.ClassifyError(err, "lock account")
	}

	if account.Status != models.AccountStatusActive {
		return "", models.NewError(models.KindAccountInactive, "account %s is %s", account.ID, account.Status)
	}
	if account.Available().LessThan(amount) {
		return "", models.NewError(models.KindInsufficientFunds, "available %s is less than %s", account.Available(), amount)
	}

	now := l.clock.Now()
	if err := l.updateAccount(ctx, tx, account.ID, account.Balance, account.FrozenBalance.Add(amount), account.Version); err != nil {
		return "", err
	}

	holdID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_holds (hold_id, tenant_id, account_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		holdID, tenantID, account.ID, amount, currency, models.HoldStatusActive, now, now)
	if err != nil {
		return "", database.ClassifyError(err, "insert hold")
	}

	if err := tx.Commit(); err != nil {
		return "", database.ClassifyError(err, "commit freeze")
	}

	l.log.Debug().Str("hold_id", holdID).Str("account_id", account.ID).Stringer("amount", amount).Msg("funds frozen")
	return models.FreezeHandle(holdID), nil
}

// Unfreeze releases the hold. Releasing an already released hold is a no-op.
func (l *PostgresLedger) Unfreeze(ctx context.Context, handle models.FreezeHandle) error {
	return l.settle(ctx, handle, models.HoldStatusReleased)
}

// Debit takes the held amount from the account balance. Debiting twice is a no-op.
func (l *PostgresLedger) Debit(ctx context.Context, handle models.FreezeHandle) error {
	return l.settle(ctx, handle, models.HoldStatusDebited)
}

func (l *PostgresLedger) settle(ctx context.Context, handle models.FreezeHandle, target models.HoldStatus) error {
	if _, err := uuid.Parse(string(handle)); err != nil {
		return models.WrapError(models.KindLedgerError, models.ErrUnknownHandle, string(handle))
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return database.ClassifyError(err, "begin settle")
	}
	defer tx.Rollback()

	hold, err := l.lockHold(ctx, tx, string(handle))
	if errors.Is(err, sql.ErrNoRows) {
		return models.WrapError(models.KindLedgerError, models.ErrUnknownHandle, string(handle))
	}
	if err != nil {
		return database.ClassifyError(err, "lock hold")
	}

	switch hold.Status {
	case target:
		return nil
	case models.HoldStatusActive:
	default:
		return models.SettledError(hold.ID, hold.Status)
	}

	account, err := l.lockAccountByID(ctx, tx, hold.AccountID)
	if err != nil {
		return database.ClassifyError(err, "lock account")
	}

	balance := account.Balance
	frozen := account.FrozenBalance.Sub(hold.Amount)
	if target == models.HoldStatusDebited {
		balance = balance.Sub(hold.Amount)
		if err := l.createLedgerEntry(ctx, tx, hold, account.ID, balance); err != nil {
			return err
		}
	}

	if err := l.updateAccount(ctx, tx, account.ID, balance, frozen, account.Version); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE ledger_holds SET status = $1, updated_at = $2 WHERE hold_id = $3`,
		target, l.clock.Now(), hold.ID)
	if err != nil {
		return database.ClassifyError(err, "update hold")
	}

	if err := tx.Commit(); err != nil {
		return database.ClassifyError(err, "commit settle")
	}

	l.log.Debug().Str("hold_id", hold.ID).Str("status", string(target)).Msg("hold settled")
	return nil
}

const accountColumns = `id, tenant_id, owner_id, currency, balance, frozen_balance, status, version, updated_at`

func (l *PostgresLedger) lockOwnerAccount(ctx context.Context, tx *sql.Tx, tenantID, ownerID, currency string) (*models.Account, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE tenant_id = $1 AND owner_id = $2 AND currency = $3
		FOR UPDATE`, tenantID, ownerID, currency)
	return scanAccount(row)
}

func (l *PostgresLedger) lockAccountByID(ctx context.Context, tx *sql.Tx, accountID string) (*models.Account, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.OwnerID, &a.Currency, &a.Balance, &a.FrozenBalance, &a.Status, &a.Version, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (l *PostgresLedger) lockHold(ctx context.Context, tx *sql.Tx, holdID string) (*models.Hold, error) {
	var h models.Hold
	err := tx.QueryRowContext(ctx, `
		SELECT hold_id, tenant_id, account_id, amount, currency, status, created_at, updated_at
		FROM ledger_holds
		WHERE hold_id = $1
		FOR UPDATE`, holdID).
		Scan(&h.ID, &h.TenantID, &h.AccountID, &h.Amount, &h.Currency, &h.Status, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (l *PostgresLedger) createLedgerEntry(ctx context.Context, tx *sql.Tx, hold *models.Hold, accountID string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (tenant_id, hold_id, account_id, amount, entry_type, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		hold.TenantID, hold.ID, accountID, hold.Amount.Neg(), "DEBIT", balance, l.clock.Now())
	if err != nil {
		return database.ClassifyError(err, "insert ledger entry")
	}
	return nil
}

func (l *PostgresLedger) updateAccount(ctx context.Context, tx *sql.Tx, accountID string, balance, frozen decimal.Decimal, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, frozen_balance = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		balance, frozen, l.clock.Now(), accountID, version)
	if err != nil {
		return database.ClassifyError(err, "update account")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return database.ClassifyError(err, "update account")
	}
	if rowsAffected == 0 {
		return models.NewError(models.KindLedgerError, "optimistic lock failed for account %s", accountID)
	}
	return nil
}
