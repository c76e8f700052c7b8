package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruralpay/remittance/internal/database"
	"github.com/ruralpay/remittance/internal/models"
)

const remittanceColumns = `remittance_id, tenant_id, sender_branch_id, receiver_branch_id, type, status,
	sender_id, sender_contact, receiver_info, from_currency, to_currency,
	amount, exchange_rate, converted_amount, commission, total_amount,
	secret_code, qr_token, freeze_handle, hold_state, expires_at,
	approvals, status_history, notes, cancel_reason, redeemed_at, redeemed_by,
	created_by, created_at, updated_at, version`

const activeStatusList = `('PENDING', 'APPROVED', 'PROCESSING', 'RECEIVED')`

const secretCodeIndex = "uq_remittances_active_code"

type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewPostgresStore(db *sql.DB, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

func (s *PostgresStore) Insert(ctx context.Context, r *models.Remittance) error {
	r.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remittances (`+remittanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`,
		r.RemittanceID, r.TenantID, r.SenderBranchID, r.ReceiverBranchID, r.Type, r.Status,
		r.SenderID, r.SenderContact, r.ReceiverInfo, r.FromCurrency, r.ToCurrency,
		r.Amount, r.ExchangeRate, r.ConvertedAmount, r.Commission, r.TotalAmount,
		r.SecretCode, r.QRToken, string(r.FreezeHandle), r.HoldState, r.ExpiresAt,
		r.Approvals, r.StatusHistory, r.Notes, r.CancelReason, nullTime(r.RedeemedAt), r.RedeemedBy,
		r.CreatedBy, r.CreatedAt, r.UpdatedAt, r.Version)
	if err == nil {
		return nil
	}

	if database.IsUniqueViolation(err) && database.ConstraintName(err) == secretCodeIndex {
		return models.WrapError(models.KindConflict, models.ErrDuplicateCode, "insert remittance")
	}
	return database.ClassifyError(err, "insert remittance")
}

func (s *PostgresStore) Load(ctx context.Context, tenantID, remittanceID string) (*models.Remittance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+remittanceColumns+`
		FROM remittances
		WHERE tenant_id = $1 AND remittance_id = $2`, tenantID, remittanceID)

	r, err := scanRemittance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewError(models.KindNotFound, "remittance %s not found", remittanceID)
	}
	if err != nil {
		return nil, database.ClassifyError(err, "load remittance")
	}
	return r, nil
}

func (s *PostgresStore) LoadForRedeem(ctx context.Context, tenantID string, lookup models.RedeemLookup, receiverBranchID string) (*models.Remittance, error) {
	var row *sql.Row
	switch {
	case lookup.RemittanceID != "":
		row = s.db.QueryRowContext(ctx, `
			SELECT `+remittanceColumns+`
			FROM remittances
			WHERE tenant_id = $1 AND remittance_id = $2 AND receiver_branch_id = $3`,
			tenantID, lookup.RemittanceID, receiverBranchID)
	case lookup.SecretCode != "":
		row = s.db.QueryRowContext(ctx, `
			SELECT `+remittanceColumns+`
			FROM remittances
			WHERE tenant_id = $1 AND secret_code = $2 AND receiver_branch_id = $3
			ORDER BY (status IN `+activeStatusList+`) DESC, created_at DESC
			LIMIT 1`,
			tenantID, lookup.SecretCode, receiverBranchID)
	default:
		return nil, models.NewError(models.KindValidation, "secret code or remittance id is required")
	}

	r, err := scanRemittance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewError(models.KindNotFound, "remittance not found for branch %s", receiverBranchID)
	}
	if err != nil {
		return nil, database.ClassifyError(err, "load remittance for redeem")
	}
	return r, nil
}

func (s *PostgresStore) Save(ctx context.Context, r *models.Remittance, expectedVersion int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE remittances
		SET status = $1, hold_state = $2, approvals = $3, status_history = $4,
		    notes = $5, cancel_reason = $6, redeemed_at = $7, redeemed_by = $8,
		    updated_at = $9, version = version + 1
		WHERE tenant_id = $10 AND remittance_id = $11 AND version = $12`,
		r.Status, r.HoldState, r.Approvals, r.StatusHistory,
		r.Notes, r.CancelReason, nullTime(r.RedeemedAt), r.RedeemedBy,
		r.UpdatedAt, r.TenantID, r.RemittanceID, expectedVersion)
	if err != nil {
		return database.ClassifyError(err, "save remittance")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return database.ClassifyError(err, "save remittance")
	}
	if rowsAffected == 0 {
		return models.NewError(models.KindConflict, "remittance %s changed since version %d", r.RemittanceID, expectedVersion)
	}

	r.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) ListExpiring(ctx context.Context, now time.Time, perTenant, limit int) ([]*models.Remittance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+remittanceColumns+`
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY tenant_id ORDER BY expires_at) AS tenant_rank
			FROM remittances
			WHERE status = 'PENDING' AND expires_at <= $1
		) ranked
		WHERE tenant_rank <= $2
		ORDER BY expires_at
		LIMIT $3`, now, perTenant, limit)
	if err != nil {
		return nil, database.ClassifyError(err, "list expiring remittances")
	}
	return collect(rows)
}

func (s *PostgresStore) ListPendingRelease(ctx context.Context, limit int) ([]*models.Remittance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+remittanceColumns+`
		FROM remittances
		WHERE hold_state = 'RELEASE_PENDING'
		ORDER BY updated_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, database.ClassifyError(err, "list pending releases")
	}
	return collect(rows)
}

func (s *PostgresStore) ListPendingDebit(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.Remittance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+remittanceColumns+`
		FROM remittances
		WHERE hold_state = 'DEBIT_PENDING' AND updated_at <= $1
		ORDER BY updated_at
		LIMIT $2`, claimedBefore, limit)
	if err != nil {
		return nil, database.ClassifyError(err, "list pending debits")
	}
	return collect(rows)
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, filter models.ListFilter, page, size int) (*models.Page, error) {
	page, size = NormalizePage(page, size)
	where, args := filterClause(tenantID, filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM remittances WHERE `+where, args...).Scan(&total); err != nil {
		return nil, database.ClassifyError(err, "count remittances")
	}

	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM remittances
		WHERE %s
		ORDER BY created_at DESC, remittance_id
		LIMIT $%d OFFSET $%d`, remittanceColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, database.ClassifyError(err, "list remittances")
	}

	items, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Remittance{}
	}
	return &models.Page{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *PostgresStore) Stats(ctx context.Context, tenantID string, filter models.ListFilter) (*models.Stats, error) {
	where, args := filterClause(tenantID, filter)

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, from_currency, COUNT(*), COALESCE(SUM(amount), 0)
		FROM remittances
		WHERE `+where+`
		GROUP BY status, from_currency
		ORDER BY status, from_currency`, args...)
	if err != nil {
		return nil, database.ClassifyError(err, "remittance stats")
	}
	defer rows.Close()

	stats := &models.Stats{Totals: []models.StatusTotal{}}
	for rows.Next() {
		var t models.StatusTotal
		if err := rows.Scan(&t.Status, &t.Currency, &t.Count, &t.TotalAmount); err != nil {
			return nil, database.ClassifyError(err, "scan stats")
		}
		stats.Count += t.Count
		stats.Totals = append(stats.Totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, database.ClassifyError(err, "remittance stats")
	}
	return stats, nil
}

func filterClause(tenantID string, f models.ListFilter) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{tenantID}

	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s $%d", column, len(args)))
	}

	if f.Status != "" {
		add("status =", f.Status)
	}
	if f.Type != "" {
		add("type =", f.Type)
	}
	if f.SenderID != "" {
		add("sender_id =", f.SenderID)
	}
	if f.SenderBranchID != "" {
		add("sender_branch_id =", f.SenderBranchID)
	}
	if f.ReceiverBranchID != "" {
		add("receiver_branch_id =", f.ReceiverBranchID)
	}
	if f.CreatedFrom != nil {
		add("created_at >=", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at <", *f.CreatedTo)
	}

	return strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRemittance(row scanner) (*models.Remittance, error) {
	var (
		r          models.Remittance
		handle     string
		redeemedAt sql.NullTime
	)
	err := row.Scan(
		&r.RemittanceID, &r.TenantID, &r.SenderBranchID, &r.ReceiverBranchID, &r.Type, &r.Status,
		&r.SenderID, &r.SenderContact, &r.ReceiverInfo, &r.FromCurrency, &r.ToCurrency,
		&r.Amount, &r.ExchangeRate, &r.ConvertedAmount, &r.Commission, &r.TotalAmount,
		&r.SecretCode, &r.QRToken, &handle, &r.HoldState, &r.ExpiresAt,
		&r.Approvals, &r.StatusHistory, &r.Notes, &r.CancelReason, &redeemedAt, &r.RedeemedBy,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	r.FreezeHandle = models.FreezeHandle(handle)
	if redeemedAt.Valid {
		t := redeemedAt.Time
		r.RedeemedAt = &t
	}
	return &r, nil
}

func collect(rows *sql.Rows) ([]*models.Remittance, error) {
	defer rows.Close()

	var out []*models.Remittance
	for rows.Next() {
		r, err := scanRemittance(rows)
		if err != nil {
			return nil, database.ClassifyError(err, "scan remittance")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, database.ClassifyError(err, "iterate remittances")
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
