package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ruralpay/remittance/internal/audit"
	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/notify"
	"github.com/ruralpay/remittance/internal/token"
)

// LedgerPort is the account subsystem as seen by the remittance core.
// Unfreeze and Debit are idempotent per handle.
type LedgerPort interface {
	Freeze(ctx context.Context, tenantID, ownerID, currency string, amount decimal.Decimal) (models.FreezeHandle, error)
	Unfreeze(ctx context.Context, handle models.FreezeHandle) error
	Debit(ctx context.Context, handle models.FreezeHandle) error
}

type RateProvider interface {
	CurrentRate(ctx context.Context, tenantID, from, to string) (models.Rate, error)
}

type TokenCodec interface {
	Sign(p token.Payload) (string, error)
	Verify(raw string) (token.Payload, error)
}

// Notifier delivers fire-and-forget messages to customers.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Notification) error
}

// SettlementPublisher hands completed remittances to clearing.
type SettlementPublisher interface {
	Publish(ctx context.Context, r *models.Remittance, at time.Time) error
}

// AuditHistory reads back the audit trail of one remittance.
type AuditHistory interface {
	History(ctx context.Context, tenantID, remittanceID string) ([]audit.Event, error)
}
