package repository

import (
	"context"
	"time"

	"github.com/ruralpay/remittance/internal/models"
)

// RemittanceStore persists the remittance aggregate. Every read is tenant-scoped
// and every write after Insert is conditional on the version the caller loaded.
type RemittanceStore interface {
	// Insert stores a new aggregate at version 1. A live secret code collision
	// returns a Conflict wrapping models.ErrDuplicateCode.
	Insert(ctx context.Context, r *models.Remittance) error
	Load(ctx context.Context, tenantID, remittanceID string) (*models.Remittance, error)
	// LoadForRedeem returns the aggregate only when it targets receiverBranchID.
	// A code lookup prefers the live row over terminal ones.
	LoadForRedeem(ctx context.Context, tenantID string, lookup models.RedeemLookup, receiverBranchID string) (*models.Remittance, error)
	// Save writes r if the stored version still equals expectedVersion and
	// sets r.Version to expectedVersion+1. Otherwise it returns Conflict.
	Save(ctx context.Context, r *models.Remittance, expectedVersion int64) error
	// ListExpiring returns PENDING aggregates with expiresAt <= now, oldest
	// first, at most perTenant per tenant and limit overall.
	ListExpiring(ctx context.Context, now time.Time, perTenant, limit int) ([]*models.Remittance, error)
	// ListPendingRelease returns terminal aggregates whose hold release has not been confirmed.
	ListPendingRelease(ctx context.Context, limit int) ([]*models.Remittance, error)
	// ListPendingDebit returns aggregates whose debit claim was taken at or
	// before claimedBefore and never completed or rolled back.
	ListPendingDebit(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.Remittance, error)
	List(ctx context.Context, tenantID string, filter models.ListFilter, page, size int) (*models.Page, error)
	Stats(ctx context.Context, tenantID string, filter models.ListFilter) (*models.Stats, error)
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps paging input to sane values.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
