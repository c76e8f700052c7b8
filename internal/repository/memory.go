package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ruralpay/remittance/internal/models"
)

// MemoryStore is a RemittanceStore held in process memory. It keeps the same
// uniqueness and version rules as PostgresStore and hands out copies only.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]*models.Remittance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]map[string]*models.Remittance)}
}

func (s *MemoryStore) Insert(ctx context.Context, r *models.Remittance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.rows[r.TenantID]
	if tenant == nil {
		tenant = make(map[string]*models.Remittance)
		s.rows[r.TenantID] = tenant
	}
	if _, exists := tenant[r.RemittanceID]; exists {
		return models.NewError(models.KindConflict, "remittance %s already exists", r.RemittanceID)
	}
	if r.Status.IsActive() {
		for _, other := range tenant {
			if other.Status.IsActive() && other.SecretCode == r.SecretCode {
				return models.WrapError(models.KindConflict, models.ErrDuplicateCode, "insert remittance")
			}
		}
	}

	r.Version = 1
	tenant[r.RemittanceID] = r.Clone()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, tenantID, remittanceID string) (*models.Remittance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[tenantID][remittanceID]
	if !ok {
		return nil, models.NewError(models.KindNotFound, "remittance %s not found", remittanceID)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) LoadForRedeem(ctx context.Context, tenantID string, lookup models.RedeemLookup, receiverBranchID string) (*models.Remittance, error) {
	if lookup.RemittanceID == "" && lookup.SecretCode == "" {
		return nil, models.NewError(models.KindValidation, "secret code or remittance id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Remittance
	for _, r := range s.rows[tenantID] {
		if r.ReceiverBranchID != receiverBranchID {
			continue
		}
		if lookup.RemittanceID != "" {
			if r.RemittanceID == lookup.RemittanceID {
				best = r
				break
			}
			continue
		}
		if r.SecretCode != lookup.SecretCode {
			continue
		}
		if best == nil || preferForRedeem(r, best) {
			best = r
		}
	}

	if best == nil {
		return nil, models.NewError(models.KindNotFound, "remittance not found for branch %s", receiverBranchID)
	}
	return best.Clone(), nil
}

func preferForRedeem(a, b *models.Remittance) bool {
	if a.Status.IsActive() != b.Status.IsActive() {
		return a.Status.IsActive()
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (s *MemoryStore) Save(ctx context.Context, r *models.Remittance, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rows[r.TenantID][r.RemittanceID]
	if !ok || current.Version != expectedVersion {
		return models.NewError(models.KindConflict, "remittance %s changed since version %d", r.RemittanceID, expectedVersion)
	}

	r.Version = expectedVersion + 1
	s.rows[r.TenantID][r.RemittanceID] = r.Clone()
	return nil
}

func (s *MemoryStore) ListExpiring(ctx context.Context, now time.Time, perTenant, limit int) ([]*models.Remittance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Remittance
	for _, tenant := range s.rows {
		var due []*models.Remittance
		for _, r := range tenant {
			if r.Status == models.StatusPending && !r.ExpiresAt.After(now) {
				due = append(due, r)
			}
		}
		sortByExpiry(due)
		if len(due) > perTenant {
			due = due[:perTenant]
		}
		for _, r := range due {
			out = append(out, r.Clone())
		}
	}

	sortByExpiry(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListPendingRelease(ctx context.Context, limit int) ([]*models.Remittance, error) {
	return s.byHoldState(func(r *models.Remittance) bool {
		return r.HoldState == models.HoldReleasePending
	}, limit), nil
}

func (s *MemoryStore) ListPendingDebit(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.Remittance, error) {
	return s.byHoldState(func(r *models.Remittance) bool {
		return r.HoldState == models.HoldDebitPending && !r.UpdatedAt.After(claimedBefore)
	}, limit), nil
}

// byHoldState returns clones of matching rows, least recently updated first.
func (s *MemoryStore) byHoldState(match func(*models.Remittance) bool, limit int) []*models.Remittance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Remittance
	for _, tenant := range s.rows {
		for _, r := range tenant {
			if match(r) {
				out = append(out, r.Clone())
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, filter models.ListFilter, page, size int) (*models.Page, error) {
	page, size = NormalizePage(page, size)

	s.mu.RLock()
	matched := s.matching(tenantID, filter)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].RemittanceID < matched[j].RemittanceID
	})

	items := []*models.Remittance{}
	start := (page - 1) * size
	for i := start; i < len(matched) && i < start+size; i++ {
		items = append(items, matched[i])
	}
	return &models.Page{Items: items, Total: len(matched), Page: page, Size: size}, nil
}

func (s *MemoryStore) Stats(ctx context.Context, tenantID string, filter models.ListFilter) (*models.Stats, error) {
	s.mu.RLock()
	matched := s.matching(tenantID, filter)
	s.mu.RUnlock()

	type group struct {
		status   models.Status
		currency string
	}
	totals := make(map[group]*models.StatusTotal)
	for _, r := range matched {
		g := group{r.Status, r.FromCurrency}
		t, ok := totals[g]
		if !ok {
			t = &models.StatusTotal{Status: r.Status, Currency: r.FromCurrency, TotalAmount: decimal.Zero}
			totals[g] = t
		}
		t.Count++
		t.TotalAmount = t.TotalAmount.Add(r.Amount)
	}

	stats := &models.Stats{Count: len(matched), Totals: []models.StatusTotal{}}
	for _, t := range totals {
		stats.Totals = append(stats.Totals, *t)
	}
	sort.Slice(stats.Totals, func(i, j int) bool {
		if stats.Totals[i].Status != stats.Totals[j].Status {
			return stats.Totals[i].Status < stats.Totals[j].Status
		}
		return stats.Totals[i].Currency < stats.Totals[j].Currency
	})
	return stats, nil
}

// matching must be called with the read lock held.
func (s *MemoryStore) matching(tenantID string, f models.ListFilter) []*models.Remittance {
	var out []*models.Remittance
	for _, r := range s.rows[tenantID] {
		switch {
		case f.Status != "" && r.Status != f.Status,
			f.Type != "" && r.Type != f.Type,
			f.SenderID != "" && r.SenderID != f.SenderID,
			f.SenderBranchID != "" && r.SenderBranchID != f.SenderBranchID,
			f.ReceiverBranchID != "" && r.ReceiverBranchID != f.ReceiverBranchID,
			f.CreatedFrom != nil && r.CreatedAt.Before(*f.CreatedFrom),
			f.CreatedTo != nil && !r.CreatedAt.Before(*f.CreatedTo):
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

func sortByExpiry(rs []*models.Remittance) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ExpiresAt.Before(rs[j].ExpiresAt) })
}
