package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ruralpay/remittance/internal/models"
)

// MemoryLedger is an in-process ledger with call counters. It backs the
// service tests and local runs without Postgres.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	holds    map[models.FreezeHandle]*models.Hold

	freezes   int
	unfreezes map[models.FreezeHandle]int
	debits    map[models.FreezeHandle]int
	failures  map[string]error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts:  make(map[string]*models.Account),
		holds:     make(map[models.FreezeHandle]*models.Hold),
		unfreezes: make(map[models.FreezeHandle]int),
		debits:    make(map[models.FreezeHandle]int),
		failures:  make(map[string]error),
	}
}

func accountKey(tenantID, ownerID, currency string) string {
	return tenantID + "/" + ownerID + "/" + currency
}

// Open creates or replaces an active account with the given balance.
func (m *MemoryLedger) Open(tenantID, ownerID, currency string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountKey(tenantID, ownerID, currency)
	m.accounts[key] = &models.Account{
		ID:       key,
		TenantID: tenantID,
		OwnerID:  ownerID,
		Currency: currency,
		Balance:  balance,
		Status:   models.AccountStatusActive,
	}
}

func (m *MemoryLedger) SetStatus(tenantID, ownerID, currency, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountKey(tenantID, ownerID, currency)]; ok {
		a.Status = status
	}
}

// FailNext makes the next call to op ("freeze", "unfreeze" or "debit") return err.
func (m *MemoryLedger) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

func (m *MemoryLedger) takeFailure(op string) error {
	err := m.failures[op]
	delete(m.failures, op)
	return err
}

// Account returns a copy of the account, if present.
func (m *MemoryLedger) Account(tenantID, ownerID, currency string) (models.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountKey(tenantID, ownerID, currency)]
	if !ok {
		return models.Account{}, false
	}
	return *a, true
}

func (m *MemoryLedger) Freezes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freezes
}

// Unfreezes counts effective releases of handle. Idempotent repeats are not counted.
func (m *MemoryLedger) Unfreezes(handle models.FreezeHandle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unfreezes[handle]
}

// Debits counts effective debits of handle. Idempotent repeats are not counted.
func (m *MemoryLedger) Debits(handle models.FreezeHandle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debits[handle]
}

func (m *MemoryLedger) Freeze(ctx context.Context, tenantID, ownerID, currency string, amount decimal.Decimal) (models.FreezeHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", models.WrapError(models.KindLedgerError, err, "freeze")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure("freeze"); err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", models.NewError(models.KindValidation, "freeze amount must be positive")
	}

	a, ok := m.accounts[accountKey(tenantID, ownerID, currency)]
	if !ok || a.Status != models.AccountStatusActive {
		return "", models.NewError(models.KindAccountInactive, "no active %s account for %s", currency, ownerID)
	}
	if a.Available().LessThan(amount) {
		return "", models.NewError(models.KindInsufficientFunds, "available %s is less than %s", a.Available(), amount)
	}

	a.FrozenBalance = a.FrozenBalance.Add(amount)
	a.Version++

	handle := models.FreezeHandle(uuid.NewString())
	m.holds[handle] = &models.Hold{
		ID:        string(handle),
		TenantID:  tenantID,
		AccountID: a.ID,
		Amount:    amount,
		Currency:  currency,
		Status:    models.HoldStatusActive,
	}
	m.freezes++
	return handle, nil
}

func (m *MemoryLedger) Unfreeze(ctx context.Context, handle models.FreezeHandle) error {
	return m.settle(ctx, "unfreeze", handle, models.HoldStatusReleased)
}

func (m *MemoryLedger) Debit(ctx context.Context, handle models.FreezeHandle) error {
	return m.settle(ctx, "debit", handle, models.HoldStatusDebited)
}

func (m *MemoryLedger) settle(ctx context.Context, op string, handle models.FreezeHandle, target models.HoldStatus) error {
	if err := ctx.Err(); err != nil {
		return models.WrapError(models.KindLedgerError, err, op)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(op); err != nil {
		return err
	}

	h, ok := m.holds[handle]
	if !ok {
		return models.WrapError(models.KindLedgerError, models.ErrUnknownHandle, string(handle))
	}
	if h.Status == target {
		return nil
	}
	if h.Status != models.HoldStatusActive {
		return models.SettledError(h.ID, h.Status)
	}

	a := m.accounts[h.AccountID]
	if a == nil {
		return fmt.Errorf("account %s for hold %s vanished", h.AccountID, h.ID)
	}

	a.FrozenBalance = a.FrozenBalance.Sub(h.Amount)
	if target == models.HoldStatusDebited {
		a.Balance = a.Balance.Sub(h.Amount)
		m.debits[handle]++
	} else {
		m.unfreezes[handle]++
	}
	a.Version++
	h.Status = target
	return nil
}
