package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntry struct {
	ID        int             `json:"id" db:"id"`
	TenantID  string          `json:"tenant_id" db:"tenant_id"`
	HoldID    string          `json:"hold_id" db:"hold_id"`
	AccountID string          `json:"account_id" db:"account_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	EntryType string          `json:"entry_type" db:"entry_type"` // DEBIT or CREDIT
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type Account struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	OwnerID       string          `json:"owner_id" db:"owner_id"`
	Currency      string          `json:"currency" db:"currency"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	FrozenBalance decimal.Decimal `json:"frozen_balance" db:"frozen_balance"`
	Status        string          `json:"status" db:"status"`
	Version       int             `json:"version" db:"version"` // for optimistic locking
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Available is the balance not reserved by active holds.
func (a Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.FrozenBalance)
}

const AccountStatusActive = "ACTIVE"

type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "ACTIVE"
	HoldStatusReleased HoldStatus = "RELEASED"
	HoldStatusDebited  HoldStatus = "DEBITED"
)

// Hold is a reservation of funds on an account, addressed by its FreezeHandle.
type Hold struct {
	ID        string          `json:"id" db:"hold_id"`
	TenantID  string          `json:"tenant_id" db:"tenant_id"`
	AccountID string          `json:"account_id" db:"account_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Currency  string          `json:"currency" db:"currency"`
	Status    HoldStatus      `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Sentinels wrapped by ledger errors so callers can tell why a hold could not be settled.
var (
	ErrUnknownHandle = errors.New("unknown freeze handle")
	ErrHoldDebited   = errors.New("hold already debited")
	ErrHoldReleased  = errors.New("hold already released")
)

// SettledError returns the ledger error for a hold that already left ACTIVE.
func SettledError(holdID string, status HoldStatus) error {
	switch status {
	case HoldStatusDebited:
		return WrapError(KindLedgerError, ErrHoldDebited, "hold "+holdID)
	case HoldStatusReleased:
		return WrapError(KindLedgerError, ErrHoldReleased, "hold "+holdID)
	}
	return NewError(KindLedgerError, "hold %s is already %s", holdID, status)
}
