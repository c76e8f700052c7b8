package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RemittanceType selects the approval policy applied to a remittance.
type RemittanceType string

const (
	TypeInterBranch   RemittanceType = "INTER_BRANCH"
	TypeInternational RemittanceType = "INTERNATIONAL"
	TypeDomestic      RemittanceType = "DOMESTIC"
	TypeCrypto        RemittanceType = "CRYPTO"
)

func (t RemittanceType) Valid() bool {
	switch t {
	case TypeInterBranch, TypeInternational, TypeDomestic, TypeCrypto:
		return true
	}
	return false
}

// HoldState tracks what happened to the sender's frozen funds.
type HoldState string

const (
	HoldHeld           HoldState = "HELD"
	HoldReleasePending HoldState = "RELEASE_PENDING"
	HoldReleased       HoldState = "RELEASED"
	HoldDebited        HoldState = "DEBITED"
	// HoldDebitPending is a committed claim on the debit. No other writer may
	// touch the remittance until the claim is completed or rolled back.
	HoldDebitPending HoldState = "DEBIT_PENDING"
)

// FreezeHandle is the opaque reservation reference issued by the ledger.
type FreezeHandle string

// ReceiverInfo identifies who may claim the remittance at the destination branch.
type ReceiverInfo struct {
	Name        string `json:"name" validate:"required,max=140"`
	Contact     string `json:"contact" validate:"required,max=64"`
	BankName    string `json:"bankName,omitempty" validate:"max=140"`
	BankAccount string `json:"bankAccount,omitempty" validate:"max=34"`
	BankCode    string `json:"bankCode,omitempty" validate:"max=11"`
}

// Value implements driver.Valuer for the JSONB column
func (ri ReceiverInfo) Value() (driver.Value, error) {
	return json.Marshal(ri)
}

// Scan implements sql.Scanner for the JSONB column
func (ri *ReceiverInfo) Scan(value any) error {
	return scanJSON(value, ri)
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
)

// Approval is one level of the N-of-N approval chain.
type Approval struct {
	Level      int            `json:"level"`
	Status     ApprovalStatus `json:"status"`
	ApproverID string         `json:"approverId,omitempty"`
	At         *time.Time     `json:"at,omitempty"`
	Notes      string         `json:"notes,omitempty"`
}

type Approvals []Approval

func (a Approvals) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *Approvals) Scan(value any) error {
	return scanJSON(value, a)
}

// StatusChange is one append-only entry of the status history.
type StatusChange struct {
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
	ActorID string    `json:"actorId,omitempty"`
	Note    string    `json:"note,omitempty"`
}

type StatusHistory []StatusChange

func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

func (h *StatusHistory) Scan(value any) error {
	return scanJSON(value, h)
}

// Statuses returns the status of every history entry in order.
func (h StatusHistory) Statuses() []Status {
	out := make([]Status, 0, len(h))
	for _, change := range h {
		out = append(out, change.Status)
	}
	return out
}

// Remittance is the aggregate root. All mutations go through Transition and
// are persisted with a conditional write on Version.
type Remittance struct {
	RemittanceID     string          `json:"remittanceId"`
	TenantID         string          `json:"tenantId"`
	SenderBranchID   string          `json:"senderBranchId"`
	ReceiverBranchID string          `json:"receiverBranchId"`
	Type             RemittanceType  `json:"type"`
	Status           Status          `json:"status"`
	SenderID         string          `json:"senderId"`
	SenderContact    string          `json:"senderContact,omitempty"`
	ReceiverInfo     ReceiverInfo    `json:"receiverInfo"`
	FromCurrency     string          `json:"fromCurrency"`
	ToCurrency       string          `json:"toCurrency"`
	Amount           decimal.Decimal `json:"amount"`
	ExchangeRate     decimal.Decimal `json:"exchangeRate"`
	ConvertedAmount  decimal.Decimal `json:"convertedAmount"`
	Commission       decimal.Decimal `json:"commission"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	SecretCode       string          `json:"-"`
	QRToken          string          `json:"-"`
	FreezeHandle     FreezeHandle    `json:"-"`
	HoldState        HoldState       `json:"holdState"`
	ExpiresAt        time.Time       `json:"expiresAt"`
	Approvals        Approvals       `json:"approvals"`
	StatusHistory    StatusHistory   `json:"statusHistory"`
	Notes            string          `json:"notes,omitempty"`
	CancelReason     string          `json:"cancelReason,omitempty"`
	RedeemedAt       *time.Time      `json:"redeemedAt,omitempty"`
	RedeemedBy       string          `json:"redeemedBy,omitempty"`
	CreatedBy        string          `json:"createdBy"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Version          int64           `json:"version"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (r *Remittance) Clone() *Remittance {
	c := *r
	c.Approvals = append(Approvals(nil), r.Approvals...)
	for i := range c.Approvals {
		if at := c.Approvals[i].At; at != nil {
			t := *at
			c.Approvals[i].At = &t
		}
	}
	c.StatusHistory = append(StatusHistory(nil), r.StatusHistory...)
	if r.RedeemedAt != nil {
		t := *r.RedeemedAt
		c.RedeemedAt = &t
	}
	return &c
}

// Expired reports whether the claim window has closed at now. expiresAt == now counts as expired.
func (r *Remittance) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func scanJSON(value any, dest any) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return errors.New("type assertion to []byte failed")
	}
}
