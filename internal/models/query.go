package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListFilter narrows tenant-scoped listings and stats. Empty fields are ignored.
type ListFilter struct {
	Status           Status
	Type             RemittanceType
	SenderID         string
	SenderBranchID   string
	ReceiverBranchID string
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

// Page is one slice of a listing.
type Page struct {
	Items []*Remittance `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

// StatusTotal aggregates remittances sharing a status and source currency.
type StatusTotal struct {
	Status      Status          `json:"status"`
	Currency    string          `json:"currency"`
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type Stats struct {
	Count  int           `json:"count"`
	Totals []StatusTotal `json:"totals"`
}

// RedeemLookup addresses a remittance at redemption time by secret code or by id.
type RedeemLookup struct {
	SecretCode   string
	RemittanceID string
}
