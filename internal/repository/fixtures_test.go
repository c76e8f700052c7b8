package repository

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ruralpay/remittance/internal/models"
)

var base = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func sampleRemittance(tenantID, id, code string) *models.Remittance {
	return &models.Remittance{
		RemittanceID:     id,
		TenantID:         tenantID,
		SenderBranchID:   "B1",
		ReceiverBranchID: "B2",
		Type:             models.TypeInterBranch,
		Status:           models.StatusPending,
		SenderID:         "U1",
		ReceiverInfo:     models.ReceiverInfo{Name: "Ali Reza", Contact: "+10000000"},
		FromCurrency:     "USD",
		ToCurrency:       "USD",
		Amount:           decimal.NewFromInt(1000),
		ExchangeRate:     decimal.NewFromInt(1),
		ConvertedAmount:  decimal.NewFromInt(1000),
		Commission:       decimal.NewFromInt(10),
		TotalAmount:      decimal.NewFromInt(1010),
		SecretCode:       code,
		QRToken:          "token-" + id,
		FreezeHandle:     models.FreezeHandle("hold-" + id),
		HoldState:        models.HoldHeld,
		ExpiresAt:        base.Add(72 * time.Hour),
		Approvals:        models.Approvals{{Level: 1, Status: models.ApprovalPending}},
		StatusHistory:    models.StatusHistory{{Status: models.StatusPending, At: base, ActorID: "U1"}},
		CreatedBy:        "U1",
		CreatedAt:        base,
		UpdatedAt:        base,
	}
}

var columnNames = strings.Split(strings.Join(strings.Fields(remittanceColumns), ""), ",")

func rowValues(r *models.Remittance) []driver.Value {
	receiver, _ := json.Marshal(r.ReceiverInfo)
	approvals, _ := json.Marshal(r.Approvals)
	history, _ := json.Marshal(r.StatusHistory)

	var redeemedAt driver.Value
	if r.RedeemedAt != nil {
		redeemedAt = *r.RedeemedAt
	}

	return []driver.Value{
		r.RemittanceID, r.TenantID, r.SenderBranchID, r.ReceiverBranchID, string(r.Type), string(r.Status),
		r.SenderID, r.SenderContact, receiver, r.FromCurrency, r.ToCurrency,
		r.Amount.String(), r.ExchangeRate.String(), r.ConvertedAmount.String(), r.Commission.String(), r.TotalAmount.String(),
		r.SecretCode, r.QRToken, string(r.FreezeHandle), string(r.HoldState), r.ExpiresAt,
		approvals, history, r.Notes, r.CancelReason, redeemedAt, r.RedeemedBy,
		r.CreatedBy, r.CreatedAt, r.UpdatedAt, r.Version,
	}
}
