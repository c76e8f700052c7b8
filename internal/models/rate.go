package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Rate is the effective quote for a currency pair within a tenant.
// Zero MinAmount or MaxAmount means the bound is not enforced.
type Rate struct {
	TenantID          string          `json:"tenantId"`
	FromCurrency      string          `json:"fromCurrency"`
	ToCurrency        string          `json:"toCurrency"`
	BuyRate           decimal.Decimal `json:"buyRate"`
	SellRate          decimal.Decimal `json:"sellRate"`
	MinAmount         decimal.Decimal `json:"minAmount"`
	MaxAmount         decimal.Decimal `json:"maxAmount"`
	CommissionPercent decimal.Decimal `json:"commissionPercent"`
	CommissionFixed   decimal.Decimal `json:"commissionFixed"`
	FromScale         int32           `json:"fromScale"`
	ToScale           int32           `json:"toScale"`
	EffectiveAt       time.Time       `json:"effectiveAt"`
}

// Conversion is the priced result of converting an amount with a Rate.
type Conversion struct {
	Rate            decimal.Decimal
	ConvertedAmount decimal.Decimal
	Commission      decimal.Decimal
	TotalCost       decimal.Decimal
}

// Validate checks the amount against the pair's bounds. Both bounds are inclusive.
func (r Rate) Validate(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewError(KindValidation, "amount must be greater than zero")
	}
	if !r.MinAmount.IsZero() && amount.LessThan(r.MinAmount) {
		return NewError(KindAmountOutOfRange, "amount %s below minimum %s (max %s)", amount, r.MinAmount, r.MaxAmount)
	}
	if !r.MaxAmount.IsZero() && amount.GreaterThan(r.MaxAmount) {
		return NewError(KindAmountOutOfRange, "amount %s above maximum %s (min %s)", amount, r.MaxAmount, r.MinAmount)
	}
	return nil
}

// Convert prices amount on the requested side using banker's rounding:
// the converted amount at the destination scale, the commission at the source scale.
func (r Rate) Convert(amount decimal.Decimal, side Side) Conversion {
	rate := r.BuyRate
	if side == SideSell {
		rate = r.SellRate
	}

	converted := amount.Mul(rate).RoundBank(r.ToScale)
	commission := amount.Mul(r.CommissionPercent).Div(decimal.NewFromInt(100)).
		Add(r.CommissionFixed).
		RoundBank(r.FromScale)

	return Conversion{
		Rate:            rate,
		ConvertedAmount: converted,
		Commission:      commission,
		TotalCost:       amount.Add(commission),
	}
}
