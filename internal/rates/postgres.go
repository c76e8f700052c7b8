package rates

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ruralpay/remittance/internal/models"
)

// ScaleFunc resolves the decimal places used for a currency.
type ScaleFunc func(currency string) int32

// PostgresProvider serves the most recent effective rate per pair from exchange_rates.
type PostgresProvider struct {
	db    *sql.DB
	scale ScaleFunc
}

func NewPostgresProvider(db *sql.DB, scale ScaleFunc) *PostgresProvider {
	return &PostgresProvider{db: db, scale: scale}
}

func (p *PostgresProvider) CurrentRate(ctx context.Context, tenantID, from, to string) (models.Rate, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return Identity(tenantID, from, p.scale(from)), nil
	}

	rate := models.Rate{TenantID: tenantID, FromCurrency: from, ToCurrency: to}
	err := p.db.QueryRowContext(ctx, `
		SELECT buy_rate, sell_rate, min_amount, max_amount, commission_percent, commission_fixed, effective_at
		FROM exchange_rates
		WHERE tenant_id = $1 AND from_currency = $2 AND to_currency = $3 AND effective_at <= NOW()
		ORDER BY effective_at DESC
		LIMIT 1`, tenantID, from, to).
		Scan(&rate.BuyRate, &rate.SellRate, &rate.MinAmount, &rate.MaxAmount,
			&rate.CommissionPercent, &rate.CommissionFixed, &rate.EffectiveAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Rate{}, models.NewError(models.KindRateUnavailable, "no rate for %s/%s", from, to)
	}
	if err != nil {
		return models.Rate{}, models.WrapError(models.KindRateUnavailable, err, "rate lookup failed")
	}

	rate.FromScale = p.scale(from)
	rate.ToScale = p.scale(to)
	return rate, nil
}

// Identity is the rate for a same-currency pair: 1, no commission, no bounds.
func Identity(tenantID, currency string, scale int32) models.Rate {
	one := decimal.NewFromInt(1)
	return models.Rate{
		TenantID:     tenantID,
		FromCurrency: currency,
		ToCurrency:   currency,
		BuyRate:      one,
		SellRate:     one,
		FromScale:    scale,
		ToScale:      scale,
	}
}
