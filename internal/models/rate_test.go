package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func usdRate() Rate {
	return Rate{
		FromCurrency:      "USD",
		ToCurrency:        "EUR",
		BuyRate:           decimal.RequireFromString("0.9"),
		SellRate:          decimal.RequireFromString("0.95"),
		MinAmount:         decimal.RequireFromString("10"),
		MaxAmount:         decimal.RequireFromString("5000"),
		CommissionPercent: decimal.RequireFromString("1.5"),
		CommissionFixed:   decimal.RequireFromString("2"),
		FromScale:         2,
		ToScale:           2,
	}
}

func TestRate_Validate(t *testing.T) {
	rate := usdRate()

	tests := []struct {
		amount string
		kind   ErrorKind
	}{
		{"10", ""},
		{"5000", ""},
		{"2500.50", ""},
		{"9.99", KindAmountOutOfRange},
		{"5000.01", KindAmountOutOfRange},
		{"0", KindValidation},
		{"-5", KindValidation},
	}

	for _, tc := range tests {
		t.Run(tc.amount, func(t *testing.T) {
			err := rate.Validate(decimal.RequireFromString(tc.amount))
			if tc.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.kind, KindOf(err))
		})
	}

	t.Run("unbounded pair", func(t *testing.T) {
		assert.NoError(t, Rate{}.Validate(decimal.RequireFromString("1000000000")))
	})
}

func TestRate_Convert(t *testing.T) {
	rate := usdRate()

	t.Run("buy side with commission", func(t *testing.T) {
		conv := rate.Convert(decimal.RequireFromString("1000"), SideBuy)
		assert.True(t, conv.Rate.Equal(decimal.RequireFromString("0.9")))
		assert.True(t, conv.ConvertedAmount.Equal(decimal.RequireFromString("900")))
		assert.True(t, conv.Commission.Equal(decimal.RequireFromString("17")))
		assert.True(t, conv.TotalCost.Equal(decimal.RequireFromString("1017")))
	})

	t.Run("sell side uses sell rate", func(t *testing.T) {
		conv := rate.Convert(decimal.RequireFromString("100"), SideSell)
		assert.True(t, conv.ConvertedAmount.Equal(decimal.RequireFromString("95")))
	})

	t.Run("banker's rounding at destination scale", func(t *testing.T) {
		par := Rate{BuyRate: decimal.NewFromInt(1), ToScale: 2, FromScale: 2}
		assert.Equal(t, "10.12", par.Convert(decimal.RequireFromString("10.125"), SideBuy).ConvertedAmount.StringFixed(2))
		assert.Equal(t, "10.14", par.Convert(decimal.RequireFromString("10.135"), SideBuy).ConvertedAmount.StringFixed(2))
	})

	t.Run("zero scale currency", func(t *testing.T) {
		jpy := Rate{BuyRate: decimal.RequireFromString("150.5"), ToScale: 0, FromScale: 2}
		assert.Equal(t, "150", jpy.Convert(decimal.RequireFromString("0.997"), SideBuy).ConvertedAmount.String())
	})
}

func TestDomainError_Is(t *testing.T) {
	err := fmt.Errorf("load: %w", NewError(KindNotFound, "remittance %s not found", "r1"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Contains(t, err.Error(), "remittance r1 not found")
}

func TestWrapError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(KindStoreUnavailable, cause, "load remittance")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, "load remittance: connection refused", err.Error())
}
