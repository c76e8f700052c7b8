package rates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/remittance/internal/models"
)

func scales(currency string) int32 {
	if currency == "JPY" {
		return 0
	}
	return 2
}

func TestPostgresProvider_CurrentRate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	provider := NewPostgresProvider(db, scales)
	ctx := context.Background()
	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("latest effective rate", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM exchange_rates WHERE tenant_id = \\$1 AND from_currency = \\$2 AND to_currency = \\$3").
			WithArgs("T1", "USD", "JPY").
			WillReturnRows(sqlmock.NewRows([]string{"buy_rate", "sell_rate", "min_amount", "max_amount", "commission_percent", "commission_fixed", "effective_at"}).
				AddRow("150.25", "151", "10", "10000", "1.5", "2", effective))

		rate, err := provider.CurrentRate(ctx, "T1", "usd", "jpy")
		require.NoError(t, err)
		assert.True(t, rate.BuyRate.Equal(decimal.RequireFromString("150.25")))
		assert.True(t, rate.MaxAmount.Equal(decimal.NewFromInt(10000)))
		assert.Equal(t, int32(2), rate.FromScale)
		assert.Equal(t, int32(0), rate.ToScale)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing pair", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM exchange_rates").
			WithArgs("T1", "USD", "XAF").
			WillReturnError(sql.ErrNoRows)

		_, err := provider.CurrentRate(ctx, "T1", "USD", "XAF")
		assert.ErrorIs(t, err, models.ErrRateUnavailable)
	})

	t.Run("driver failure", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM exchange_rates").
			WithArgs("T1", "USD", "EUR").
			WillReturnError(errors.New("connection reset"))

		_, err := provider.CurrentRate(ctx, "T1", "USD", "EUR")
		assert.ErrorIs(t, err, models.ErrRateUnavailable)
	})

	t.Run("same currency needs no lookup", func(t *testing.T) {
		rate, err := provider.CurrentRate(ctx, "T1", "USD", "USD")
		require.NoError(t, err)
		assert.True(t, rate.BuyRate.Equal(decimal.NewFromInt(1)))
		assert.True(t, rate.CommissionPercent.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CurrentRate(ctx context.Context, tenantID, from, to string) (models.Rate, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).(models.Rate), args.Error(1)
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	rate := models.Rate{
		TenantID:     "T1",
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		BuyRate:      decimal.RequireFromString("0.9"),
		SellRate:     decimal.RequireFromString("0.95"),
		FromScale:    2,
		ToScale:      2,
		EffectiveAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	encoded, err := json.Marshal(rate)
	require.NoError(t, err)

	t.Run("miss populates cache", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		next := new(MockProvider)
		next.On("CurrentRate", ctx, "T1", "USD", "EUR").Return(rate, nil).Once()

		redisMock.ExpectGet("rate:T1:USD:EUR").RedisNil()
		redisMock.ExpectSet("rate:T1:USD:EUR", string(encoded), 30*time.Second).SetVal("OK")

		cached := NewCachedProvider(next, redisClient, 30*time.Second, zerolog.Nop())
		got, err := cached.CurrentRate(ctx, "T1", "USD", "EUR")
		require.NoError(t, err)
		assert.True(t, got.BuyRate.Equal(rate.BuyRate))
		next.AssertExpectations(t)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("hit skips provider", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		next := new(MockProvider)

		redisMock.ExpectGet("rate:T1:USD:EUR").SetVal(string(encoded))

		cached := NewCachedProvider(next, redisClient, 30*time.Second, zerolog.Nop())
		got, err := cached.CurrentRate(ctx, "T1", "usd", "eur")
		require.NoError(t, err)
		assert.True(t, got.SellRate.Equal(rate.SellRate))
		assert.True(t, got.EffectiveAt.Equal(rate.EffectiveAt))
		next.AssertNotCalled(t, "CurrentRate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("redis outage falls through", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		next := new(MockProvider)
		next.On("CurrentRate", ctx, "T1", "USD", "EUR").Return(rate, nil).Once()

		redisMock.ExpectGet("rate:T1:USD:EUR").SetErr(errors.New("connection refused"))
		redisMock.ExpectSet("rate:T1:USD:EUR", string(encoded), 30*time.Second).SetErr(errors.New("connection refused"))

		cached := NewCachedProvider(next, redisClient, 30*time.Second, zerolog.Nop())
		_, err := cached.CurrentRate(ctx, "T1", "USD", "EUR")
		assert.NoError(t, err)
		next.AssertExpectations(t)
	})

	t.Run("provider errors are not cached", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		next := new(MockProvider)
		next.On("CurrentRate", ctx, "T1", "USD", "XAF").
			Return(models.Rate{}, models.NewError(models.KindRateUnavailable, "no rate")).Once()

		redisMock.ExpectGet("rate:T1:USD:XAF").RedisNil()

		cached := NewCachedProvider(next, redisClient, 30*time.Second, zerolog.Nop())
		_, err := cached.CurrentRate(ctx, "T1", "USD", "XAF")
		assert.ErrorIs(t, err, models.ErrRateUnavailable)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
