package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/remittance/internal/audit"
	"github.com/ruralpay/remittance/internal/config"
	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/ledger"
	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/repository"
	"github.com/ruralpay/remittance/internal/token"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc        *RemittanceService
	store      *repository.MemoryStore
	ledger     *ledger.MemoryLedger
	clock      *idgen.ManualClock
	sink       *audit.MemorySink
	rates      *MockRateProvider
	notifier   *MockNotifier
	settlement *MockSettlementPublisher
}

func testConfig() config.RemittanceConfig {
	return config.RemittanceConfig{
		TokenSecret:            "test-secret",
		TokenSalt:              "test-salt",
		TokenTTL:               72 * time.Hour,
		ReaperTick:             time.Minute,
		ReaperBatch:            256,
		ReaperPerTenant:        64,
		RedeemMaxRetries:       3,
		ApprovalPolicy:         config.DefaultApprovalPolicy(),
		DefaultScale:           2,
		PreApprovalRedeemTypes: []models.RemittanceType{models.TypeInterBranch},
		QRSize:                 128,
		NotifyTimeout:          time.Second,
		DebitClaimGrace:        time.Minute,
		SupervisorRoles:        []string{"supervisor"},
	}
}

// parRate is USD to KES at 1.0 with a 1% commission, bounded to 10..5000.
func parRate() models.Rate {
	return models.Rate{
		TenantID:          "T1",
		FromCurrency:      "USD",
		ToCurrency:        "KES",
		BuyRate:           decimal.NewFromInt(1),
		SellRate:          decimal.NewFromInt(1),
		MinAmount:         decimal.NewFromInt(10),
		MaxAmount:         decimal.NewFromInt(5000),
		CommissionPercent: decimal.NewFromInt(1),
		CommissionFixed:   decimal.Zero,
		FromScale:         2,
		ToScale:           2,
	}
}

func newFixture(t *testing.T, tweak ...func(*config.RemittanceConfig)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, fn := range tweak {
		fn(&cfg)
	}

	clock := idgen.NewManualClock(t0)
	codec, err := token.NewCodec(token.StaticSecret(cfg.TokenSecret), cfg.TokenSalt, clock)
	require.NoError(t, err)

	f := &fixture{
		store:      repository.NewMemoryStore(),
		ledger:     ledger.NewMemoryLedger(),
		clock:      clock,
		sink:       audit.NewMemorySink(),
		rates:      new(MockRateProvider),
		notifier:   new(MockNotifier),
		settlement: new(MockSettlementPublisher),
	}

	f.rates.On("CurrentRate", mock.Anything, mock.Anything, "USD", "KES").Return(parRate(), nil)
	f.rates.On("CurrentRate", mock.Anything, mock.Anything, "USD", "EUR").
		Return(models.Rate{}, models.NewError(models.KindRateUnavailable, "no USD/EUR rate"))
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	f.settlement.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.ledger.Open("T1", "U1", "USD", decimal.NewFromInt(5000))

	f.svc, err = NewRemittanceService(Deps{
		Store:      f.store,
		Ledger:     f.ledger,
		Rates:      f.rates,
		Codec:      codec,
		Audit:      f.sink,
		History:    f.sink,
		Notifier:   f.notifier,
		Settlement: f.settlement,
		Clock:      clock,
		Log:        zerolog.Nop(),
		Config:     cfg,
	})
	require.NoError(t, err)
	t.Cleanup(f.svc.Drain)
	return f
}

func callerCtx(tenantID, userID, branchID string) context.Context {
	return staffCtx(tenantID, userID, branchID, "teller")
}

func staffCtx(tenantID, userID, branchID, role string) context.Context {
	return models.WithCaller(context.Background(), models.Caller{
		TenantID: tenantID,
		UserID:   userID,
		BranchID: branchID,
		Role:     role,
	})
}

// sender is a teller at the source branch, clerk works at the destination and
// chief supervises every branch.
var (
	sender = callerCtx("T1", "S1", "B1")
	clerk  = callerCtx("T1", "S2", "B2")
	chief  = staffCtx("T1", "S3", "", "supervisor")
)

func interBranchInput() CreateInput {
	return CreateInput{
		SenderBranchID:   "B1",
		ReceiverBranchID: "B2",
		Type:             models.TypeInterBranch,
		SenderID:         "U1",
		SenderContact:    "+254700000001",
		ReceiverInfo: models.ReceiverInfo{
			Name:    "Ali Reza",
			Contact: "+254700000002",
		},
		FromCurrency: "USD",
		ToCurrency:   "KES",
		Amount:       decimal.NewFromInt(1000),
	}
}

func (f *fixture) create(t *testing.T, mutate ...func(*CreateInput)) *CreateResult {
	t.Helper()
	in := interBranchInput()
	for _, fn := range mutate {
		fn(&in)
	}
	res, err := f.svc.Create(sender, in)
	require.NoError(t, err)
	return res
}

func (f *fixture) approved(t *testing.T, mutate ...func(*CreateInput)) *CreateResult {
	t.Helper()
	res := f.create(t, mutate...)
	r, err := f.svc.Approve(chief, res.Remittance.RemittanceID, 1, "ok")
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, r.Status)
	return res
}

func (f *fixture) reload(t *testing.T, id string) *models.Remittance {
	t.Helper()
	r, err := f.store.Load(context.Background(), "T1", id)
	require.NoError(t, err)
	return r
}
