package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/notify"
)

type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) CurrentRate(ctx context.Context, tenantID, from, to string) (models.Rate, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).(models.Rate), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, msg notify.Notification) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockSettlementPublisher struct {
	mock.Mock
}

func (m *MockSettlementPublisher) Publish(ctx context.Context, r *models.Remittance, at time.Time) error {
	args := m.Called(ctx, r, at)
	return args.Error(0)
}
