package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/remittance/internal/config"
	"github.com/ruralpay/remittance/internal/models"
)

func pendingRemittance(engine *ApprovalEngine, t models.RemittanceType) *models.Remittance {
	return &models.Remittance{
		Type:          t,
		Status:        models.StatusPending,
		Approvals:     engine.NewApprovals(t),
		StatusHistory: models.StatusHistory{{Status: models.StatusPending, At: t0}},
	}
}

func TestApprovalEngine_RequiredLevels(t *testing.T) {
	engine := NewApprovalEngine(config.DefaultApprovalPolicy())

	assert.Equal(t, 1, engine.RequiredLevels(models.TypeDomestic))
	assert.Equal(t, 1, engine.RequiredLevels(models.TypeInterBranch))
	assert.Equal(t, 1, engine.RequiredLevels(models.TypeCrypto))
	assert.Equal(t, 2, engine.RequiredLevels(models.TypeInternational))
	assert.Equal(t, 1, NewApprovalEngine(nil).RequiredLevels(models.TypeInternational))

	approvals := engine.NewApprovals(models.TypeInternational)
	require.Len(t, approvals, 2)
	assert.Equal(t, 1, approvals[0].Level)
	assert.Equal(t, 2, approvals[1].Level)
	assert.Equal(t, models.ApprovalPending, approvals[1].Status)
}

func TestApprovalEngine_AddApproval(t *testing.T) {
	engine := NewApprovalEngine(config.DefaultApprovalPolicy())
	r := pendingRemittance(engine, models.TypeInternational)
	at := t0.Add(time.Minute)

	_, err := engine.AddApproval(r, 2, "S1", "", at)
	assert.ErrorIs(t, err, models.ErrWrongLevel)

	_, err = engine.AddApproval(r, 0, "S1", "", at)
	assert.ErrorIs(t, err, models.ErrWrongLevel)

	done, err := engine.AddApproval(r, 1, "S1", "kyc ok", at)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, "kyc ok", r.Approvals[0].Notes)
	assert.Equal(t, at, *r.Approvals[0].At)

	_, err = engine.AddApproval(r, 1, "S2", "", at)
	assert.ErrorIs(t, err, models.ErrAlreadyApproved)

	_, err = engine.AddApproval(r, 2, "S1", "", at)
	assert.ErrorIs(t, err, models.ErrValidation)

	done, err = engine.AddApproval(r, 2, "S2", "", at)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, models.StatusApproved, r.Status)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusApproved}, r.StatusHistory.Statuses())

	_, err = engine.AddApproval(r, 3, "S3", "", at)
	assert.ErrorIs(t, err, models.ErrWrongLevel)

	_, err = engine.AddApproval(r, 2, "S3", "", at)
	assert.ErrorIs(t, err, models.ErrAlreadyApproved)
}

func TestApprovalEngine_RejectsNonPending(t *testing.T) {
	engine := NewApprovalEngine(config.DefaultApprovalPolicy())
	r := pendingRemittance(engine, models.TypeDomestic)
	r.Status = models.StatusCancelled

	_, err := engine.AddApproval(r, 1, "S1", "", t0)
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
	assert.Equal(t, models.ApprovalPending, r.Approvals[0].Status)
}

func TestRemittanceService_ApproveInternational(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, func(in *CreateInput) { in.Type = models.TypeInternational }).Remittance.RemittanceID

	_, err := f.svc.Approve(chief, id, 2, "")
	assert.ErrorIs(t, err, models.ErrWrongLevel)

	r, err := f.svc.Approve(chief, id, 1, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, int64(2), r.Version)

	r, err = f.svc.Approve(staffCtx("T1", "S5", "", "supervisor"), id, 2, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, r.Status)
	assert.Equal(t, int64(3), r.Version)
}

func TestRemittanceService_SupervisorRoles(t *testing.T) {
	f := newFixture(t)
	id := f.create(t).Remittance.RemittanceID

	_, err := f.svc.Approve(clerk, id, 1, "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.svc.Fail(clerk, id, "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, models.StatusPending, f.reload(t, id).Status)

	r, err := f.svc.Approve(staffCtx("T1", "S7", "", "Supervisor"), id, 1, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, r.Status)

	t.Run("no configured roles admits every caller", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.RemittanceConfig) { cfg.SupervisorRoles = nil })
		id := f.create(t).Remittance.RemittanceID

		r, err := f.svc.Approve(clerk, id, 1, "")
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, r.Status)
	})
}
