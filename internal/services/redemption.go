package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruralpay/remittance/internal/audit"
	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/repository"
)

// RedeemRequest is a claim presented at the destination branch.
type RedeemRequest struct {
	TokenOrCode      string `json:"tokenOrCode" validate:"required,max=2048"`
	ReceiverBranchID string `json:"receiverBranchId" validate:"required"`
	ReceiverName     string `json:"receiverName" validate:"required,max=140"`
}

// RedemptionEngine consumes a claim exactly once. The hold is claimed against
// the version that passed the checks before any money moves; a lost claim is
// retried from a fresh load, where the winner's state decides the outcome.
type RedemptionEngine struct {
	store       repository.RemittanceStore
	codec       TokenCodec
	holds       *holdKeeper
	journal     *journal
	clock       idgen.Clock
	log         zerolog.Logger
	maxRetries  int
	preApproval map[models.RemittanceType]bool
}

// claim is a resolved redemption input.
type claim struct {
	lookup models.RedeemLookup
	code   string
}

// Redeem completes the remittance addressed by req on behalf of caller.
func (e *RedemptionEngine) Redeem(ctx context.Context, caller models.Caller, req RedeemRequest) (*models.Remittance, error) {
	if caller.BranchID != "" && caller.BranchID != req.ReceiverBranchID {
		return nil, models.NewError(models.KindUnauthorized, "caller branch %s cannot redeem for branch %s", caller.BranchID, req.ReceiverBranchID)
	}

	c, err := e.resolve(req.TokenOrCode)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		r, err := e.store.LoadForRedeem(ctx, caller.TenantID, c.lookup, req.ReceiverBranchID)
		if err != nil {
			return nil, err
		}
		if r.SecretCode != c.code {
			return nil, models.NewError(models.KindTokenInvalid, "token does not match remittance")
		}

		now := e.clock.Now()
		if err := e.check(r, req.ReceiverName, now); err != nil {
			e.journal.record(ctx, r, audit.EventRedeemRejected, caller.UserID, now, map[string]string{
				"reason": string(models.KindOf(err)),
				"branch": req.ReceiverBranchID,
			})
			return nil, err
		}

		prev := len(r.StatusHistory)
		err = e.commit(ctx, r, caller.UserID)
		if err == nil {
			e.holds.settled(ctx, r, prev, caller.UserID)
			e.log.Info().
				Str("remittance_id", r.RemittanceID).
				Str("tenant_id", r.TenantID).
				Str("branch_id", r.ReceiverBranchID).
				Msg("remittance redeemed")
			return r, nil
		}

		var de *debitError
		var ue *unsettledError
		switch {
		case errors.As(err, &de):
			return nil, ledgerError(de.err, "debit sender")
		case errors.As(err, &ue):
			return nil, ue.public()
		case errors.Is(err, models.ErrConflict):
		default:
			return nil, err
		}

		e.log.Debug().
			Str("remittance_id", r.RemittanceID).
			Int("attempt", attempt+1).
			Msg("redemption lost version race, re-evaluating")
	}

	return nil, models.NewError(models.KindContention, "remittance kept changing during redemption")
}

// resolve accepts a bare secret code or a signed claim token.
func (e *RedemptionEngine) resolve(input string) (claim, error) {
	if idgen.IsSecretCode(input) {
		return claim{lookup: models.RedeemLookup{SecretCode: input}, code: input}, nil
	}
	payload, err := e.codec.Verify(input)
	if err != nil {
		return claim{}, err
	}
	return claim{
		lookup: models.RedeemLookup{RemittanceID: payload.RemittanceID},
		code:   payload.SecretCode,
	}, nil
}

func (e *RedemptionEngine) check(r *models.Remittance, receiverName string, now time.Time) error {
	if r.HoldState == models.HoldDebitPending {
		return models.NewError(models.KindAlreadyRedeemed, "remittance %s is being settled", r.RemittanceID)
	}
	switch r.Status {
	case models.StatusCompleted:
		return models.NewError(models.KindAlreadyRedeemed, "remittance %s already redeemed", r.RemittanceID)
	case models.StatusExpired:
		return models.NewError(models.KindExpired, "remittance %s expired", r.RemittanceID)
	case models.StatusCancelled, models.StatusFailed:
		return models.NewError(models.KindInvalidStatus, "remittance %s is %s", r.RemittanceID, r.Status)
	}
	if r.Expired(now) {
		return models.NewError(models.KindExpired, "remittance %s expired at %s", r.RemittanceID, r.ExpiresAt.Format(time.RFC3339))
	}
	if r.Status == models.StatusPending && !e.preApproval[r.Type] {
		return models.NewError(models.KindInvalidStatus, "%s remittance must be approved before redemption", r.Type)
	}
	if !namesMatch(r.ReceiverInfo.Name, receiverName) {
		return models.NewError(models.KindNameMismatch, "receiver name does not match")
	}
	return nil
}

// commit claims the hold, debits the sender and writes COMPLETED.
func (e *RedemptionEngine) commit(ctx context.Context, r *models.Remittance, staffID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.holds.debit(ctx, r, staffID, func(r *models.Remittance, now time.Time) error {
		return redeemTransitions(r, staffID, now)
	})
}

func publishSettlement(ctx context.Context, publisher SettlementPublisher, r *models.Remittance, at time.Time, log zerolog.Logger) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), r, at); err != nil {
		log.Error().Err(err).Str("remittance_id", r.RemittanceID).Msg("failed to publish settlement advice")
	}
}

// ledgerError keeps the ledger's own classification when it has one.
func ledgerError(err error, message string) error {
	switch models.KindOf(err) {
	case models.KindInsufficientFunds, models.KindAccountInactive, models.KindLedgerError, models.KindValidation:
		return err
	}
	return models.WrapError(models.KindLedgerError, err, message)
}
