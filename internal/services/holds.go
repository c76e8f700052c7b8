package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruralpay/remittance/internal/audit"
	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/notify"
	"github.com/ruralpay/remittance/internal/repository"
)

// holdKeeper owns every change to the sender's hold. Releases commit the
// terminal status first with the hold marked RELEASE_PENDING. Debits commit a
// DEBIT_PENDING claim first, so funds never move while another writer can
// still change the remittance.
type holdKeeper struct {
	store      repository.RemittanceStore
	ledger     LedgerPort
	journal    *journal
	settlement SettlementPublisher
	clock      idgen.Clock
	log        zerolog.Logger
}

// finishFunc applies the transitions a committed debit stands for.
type finishFunc func(r *models.Remittance, now time.Time) error

// debitError marks a ledger failure after the claim was rolled back.
type debitError struct {
	err error
}

func (e *debitError) Error() string { return e.err.Error() }
func (e *debitError) Unwrap() error { return e.err }

// unsettledError reports a debit that went through while its completion
// could not be saved. The claim stays open and the reaper finishes it.
type unsettledError struct {
	remittanceID string
	err          error
}

func (e *unsettledError) Error() string {
	return "remittance " + e.remittanceID + " debited, completion pending: " + e.err.Error()
}

// public hides the store error kind so callers do not retry a debit that happened.
func (e *unsettledError) public() error {
	return models.NewError(models.KindStoreUnavailable, "remittance %s debited, completion pending", e.remittanceID)
}

// writable refuses changes to a remittance whose debit claim is still open.
func writable(r *models.Remittance) error {
	if r.HoldState == models.HoldDebitPending {
		return models.NewError(models.KindConflict, "remittance %s has a debit in progress", r.RemittanceID)
	}
	return nil
}

// terminate commits r into status to and then releases its hold.
// Only the commit can fail the call; a failed release is left for the reaper.
func (h *holdKeeper) terminate(ctx context.Context, r *models.Remittance, to models.Status, actorID, note string) error {
	if err := writable(r); err != nil {
		return err
	}
	expected := r.Version
	prev := len(r.StatusHistory)

	if err := r.Transition(to, h.clock.Now(), actorID, note); err != nil {
		return err
	}
	r.HoldState = models.HoldReleasePending
	if to == models.StatusCancelled {
		r.CancelReason = note
	}

	if err := h.store.Save(ctx, r, expected); err != nil {
		return err
	}
	h.journal.transitions(ctx, r, prev)

	_ = h.release(ctx, r, actorID)
	return nil
}

// release unfreezes the hold of a RELEASE_PENDING remittance and persists RELEASED.
func (h *holdKeeper) release(ctx context.Context, r *models.Remittance, actorID string) error {
	ctx = context.WithoutCancel(ctx)
	log := h.log.With().Str("remittance_id", r.RemittanceID).Str("tenant_id", r.TenantID).Logger()

	outcome := models.HoldReleased
	unfreezeErr := h.ledger.Unfreeze(ctx, r.FreezeHandle)
	switch {
	case errors.Is(unfreezeErr, models.ErrUnknownHandle):
		// The ledger holds nothing for this handle, so there is nothing left to return.
		log.Warn().Err(unfreezeErr).Msg("hold unknown to ledger, marking released")
		h.journal.record(ctx, r, audit.EventReleaseFailed, actorID, h.clock.Now(), map[string]string{
			"reason": "unknown hold",
		})
	case errors.Is(unfreezeErr, models.ErrHoldDebited):
		// Retrying cannot return funds the ledger already took.
		log.Error().Err(unfreezeErr).Str("status", string(r.Status)).Msg("hold debited on a remittance that did not complete")
		outcome = models.HoldDebited
		h.journal.record(ctx, r, audit.EventReconcile, actorID, h.clock.Now(), map[string]string{
			"reason": "hold debited, release requested",
			"status": string(r.Status),
		})
	case unfreezeErr != nil:
		log.Error().Err(unfreezeErr).Msg("failed to release hold")
		h.journal.record(ctx, r, audit.EventReleaseFailed, actorID, h.clock.Now(), map[string]string{
			"reason": unfreezeErr.Error(),
		})
		return unfreezeErr
	}

	expected := r.Version
	r.HoldState = outcome
	r.UpdatedAt = h.clock.Now()
	if err := h.store.Save(ctx, r, expected); err != nil {
		if errors.Is(err, models.ErrConflict) {
			log.Debug().Msg("hold release already recorded by another worker")
			return nil
		}
		log.Error().Err(err).Msg("hold settled but state not saved")
		return err
	}

	if unfreezeErr == nil {
		h.journal.record(ctx, r, audit.EventHoldReleased, actorID, r.UpdatedAt, map[string]string{
			"status": string(r.Status),
		})
	}
	return nil
}

// debit claims the hold of r against the loaded version, debits it and
// commits whatever finish applies. A failed debit rolls the claim back to
// HELD. claimant is recorded as RedeemedBy while the claim is open, which
// marks it as a redemption for the reaper.
func (h *holdKeeper) debit(ctx context.Context, r *models.Remittance, claimant string, finish finishFunc) error {
	if err := writable(r); err != nil {
		return err
	}
	if r.HoldState != models.HoldHeld {
		return models.NewError(models.KindInvalidStatus, "hold of remittance %s is %s", r.RemittanceID, r.HoldState)
	}

	expected := r.Version
	r.HoldState = models.HoldDebitPending
	r.RedeemedBy = claimant
	r.UpdatedAt = h.clock.Now()
	if err := h.store.Save(ctx, r, expected); err != nil {
		return err
	}

	// The claim is committed; abandoning it now would leave it to the reaper.
	ctx = context.WithoutCancel(ctx)

	if err := h.ledger.Debit(ctx, r.FreezeHandle); err != nil {
		h.unclaim(ctx, r)
		return &debitError{err: err}
	}
	return h.settle(ctx, r, finish)
}

// settle commits the transitions of a debited claim.
func (h *holdKeeper) settle(ctx context.Context, r *models.Remittance, finish finishFunc) error {
	claimed := r.Version
	now := h.clock.Now()
	if err := finish(r, now); err != nil {
		return err
	}
	r.HoldState = models.HoldDebited
	r.UpdatedAt = now

	if err := h.store.Save(ctx, r, claimed); err != nil {
		h.log.Error().Err(err).Str("remittance_id", r.RemittanceID).Msg("sender debited but completion not saved")
		return &unsettledError{remittanceID: r.RemittanceID, err: err}
	}
	return nil
}

// unclaim puts a claimed remittance back to HELD.
func (h *holdKeeper) unclaim(ctx context.Context, r *models.Remittance) {
	expected := r.Version
	claimant := r.RedeemedBy
	r.HoldState = models.HoldHeld
	r.RedeemedBy = ""
	r.UpdatedAt = h.clock.Now()
	if err := h.store.Save(ctx, r, expected); err != nil {
		r.HoldState = models.HoldDebitPending
		r.RedeemedBy = claimant
		h.log.Error().Err(err).Str("remittance_id", r.RemittanceID).Msg("debit claim not rolled back")
	}
}

// finishClaim completes a claim whose owner never came back. The ledger debit
// is idempotent, so it is repeated before the claim is settled. A hold the
// ledger can no longer debit is put back to HELD, flagged, and reported as
// a ledger error.
func (h *holdKeeper) finishClaim(ctx context.Context, r *models.Remittance) error {
	if r.HoldState != models.HoldDebitPending {
		return nil
	}

	err := h.ledger.Debit(ctx, r.FreezeHandle)
	switch {
	case errors.Is(err, models.ErrUnknownHandle), errors.Is(err, models.ErrHoldReleased):
		h.journal.record(ctx, r, audit.EventReconcile, reaperActor, h.clock.Now(), map[string]string{
			"reason": "debit claim could not be settled",
			"error":  err.Error(),
		})
		h.unclaim(ctx, r)
		return ledgerError(err, "settle debit claim")
	case err != nil:
		return err
	}

	ctx = context.WithoutCancel(ctx)
	prev := len(r.StatusHistory)

	actor := reaperActor
	var finish finishFunc = func(r *models.Remittance, now time.Time) error {
		return completeTransitions(r, reaperActor, now)
	}
	if staffID := r.RedeemedBy; staffID != "" {
		actor = staffID
		finish = func(r *models.Remittance, now time.Time) error {
			return redeemTransitions(r, staffID, now)
		}
	}

	if err := h.settle(ctx, r, finish); err != nil {
		var ue *unsettledError
		if errors.As(err, &ue) {
			return ue.err
		}
		return err
	}
	h.settled(ctx, r, prev, actor)
	return nil
}

// settled journals a committed debit and publishes the settlement advice.
func (h *holdKeeper) settled(ctx context.Context, r *models.Remittance, prev int, actorID string) {
	h.journal.transitions(ctx, r, prev)
	h.journal.record(ctx, r, audit.EventHoldDebited, actorID, r.UpdatedAt, map[string]string{
		"amount":   r.Amount.String(),
		"currency": r.FromCurrency,
	})
	if r.RedeemedAt != nil {
		h.journal.record(ctx, r, audit.EventRedeemed, actorID, r.UpdatedAt, map[string]string{
			"branch": r.ReceiverBranchID,
		})
		h.journal.notify(ctx, r, notify.TemplateRedeemed, r.ReceiverInfo.Contact, map[string]string{
			"amount":   r.ConvertedAmount.String(),
			"currency": r.ToCurrency,
		}, r.UpdatedAt)
	}
	publishSettlement(ctx, h.settlement, r, r.UpdatedAt, h.log)
}

// redeemTransitions walks r along its redemption path to COMPLETED.
func redeemTransitions(r *models.Remittance, staffID string, now time.Time) error {
	from := r.Status
	if from == models.StatusPending {
		autoApprove(r, staffID, now)
	}
	for _, hop := range models.RedemptionPath(from) {
		note := ""
		switch hop {
		case models.StatusApproved:
			note = "approved by redemption policy"
		case models.StatusReceived:
			note = "handed over at destination branch"
		case models.StatusCompleted:
			note = "redeemed"
		}
		if err := r.Transition(hop, now, staffID, note); err != nil {
			return err
		}
	}

	redeemedAt := now
	r.RedeemedAt = &redeemedAt
	r.RedeemedBy = staffID
	return nil
}

func completeTransitions(r *models.Remittance, actorID string, now time.Time) error {
	return r.Transition(models.StatusCompleted, now, actorID, "completed")
}

func autoApprove(r *models.Remittance, staffID string, now time.Time) {
	for i := range r.Approvals {
		if r.Approvals[i].Status == models.ApprovalApproved {
			continue
		}
		at := now
		r.Approvals[i].Status = models.ApprovalApproved
		r.Approvals[i].ApproverID = staffID
		r.Approvals[i].At = &at
		r.Approvals[i].Notes = "auto-approved at redemption"
	}
}
