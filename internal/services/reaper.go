package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/notify"
	"github.com/ruralpay/remittance/internal/repository"
)

const reaperActor = "system:reaper"

// SweepResult summarises one reaper pass.
type SweepResult struct {
	Expired  int
	Skipped  int
	Released int
	Settled  int
	Failed   int
}

// ExpiryReaper expires PENDING remittances past their deadline, returns the
// held funds and finishes debit claims older than grace. Every write is
// conditional on version, so replicas may run it concurrently.
type ExpiryReaper struct {
	store     repository.RemittanceStore
	holds     *holdKeeper
	journal   *journal
	clock     idgen.Clock
	log       zerolog.Logger
	tick      time.Duration
	jitter    time.Duration
	batch     int
	perTenant int
	grace     time.Duration
}

// Run sweeps on every tick until ctx is cancelled.
func (r *ExpiryReaper) Run(ctx context.Context) error {
	r.log.Info().Dur("tick", r.tick).Int("batch", r.batch).Msg("expiry reaper started")

	timer := time.NewTimer(r.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("expiry reaper stopped")
			return nil
		case <-timer.C:
			res, err := r.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Msg("reaper sweep failed")
			}
			if res.Expired+res.Released+res.Settled+res.Failed > 0 {
				r.log.Info().
					Int("expired", res.Expired).
					Int("skipped", res.Skipped).
					Int("released", res.Released).
					Int("settled", res.Settled).
					Int("failed", res.Failed).
					Msg("reaper sweep finished")
			}
			timer.Reset(r.nextDelay())
		}
	}
}

func (r *ExpiryReaper) nextDelay() time.Duration {
	if r.jitter <= 0 {
		return r.tick
	}
	return r.tick + time.Duration(rand.Int63n(int64(r.jitter)))
}

// Sweep expires due remittances batch by batch, retries pending hold releases
// and finishes stale debit claims.
func (r *ExpiryReaper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		due, err := r.store.ListExpiring(ctx, r.clock.Now(), r.perTenant, r.batch)
		if err != nil {
			return res, err
		}

		progressed := false
		for _, rem := range due {
			switch err := r.expire(ctx, rem); {
			case err == nil:
				res.Expired++
				progressed = true
			case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidStatus):
				res.Skipped++
				progressed = true
			default:
				res.Failed++
				r.log.Error().Err(err).Str("remittance_id", rem.RemittanceID).Msg("failed to expire remittance")
			}
		}

		if len(due) < r.batch || !progressed {
			break
		}
	}

	pending, err := r.store.ListPendingRelease(ctx, r.batch)
	if err != nil {
		return res, err
	}
	for _, rem := range pending {
		if err := r.holds.release(ctx, rem, reaperActor); err != nil {
			res.Failed++
			continue
		}
		res.Released++
	}

	claims, err := r.store.ListPendingDebit(ctx, r.clock.Now().Add(-r.grace), r.batch)
	if err != nil {
		return res, err
	}
	for _, rem := range claims {
		switch err := r.holds.finishClaim(ctx, rem); {
		case err == nil:
			res.Settled++
		case errors.Is(err, models.ErrConflict):
			res.Skipped++
		default:
			res.Failed++
			r.log.Error().Err(err).Str("remittance_id", rem.RemittanceID).Msg("failed to finish debit claim")
		}
	}

	return res, nil
}

func (r *ExpiryReaper) expire(ctx context.Context, rem *models.Remittance) error {
	if err := r.holds.terminate(ctx, rem, models.StatusExpired, reaperActor, "claim window closed"); err != nil {
		return err
	}

	r.journal.notify(ctx, rem, notify.TemplateExpired, rem.SenderContact, map[string]string{
		"amount":   rem.Amount.String(),
		"currency": rem.FromCurrency,
	}, rem.UpdatedAt)

	r.log.Info().
		Str("remittance_id", rem.RemittanceID).
		Str("tenant_id", rem.TenantID).
		Msg("remittance expired")
	return nil
}
