package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ruralpay/remittance/internal/audit"
	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/notify"
)

// journal writes audit events and customer notifications on behalf of the
// engines. Neither ever fails the operation that triggered it. Notifications
// are sent in the background; wait blocks until they are all done.
type journal struct {
	audit         audit.Sink
	notifier      Notifier
	notifyTimeout time.Duration
	log           zerolog.Logger

	inflight sync.WaitGroup
}

func (j *journal) record(ctx context.Context, r *models.Remittance, eventType audit.EventType, actorID string, at time.Time, details map[string]string) {
	event := audit.Event{
		ID:           uuid.NewString(),
		TenantID:     r.TenantID,
		RemittanceID: r.RemittanceID,
		EventType:    eventType,
		ActorID:      actorID,
		At:           at,
		Details:      details,
	}
	if err := j.audit.Record(context.WithoutCancel(ctx), event); err != nil {
		j.log.Error().Err(err).
			Str("remittance_id", r.RemittanceID).
			Str("event_type", string(eventType)).
			Msg("failed to record audit event")
	}
}

// transitions records one STATUS_CHANGED event per history entry appended since from.
func (j *journal) transitions(ctx context.Context, r *models.Remittance, from int) {
	for i := from; i < len(r.StatusHistory); i++ {
		change := r.StatusHistory[i]
		details := map[string]string{"to": string(change.Status)}
		if i > 0 {
			details["from"] = string(r.StatusHistory[i-1].Status)
		}
		if change.Note != "" {
			details["note"] = change.Note
		}
		j.record(ctx, r, audit.EventStatusChanged, change.ActorID, change.At, details)
	}
}

func (j *journal) notify(ctx context.Context, r *models.Remittance, template, recipient string, params map[string]string, at time.Time) {
	if recipient == "" {
		return
	}

	msg := notify.Notification{
		TenantID:     r.TenantID,
		RemittanceID: r.RemittanceID,
		Template:     template,
		Recipient:    recipient,
		Params:       params,
		At:           at,
	}
	ctx = context.WithoutCancel(ctx)

	j.inflight.Add(1)
	go func() {
		defer j.inflight.Done()

		ctx, cancel := context.WithTimeout(ctx, j.notifyTimeout)
		defer cancel()

		if err := j.notifier.Notify(ctx, msg); err != nil {
			j.log.Warn().Err(err).
				Str("remittance_id", msg.RemittanceID).
				Str("template", msg.Template).
				Msg("notification not delivered")
		}
	}()
}

func (j *journal) wait() {
	j.inflight.Wait()
}
