package audit

import (
	"context"
	"errors"
	"time"
)

type EventType string

const (
	EventCreated        EventType = "REMITTANCE_CREATED"
	EventApproval       EventType = "APPROVAL_ADDED"
	EventStatusChanged  EventType = "STATUS_CHANGED"
	EventRedeemed       EventType = "REMITTANCE_REDEEMED"
	EventHoldReleased   EventType = "HOLD_RELEASED"
	EventHoldDebited    EventType = "HOLD_DEBITED"
	EventReleaseFailed  EventType = "HOLD_RELEASE_FAILED"
	EventRedeemRejected EventType = "REDEEM_REJECTED"
	EventReconcile      EventType = "HOLD_RECONCILIATION_REQUIRED"
)

// Event is one append-only audit record.
type Event struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	RemittanceID string            `json:"remittance_id"`
	EventType    EventType         `json:"event_type"`
	ActorID      string            `json:"actor_id,omitempty"`
	At           time.Time         `json:"at"`
	Details      map[string]string `json:"details,omitempty"`
}

// Sink stores audit events. Implementations never update or delete.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Multi fans an event out to every sink and reports all failures.
type Multi []Sink

func (m Multi) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
