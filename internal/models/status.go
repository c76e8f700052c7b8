package models

import "time"

// Status is the lifecycle state of a remittance.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusReceived   Status = "RECEIVED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusExpired    Status = "EXPIRED"
	StatusFailed     Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusCancelled, StatusExpired, StatusFailed},
	StatusApproved:   {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusReceived, StatusCompleted, StatusFailed},
	StatusReceived:   {StatusCompleted, StatusFailed},
}

// ActiveStatuses hold reserved funds and a live secret code.
var ActiveStatuses = []Status{StatusPending, StatusApproved, StatusProcessing, StatusReceived}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusProcessing, StatusReceived,
		StatusCompleted, StatusCancelled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusApproved, StatusProcessing, StatusReceived:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s.Valid() && !s.IsActive()
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsLegalPath reports whether statuses start at PENDING and only follow legal edges.
func IsLegalPath(statuses []Status) bool {
	if len(statuses) == 0 || statuses[0] != StatusPending {
		return false
	}
	for i := 1; i < len(statuses); i++ {
		if !CanTransition(statuses[i-1], statuses[i]) {
			return false
		}
	}
	return true
}

// RedemptionPath lists the hops a redemption walks from the given status to COMPLETED.
// The destination-branch handoff is always recorded as RECEIVED before completion.
func RedemptionPath(from Status) []Status {
	switch from {
	case StatusPending:
		return []Status{StatusApproved, StatusProcessing, StatusReceived, StatusCompleted}
	case StatusApproved:
		return []Status{StatusProcessing, StatusReceived, StatusCompleted}
	case StatusProcessing:
		return []Status{StatusReceived, StatusCompleted}
	case StatusReceived:
		return []Status{StatusCompleted}
	}
	return nil
}

// Transition moves the aggregate along a legal edge and appends the history entry.
func (r *Remittance) Transition(to Status, at time.Time, actorID, note string) error {
	if !CanTransition(r.Status, to) {
		return NewError(KindInvalidStatus, "cannot move remittance from %s to %s", r.Status, to)
	}

	r.Status = to
	r.UpdatedAt = at
	r.StatusHistory = append(r.StatusHistory, StatusChange{
		Status:  to,
		At:      at,
		ActorID: actorID,
		Note:    note,
	})
	return nil
}
