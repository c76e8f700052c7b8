package services

import (
	"time"

	"github.com/ruralpay/remittance/internal/models"
)

// ApprovalEngine enforces the N-of-N approval policy. Levels must be approved
// strictly in order and each by a different approver.
type ApprovalEngine struct {
	policy map[models.RemittanceType]int
}

func NewApprovalEngine(policy map[models.RemittanceType]int) *ApprovalEngine {
	return &ApprovalEngine{policy: policy}
}

// RequiredLevels returns the number of levels for t. Unlisted types need one.
func (e *ApprovalEngine) RequiredLevels(t models.RemittanceType) int {
	if levels, ok := e.policy[t]; ok && levels > 0 {
		return levels
	}
	return 1
}

// NewApprovals returns the pending approval chain for a fresh remittance.
func (e *ApprovalEngine) NewApprovals(t models.RemittanceType) models.Approvals {
	n := e.RequiredLevels(t)
	approvals := make(models.Approvals, n)
	for i := range approvals {
		approvals[i] = models.Approval{Level: i + 1, Status: models.ApprovalPending}
	}
	return approvals
}

// AddApproval approves level on r and reports whether the chain is now complete,
// in which case r has moved to APPROVED. r is left untouched on error.
func (e *ApprovalEngine) AddApproval(r *models.Remittance, level int, approverID, notes string, at time.Time) (bool, error) {
	if level < 1 || level > len(r.Approvals) {
		return false, models.NewError(models.KindWrongLevel, "level %d is outside 1..%d", level, len(r.Approvals))
	}
	if r.Approvals[level-1].Status == models.ApprovalApproved {
		return false, models.NewError(models.KindAlreadyApproved, "level %d already approved", level)
	}
	if r.Status != models.StatusPending {
		return false, models.NewError(models.KindInvalidStatus, "remittance is %s, approvals need %s", r.Status, models.StatusPending)
	}

	next := nextPendingLevel(r.Approvals)
	if level != next {
		return false, models.NewError(models.KindWrongLevel, "level %d approved before level %d", level, next)
	}
	for _, a := range r.Approvals[:level-1] {
		if a.ApproverID == approverID {
			return false, models.NewError(models.KindValidation, "approver %s already signed level %d", approverID, a.Level)
		}
	}

	approvedAt := at
	r.Approvals[level-1] = models.Approval{
		Level:      level,
		Status:     models.ApprovalApproved,
		ApproverID: approverID,
		At:         &approvedAt,
		Notes:      notes,
	}
	r.UpdatedAt = at

	if level < len(r.Approvals) {
		return false, nil
	}
	if err := r.Transition(models.StatusApproved, at, approverID, "approvals complete"); err != nil {
		return false, err
	}
	return true, nil
}

func nextPendingLevel(approvals models.Approvals) int {
	for _, a := range approvals {
		if a.Status != models.ApprovalApproved {
			return a.Level
		}
	}
	return len(approvals) + 1
}
