package services

import (
	"context"
	"fmt"
	"time"

	"github.com/careflow/approvals/internal/domain"
	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

// DelegationManager reassigns a pending decision according to the current step's delegation policy.
type DelegationManager struct {
	directory ports.Directory
	fsm       *domain.RequestStateMachine
	now       func() time.Time
}

// NewDelegationManager creates a DelegationManager. now defaults to time.Now.
func NewDelegationManager(directory ports.Directory, now func() time.Time) *DelegationManager {
	if now == nil {
		now = time.Now
	}
	return &DelegationManager{
		directory: directory,
		fsm:       domain.NewRequestStateMachine(),
		now:       now,
	}
}

// Delegate moves fromUserID's pending slot to toUserID.
func (d *DelegationManager) Delegate(ctx context.Context, req *models.ApprovalRequest, fromUserID, toUserID string) (*models.ApprovalRequest, error) {
	if _, err := d.fsm.Transition(req.Status, domain.TransitionDelegate); err != nil {
		return nil, err
	}

	slot := req.PendingSlot(fromUserID)
	if slot < 0 {
		return nil, notAllowed("%s is not a pending approver of request %s", fromUserID, req.ID)
	}
	if fromUserID == toUserID {
		return nil, notAllowed("cannot delegate to yourself")
	}

	step, _ := req.CurrentStep()
	if !step.CanDelegate {
		return nil, notAllowed("step %d (%s) does not allow delegation", step.Order, step.Name)
	}

	delegate, err := d.directory.GetUser(ctx, toUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up delegate %s: %w", toUserID, err)
	}
	if delegate == nil {
		return nil, notAllowed("unknown delegate %s", toUserID)
	}
	if len(step.DelegationRoles) > 0 && !holdsAny(delegate, step.DelegationRoles) {
		return nil, notAllowed("%s holds none of the delegation roles %v", toUserID, step.DelegationRoles)
	}
	if req.HoldsSlot(toUserID) {
		return nil, notAllowed("%s already holds a slot at level %d", toUserID, req.CurrentLevel)
	}

	now := d.now().UTC()
	out := req.Clone()
	out.Slots[slot].ApproverID = delegate.ID
	out.Slots[slot].ApproverName = delegate.Name
	appendHistory(out, models.ActionDelegated, fromUserID, delegate.ID, "", out.CurrentLevel, now)
	out.UpdatedAt = now
	out.SyncCurrentApprover()
	return out, nil
}

func holdsAny(u *models.User, roles []string) bool {
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

func notAllowed(format string, args ...interface{}) error {
	return apperrors.New(apperrors.KindDelegationNotAllowed, format, args...)
}
