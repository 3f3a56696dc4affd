package services

import (
	"context"
	"strings"
	"time"

	"github.com/careflow/approvals/internal/domain"
	"github.com/careflow/approvals/internal/domain/models"
	apperrors "github.com/careflow/approvals/pkg/errors"
	"github.com/careflow/approvals/pkg/utils"
)

// SystemActor is the actor recorded for engine-initiated history entries.
const SystemActor = "system"

// SubmitInput describes a document entering a workflow.
type SubmitInput struct {
	WorkflowID   string                 `json:"workflow_id"`
	DocumentType string                 `json:"document_type"`
	DocumentID   string                 `json:"document_id"`
	Document     map[string]interface{} `json:"document"`
	RequesterID  string                 `json:"requester_id"`
}

// ApprovalStateMachine owns the lifecycle of a single ApprovalRequest.
//
// Every method works on a copy of the request it is given and returns the new
// state; nothing is persisted here. A failed transition leaves the input untouched.
type ApprovalStateMachine struct {
	evaluator *WorkflowEvaluator
	fsm       *domain.RequestStateMachine
	now       func() time.Time
}

// NewApprovalStateMachine creates an ApprovalStateMachine. now defaults to time.Now.
func NewApprovalStateMachine(evaluator *WorkflowEvaluator, now func() time.Time) *ApprovalStateMachine {
	if now == nil {
		now = time.Now
	}
	return &ApprovalStateMachine{
		evaluator: evaluator,
		fsm:       domain.NewRequestStateMachine(),
		now:       now,
	}
}

// Create builds a pending request for in against a snapshot of wf and routes it to its first level.
func (m *ApprovalStateMachine) Create(ctx context.Context, wf *models.WorkflowDefinition, in SubmitInput) (*models.ApprovalRequest, error) {
	if len(wf.Steps) == 0 {
		return nil, apperrors.New(apperrors.KindNoStepsDefined, "workflow %s has no steps", wf.ID)
	}

	now := m.now().UTC()
	req := &models.ApprovalRequest{
		ID:           utils.GenerateID(),
		WorkflowID:   wf.ID,
		Workflow:     *wf.Clone(),
		DocumentType: in.DocumentType,
		DocumentID:   in.DocumentID,
		Document:     copyDocument(in.Document),
		RequesterID:  in.RequesterID,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		History:      []models.HistoryEntry{},
	}

	if err := m.enterNextLevel(ctx, req, 0, now); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve records actorID's approval of the current level.
func (m *ApprovalStateMachine) Approve(ctx context.Context, req *models.ApprovalRequest, actorID, comment string) (*models.ApprovalRequest, error) {
	if _, err := m.fsm.Transition(req.Status, domain.TransitionAdvance); err != nil {
		return nil, err
	}

	out := req.Clone()
	slot := out.PendingSlot(actorID)
	if slot < 0 {
		return nil, apperrors.New(apperrors.KindNotCurrentApprover, "%s is not a pending approver of request %s", actorID, req.ID)
	}
	step, _ := out.CurrentStep()
	if step.RequireComment && strings.TrimSpace(comment) == "" {
		return nil, apperrors.NewValidationError("comment", "a comment is required to approve this step")
	}

	now := m.now().UTC()
	appendHistory(out, models.ActionApproved, actorID, "", comment, out.CurrentLevel, now)
	out.Slots[slot].Status = models.SlotApproved
	out.UpdatedAt = now

	switch out.Workflow.LevelType {
	case models.LevelParallel:
		if len(out.PendingApprovers()) > 0 {
			out.SyncCurrentApprover()
			return out, nil
		}
	case models.LevelAnyOne:
		for i := range out.Slots {
			if out.Slots[i].Status != models.SlotPending {
				continue
			}
			out.Slots[i].Status = models.SlotSuperseded
			appendHistory(out, models.ActionSuperseded, out.Slots[i].ApproverID, "", "level approved by "+actorID, out.CurrentLevel, now)
		}
	}

	if err := m.enterNextLevel(ctx, out, out.CurrentLevel, now); err != nil {
		return nil, err
	}
	return out, nil
}

// Reject records actorID's rejection. On a hierarchical workflow the first
// rejection at a level with an escalation role is escalated instead.
func (m *ApprovalStateMachine) Reject(ctx context.Context, req *models.ApprovalRequest, actorID, reason string) (*models.ApprovalRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("reason", "a rejection reason is required")
	}
	if _, err := m.fsm.Transition(req.Status, domain.TransitionReject); err != nil {
		return nil, err
	}

	out := req.Clone()
	if out.PendingSlot(actorID) < 0 {
		return nil, apperrors.New(apperrors.KindNotCurrentApprover, "%s is not a pending approver of request %s", actorID, req.ID)
	}
	step, _ := out.CurrentStep()
	if step.ApprovalType == models.ApprovalReviewOnly {
		return nil, apperrors.New(apperrors.KindInvalidTransition, "step %d (%s) is review-only and cannot be rejected", step.Order, step.Name)
	}

	now := m.now().UTC()
	appendHistory(out, models.ActionRejected, actorID, "", reason, out.CurrentLevel, now)
	out.UpdatedAt = now

	if out.Workflow.LevelType == models.LevelHierarchical && step.EscalationRole != "" && out.LastEscalatedLevel != out.CurrentLevel {
		// an unresolvable escalation role falls through to a plain rejection
		if target, err := m.evaluator.ResolveEscalation(ctx, out); err == nil {
			escalateTo(out, target, actorID, reason, now)
			return out, nil
		}
	}

	out.Status = models.StatusRejected
	out.RejectionReason = reason
	out.RejectedAt = &now
	out.Slots = nil
	out.SyncCurrentApprover()
	return out, nil
}

// IsOverdue reports whether req may be escalated now.
func (m *ApprovalStateMachine) IsOverdue(req *models.ApprovalRequest) bool {
	if !m.fsm.CanTransition(req.Status, domain.TransitionEscalate) || !req.Workflow.AutoEscalate {
		return false
	}
	if req.LastEscalatedLevel == req.CurrentLevel {
		return false
	}
	step, ok := req.CurrentStep()
	if !ok {
		return false
	}
	timeout := req.Workflow.EffectiveTimeout(step)
	if timeout <= 0 {
		return false
	}
	return m.now().Sub(req.UpdatedAt) > timeout
}

// Escalate hands an overdue level to its escalation role. It reports false,
// with req unchanged, when the request is not overdue or the level was already escalated.
func (m *ApprovalStateMachine) Escalate(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, bool, error) {
	if _, err := m.fsm.Transition(req.Status, domain.TransitionEscalate); err != nil {
		return nil, false, err
	}
	if !m.IsOverdue(req) {
		return req, false, nil
	}

	target, err := m.evaluator.ResolveEscalation(ctx, req)
	if err != nil {
		return nil, false, err
	}

	out := req.Clone()
	escalateTo(out, target, SystemActor, "timeout exceeded", m.now().UTC())
	return out, true, nil
}

// Resubmit restarts a rejected request against the live definition with updates merged into its document.
func (m *ApprovalStateMachine) Resubmit(ctx context.Context, req *models.ApprovalRequest, live *models.WorkflowDefinition, updates map[string]interface{}) (*models.ApprovalRequest, error) {
	if _, err := m.fsm.Transition(req.Status, domain.TransitionResubmit); err != nil {
		return nil, err
	}
	policy := req.Workflow.RevisionPolicy
	if !policy.Allows(req.RevisionCount) {
		return nil, apperrors.New(apperrors.KindRevisionLimitExceeded, "request %s has used %d of %d revisions", req.ID, req.RevisionCount, policy.MaxRevisions)
	}
	if len(live.Steps) == 0 {
		return nil, apperrors.New(apperrors.KindNoStepsDefined, "workflow %s has no steps", live.ID)
	}

	out := req.Clone()
	if out.Document == nil {
		out.Document = make(map[string]interface{}, len(updates))
	}
	for k, v := range updates {
		out.Document[k] = v
	}

	now := m.now().UTC()
	out.Workflow = *live.Clone()
	out.Status = models.StatusPending
	out.RevisionCount++
	out.RejectionReason = ""
	out.RejectedAt = nil
	out.LastEscalatedLevel = 0
	out.UpdatedAt = now
	appendHistory(out, models.ActionResubmitted, req.RequesterID, "", "", 1, now)

	if err := m.enterNextLevel(ctx, out, 0, now); err != nil {
		return nil, err
	}
	return out, nil
}

// Remind records a reminder to the pending approvers. The escalation clock is not reset.
func (m *ApprovalStateMachine) Remind(req *models.ApprovalRequest, actorID string) (*models.ApprovalRequest, error) {
	if _, err := m.fsm.Transition(req.Status, domain.TransitionRemind); err != nil {
		return nil, err
	}
	out := req.Clone()
	appendHistory(out, models.ActionReminderSent, actorID, "", "", out.CurrentLevel, m.now().UTC())
	return out, nil
}

// enterNextLevel routes req past level from, recording skipped levels and
// informing the approvers of inform-only levels, and either fills the slots of
// the next level that needs a decision or completes the request.
func (m *ApprovalStateMachine) enterNextLevel(ctx context.Context, req *models.ApprovalRequest, from int, now time.Time) error {
	for {
		routing, err := m.evaluator.NextLevel(ctx, &req.Workflow, from, req.Document)
		if err != nil {
			return err
		}
		for _, level := range routing.SkippedLevels {
			appendHistory(req, models.ActionSkipped, SystemActor, "", "step conditions not met", level, now)
			from = level
		}

		if routing.Done {
			if _, err := m.fsm.Transition(req.Status, domain.TransitionComplete); err != nil {
				return err
			}
			req.Status = models.StatusApproved
			req.CurrentLevel = from
			req.ApprovedAt = &now
			req.Slots = nil
			req.SyncCurrentApprover()
			return nil
		}

		if req.Workflow.Steps[routing.Level-1].ApprovalType != models.ApprovalInformOnly {
			req.CurrentLevel = routing.Level
			req.Slots = make([]models.ApproverSlot, 0, len(routing.Approvers))
			for _, a := range routing.Approvers {
				req.Slots = append(req.Slots, models.ApproverSlot{ApproverID: a.ID, ApproverName: a.Name, Status: models.SlotPending})
			}
			req.SyncCurrentApprover()
			return nil
		}

		for _, a := range routing.Approvers {
			appendHistory(req, models.ActionInformed, a.ID, "", "", routing.Level, now)
		}
		from = routing.Level
	}
}

// escalateTo collapses the pending slots of the current level onto target.
func escalateTo(req *models.ApprovalRequest, target models.Approver, actorID, comment string, now time.Time) {
	pending := len(req.PendingApprovers())

	slots := make([]models.ApproverSlot, 0, len(req.Slots)+1)
	for _, s := range req.Slots {
		if s.Status == models.SlotPending {
			if pending <= 1 {
				continue
			}
			s.Status = models.SlotSuperseded
			appendHistory(req, models.ActionSuperseded, s.ApproverID, target.ID, "level escalated", req.CurrentLevel, now)
		}
		slots = append(slots, s)
	}
	req.Slots = append(slots, models.ApproverSlot{ApproverID: target.ID, ApproverName: target.Name, Status: models.SlotPending})

	appendHistory(req, models.ActionEscalated, actorID, target.ID, comment, req.CurrentLevel, now)
	req.LastEscalatedLevel = req.CurrentLevel
	req.UpdatedAt = now
	req.SyncCurrentApprover()
}

func appendHistory(req *models.ApprovalRequest, action models.HistoryAction, actorID, delegateID, comment string, level int, at time.Time) {
	req.History = append(req.History, models.HistoryEntry{
		ID:         utils.GenerateID(),
		Action:     action,
		ActorID:    actorID,
		DelegateID: delegateID,
		Comment:    comment,
		Level:      level,
		Timestamp:  at,
	})
}

func copyDocument(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
