package services

import (
	"context"
	"fmt"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

// StepResolution is the outcome of resolving one step.
type StepResolution struct {
	Level     int
	Skipped   bool
	Approvers []models.Approver
}

// Routing is the outcome of looking for the next level to enter.
type Routing struct {
	// Done is true when no level remains and the request is approved.
	Done bool
	// Level is the level entered when Done is false.
	Level     int
	Approvers []models.Approver
	// SkippedLevels lists non-mandatory levels whose conditions failed on the way.
	SkippedLevels []int
}

// WorkflowEvaluator decides which steps a document passes through and who acts on them.
type WorkflowEvaluator struct {
	conditions *ConditionEvaluator
	directory  ports.Directory
}

// NewWorkflowEvaluator creates a WorkflowEvaluator
func NewWorkflowEvaluator(conditions *ConditionEvaluator, directory ports.Directory) *WorkflowEvaluator {
	return &WorkflowEvaluator{conditions: conditions, directory: directory}
}

// LastLevel returns the level whose approval completes the workflow.
func (e *WorkflowEvaluator) LastLevel(wf *models.WorkflowDefinition) int {
	if wf.LevelType == models.LevelSingle {
		return 1
	}
	return len(wf.Steps)
}

// ResolveApprover resolves the approvers of the step at level.
// A non-mandatory step whose conditions fail comes back Skipped; a mandatory
// one fails with CONDITION_UNSATISFIABLE.
func (e *WorkflowEvaluator) ResolveApprover(ctx context.Context, wf *models.WorkflowDefinition, level int, doc map[string]interface{}) (*StepResolution, error) {
	if level < 1 || level > len(wf.Steps) {
		return nil, fmt.Errorf("level %d out of range 1..%d", level, len(wf.Steps))
	}
	step := wf.Steps[level-1]

	if !e.conditions.Evaluate(step.Conditions, doc) {
		if step.Mandatory {
			return nil, apperrors.New(apperrors.KindConditionUnsatisfiable, "conditions of mandatory step %d (%s) are not satisfied", level, step.Name)
		}
		return &StepResolution{Level: level, Skipped: true}, nil
	}

	approvers, err := e.resolveApprovers(ctx, step, doc)
	if err != nil {
		return nil, err
	}
	if !wf.LevelType.MultiSlot() {
		approvers = approvers[:1]
	}
	return &StepResolution{Level: level, Approvers: approvers}, nil
}

// NextLevel finds the first level after from that is not skipped.
func (e *WorkflowEvaluator) NextLevel(ctx context.Context, wf *models.WorkflowDefinition, from int, doc map[string]interface{}) (*Routing, error) {
	if len(wf.Steps) == 0 {
		return nil, apperrors.New(apperrors.KindNoStepsDefined, "workflow %s has no steps", wf.ID)
	}

	routing := &Routing{}
	last := e.LastLevel(wf)
	for level := from + 1; level <= last; level++ {
		res, err := e.ResolveApprover(ctx, wf, level, doc)
		if err != nil {
			return nil, err
		}
		if res.Skipped {
			routing.SkippedLevels = append(routing.SkippedLevels, level)
			continue
		}
		routing.Level = level
		routing.Approvers = res.Approvers
		return routing, nil
	}
	routing.Done = true
	return routing, nil
}

// ResolveEscalation resolves the escalation target of the current level of req:
// the first member of the step's escalation role who has not already taken part in the level.
func (e *WorkflowEvaluator) ResolveEscalation(ctx context.Context, req *models.ApprovalRequest) (models.Approver, error) {
	step, ok := req.CurrentStep()
	if !ok || step.EscalationRole == "" {
		return models.Approver{}, apperrors.New(apperrors.KindApproverUnresolved, "level %d has no escalation role", req.CurrentLevel)
	}
	users, err := e.directory.UsersInRole(ctx, step.EscalationRole)
	if err != nil {
		return models.Approver{}, fmt.Errorf("failed to resolve escalation role %s: %w", step.EscalationRole, err)
	}

	acted := req.ActedAtCurrentLevel()
	for _, u := range users {
		if !acted[u.ID] {
			return models.Approver{ID: u.ID, Name: u.Name}, nil
		}
	}
	return models.Approver{}, apperrors.New(apperrors.KindApproverUnresolved, "no eligible user holds escalation role %q", step.EscalationRole)
}

func (e *WorkflowEvaluator) resolveApprovers(ctx context.Context, step models.Step, doc map[string]interface{}) ([]models.Approver, error) {
	var approvers []models.Approver

	switch step.ApproverType {
	case models.ApproverRole:
		users, err := e.directory.UsersInRole(ctx, step.RequiredRole)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role %s: %w", step.RequiredRole, err)
		}
		for _, u := range users {
			approvers = append(approvers, models.Approver{ID: u.ID, Name: u.Name})
		}
	case models.ApproverSpecificUsers:
		for _, id := range step.ApproverIDs {
			approver, err := e.lookupApprover(ctx, id)
			if err != nil {
				return nil, err
			}
			approvers = append(approvers, approver)
		}
	case models.ApproverDynamic:
		raw, ok := LookupField(doc, step.ApproverField)
		id, isString := raw.(string)
		if !ok || !isString || id == "" {
			return nil, apperrors.New(apperrors.KindApproverUnresolved, "document field %q does not name an approver", step.ApproverField)
		}
		approver, err := e.lookupApprover(ctx, id)
		if err != nil {
			return nil, err
		}
		approvers = append(approvers, approver)
	default:
		return nil, fmt.Errorf("unknown approver type %q", step.ApproverType)
	}

	if len(approvers) == 0 {
		return nil, apperrors.New(apperrors.KindApproverUnresolved, "step %d (%s) has no approvers", step.Order, step.Name)
	}
	return approvers, nil
}

func (e *WorkflowEvaluator) lookupApprover(ctx context.Context, id string) (models.Approver, error) {
	user, err := e.directory.GetUser(ctx, id)
	if err != nil {
		return models.Approver{}, fmt.Errorf("failed to look up user %s: %w", id, err)
	}
	if user == nil {
		return models.Approver{ID: id, Name: id}, nil
	}
	return models.Approver{ID: user.ID, Name: user.Name}, nil
}
