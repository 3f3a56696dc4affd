package models

import (
	"fmt"
	"time"

	apperrors "github.com/careflow/approvals/pkg/errors"
)

// TriggerKind controls how documents enter a workflow
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"
	TriggerAutomatic TriggerKind = "automatic"
)

// LevelType is the sequencing discipline of a workflow
type LevelType string

const (
	LevelSingle       LevelType = "single"
	LevelSequential   LevelType = "sequential"
	LevelParallel     LevelType = "parallel"
	LevelAnyOne       LevelType = "any_one"
	LevelHierarchical LevelType = "hierarchical"
)

// Valid reports whether t is a known level type.
func (t LevelType) Valid() bool {
	switch t {
	case LevelSingle, LevelSequential, LevelParallel, LevelAnyOne, LevelHierarchical:
		return true
	}
	return false
}

// MultiSlot reports whether a level may hold more than one pending approver.
func (t LevelType) MultiSlot() bool {
	return t == LevelParallel || t == LevelAnyOne
}

// ApproverType says how a step's approvers are found
type ApproverType string

const (
	ApproverRole          ApproverType = "role"
	ApproverSpecificUsers ApproverType = "specific_users"
	ApproverDynamic       ApproverType = "dynamic"
)

// ApprovalType is the kind of action a step asks for
type ApprovalType string

const (
	ApprovalApproveReject ApprovalType = "approve_reject"
	ApprovalReviewOnly    ApprovalType = "review_only"
	ApprovalInformOnly    ApprovalType = "inform_only"
)

// Operator is a condition comparison operator
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

// LogicalOperator links a condition to the one that follows it
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// Condition is one comparison against the document context.
type Condition struct {
	Field           string          `json:"field" yaml:"field"`
	Operator        Operator        `json:"operator" yaml:"operator"`
	Value           interface{}     `json:"value" yaml:"value"`
	LogicalOperator LogicalOperator `json:"logical_operator,omitempty" yaml:"logical_operator,omitempty"`
}

// Notification channel names
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelInApp = "in_app"
)

// NotificationChannels selects how a step's approvers are told about work.
type NotificationChannels struct {
	Email bool `json:"email" yaml:"email"`
	Push  bool `json:"push" yaml:"push"`
	InApp bool `json:"in_app" yaml:"in_app"`
}

// Enabled lists the selected channels. A step that selects none is notified in-app.
func (c NotificationChannels) Enabled() []string {
	var out []string
	if c.Email {
		out = append(out, ChannelEmail)
	}
	if c.Push {
		out = append(out, ChannelPush)
	}
	if c.InApp || len(out) == 0 {
		out = append(out, ChannelInApp)
	}
	return out
}

// Step is one level of a workflow.
type Step struct {
	Order              int                  `json:"order" yaml:"order"`
	Name               string               `json:"name" yaml:"name"`
	ApproverType       ApproverType         `json:"approver_type" yaml:"approver_type"`
	RequiredRole       string               `json:"required_role,omitempty" yaml:"required_role,omitempty"`
	ApproverIDs        []string             `json:"approver_ids,omitempty" yaml:"approver_ids,omitempty"`
	ApproverField      string               `json:"approver_field,omitempty" yaml:"approver_field,omitempty"`
	ApprovalType       ApprovalType         `json:"approval_type" yaml:"approval_type"`
	Mandatory          bool                 `json:"mandatory" yaml:"mandatory"`
	TimeoutHours       int                  `json:"timeout_hours,omitempty" yaml:"timeout_hours,omitempty"`
	EscalationRole     string               `json:"escalation_role,omitempty" yaml:"escalation_role,omitempty"`
	CanDelegate        bool                 `json:"can_delegate" yaml:"can_delegate"`
	DelegationRoles    []string             `json:"delegation_roles,omitempty" yaml:"delegation_roles,omitempty"`
	RequireComment     bool                 `json:"require_comment" yaml:"require_comment"`
	RequireAttachment  bool                 `json:"require_attachment" yaml:"require_attachment"`
	Conditions         []Condition          `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	NotificationConfig NotificationChannels `json:"notifications" yaml:"notifications"`
}

// RevisionPolicy limits how often a rejected request may be resubmitted.
type RevisionPolicy struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	MaxRevisions int  `json:"max_revisions" yaml:"max_revisions"`
}

// Allows reports whether a request that has been revised count times may be revised again.
func (p RevisionPolicy) Allows(count int) bool {
	return p.Enabled && count < p.MaxRevisions
}

// WorkflowDefinition is an administrator-defined approval process.
type WorkflowDefinition struct {
	ID                     string         `json:"id" yaml:"id"`
	Name                   string         `json:"name" yaml:"name"`
	TargetModule           string         `json:"target_module" yaml:"target_module"`
	TriggerKind            TriggerKind    `json:"trigger_kind" yaml:"trigger_kind"`
	TriggerConditions      []Condition    `json:"trigger_conditions,omitempty" yaml:"trigger_conditions,omitempty"`
	LevelType              LevelType      `json:"level_type" yaml:"level_type"`
	IsActive               bool           `json:"is_active" yaml:"is_active"`
	Steps                  []Step         `json:"steps" yaml:"steps"`
	DefaultTimeoutHours    int            `json:"default_timeout_hours" yaml:"default_timeout_hours"`
	AutoEscalate           bool           `json:"auto_escalate" yaml:"auto_escalate"`
	EscalationTimeoutHours int            `json:"escalation_timeout_hours,omitempty" yaml:"escalation_timeout_hours,omitempty"`
	RevisionPolicy         RevisionPolicy `json:"revision_policy" yaml:"revision_policy"`
	CreatedAt              time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt              time.Time      `json:"updated_at" yaml:"-"`
}

// Validate checks the structural rules of a definition.
func (w *WorkflowDefinition) Validate() error {
	if w.Name == "" {
		return apperrors.NewValidationError("name", "workflow name is required")
	}
	if !w.LevelType.Valid() {
		return apperrors.NewValidationError("level_type", fmt.Sprintf("unknown level type %q", w.LevelType))
	}
	if w.TriggerKind != TriggerManual && w.TriggerKind != TriggerAutomatic {
		return apperrors.NewValidationError("trigger_kind", fmt.Sprintf("unknown trigger kind %q", w.TriggerKind))
	}
	if len(w.Steps) == 0 {
		return apperrors.New(apperrors.KindNoStepsDefined, "workflow %q has no steps", w.Name)
	}
	if w.LevelType == LevelSingle && len(w.Steps) != 1 {
		return apperrors.NewValidationError("steps", "single-level workflows have exactly one step")
	}
	for i, step := range w.Steps {
		if step.Order != i+1 {
			return apperrors.NewValidationError("steps", fmt.Sprintf("step %d has order %d, orders must be 1..n in sequence", i+1, step.Order))
		}
		if err := step.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Step) validate() error {
	field := fmt.Sprintf("steps[%d]", s.Order)
	switch s.ApproverType {
	case ApproverRole:
		if s.RequiredRole == "" {
			return apperrors.NewValidationError(field, "role-based step needs required_role")
		}
	case ApproverSpecificUsers:
		if len(s.ApproverIDs) == 0 {
			return apperrors.NewValidationError(field, "specific-users step needs approver_ids")
		}
	case ApproverDynamic:
		if s.ApproverField == "" {
			return apperrors.NewValidationError(field, "dynamic step needs approver_field")
		}
	default:
		return apperrors.NewValidationError(field, fmt.Sprintf("unknown approver type %q", s.ApproverType))
	}
	switch s.ApprovalType {
	case ApprovalApproveReject, ApprovalReviewOnly, ApprovalInformOnly:
	default:
		return apperrors.NewValidationError(field, fmt.Sprintf("unknown approval type %q", s.ApprovalType))
	}
	for _, c := range s.Conditions {
		switch c.Operator {
		case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpNotContains:
		default:
			return apperrors.NewValidationError(field, fmt.Sprintf("unknown operator %q", c.Operator))
		}
	}
	return nil
}

// EffectiveTimeout returns how long a request may wait at step before it is overdue.
// Zero means the step never times out.
func (w *WorkflowDefinition) EffectiveTimeout(step Step) time.Duration {
	hours := step.TimeoutHours
	if hours <= 0 {
		hours = w.EscalationTimeoutHours
	}
	if hours <= 0 {
		hours = w.DefaultTimeoutHours
	}
	return time.Duration(hours) * time.Hour
}

// Clone returns a deep copy of the definition.
func (w *WorkflowDefinition) Clone() *WorkflowDefinition {
	c := *w
	c.TriggerConditions = append([]Condition(nil), w.TriggerConditions...)
	c.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		s.ApproverIDs = append([]string(nil), s.ApproverIDs...)
		s.DelegationRoles = append([]string(nil), s.DelegationRoles...)
		s.Conditions = append([]Condition(nil), s.Conditions...)
		c.Steps[i] = s
	}
	return &c
}
