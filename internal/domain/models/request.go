package models

import (
	"time"
)

// RequestStatus is the top-level state of an approval request
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// HistoryAction is the action recorded by a history entry
type HistoryAction string

const (
	ActionApproved     HistoryAction = "approved"
	ActionRejected     HistoryAction = "rejected"
	ActionDelegated    HistoryAction = "delegated"
	ActionEscalated    HistoryAction = "escalated"
	ActionResubmitted  HistoryAction = "resubmitted"
	ActionReminderSent HistoryAction = "reminder_sent"
	ActionSkipped      HistoryAction = "skipped"
	ActionSuperseded   HistoryAction = "superseded"
	ActionInformed     HistoryAction = "informed"
)

// HistoryEntry is one immutable audit record.
type HistoryEntry struct {
	ID         string        `json:"id"`
	Action     HistoryAction `json:"action"`
	ActorID    string        `json:"actor_id"`
	DelegateID string        `json:"delegate_id,omitempty"`
	Comment    string        `json:"comment,omitempty"`
	Level      int           `json:"level"`
	Timestamp  time.Time     `json:"timestamp"`
}

// SlotStatus tracks one approver's part in the current level
type SlotStatus string

const (
	SlotPending    SlotStatus = "pending"
	SlotApproved   SlotStatus = "approved"
	SlotSuperseded SlotStatus = "superseded"
)

// ApproverSlot is one party whose decision the current level awaits.
type ApproverSlot struct {
	ApproverID   string     `json:"approver_id"`
	ApproverName string     `json:"approver_name"`
	Status       SlotStatus `json:"status"`
}

// Approver identifies a person able to act on a step.
type Approver struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ApprovalRequest is one document routed through a workflow.
type ApprovalRequest struct {
	ID                  string                 `json:"id"`
	WorkflowID          string                 `json:"workflow_id"`
	Workflow            WorkflowDefinition     `json:"workflow"` // snapshot taken at submission
	DocumentType        string                 `json:"document_type"`
	DocumentID          string                 `json:"document_id"`
	Document            map[string]interface{} `json:"document,omitempty"`
	RequesterID         string                 `json:"requester_id"`
	Status              RequestStatus          `json:"status"`
	CurrentLevel        int                    `json:"current_level"`
	CurrentApproverID   string                 `json:"current_approver_id,omitempty"`
	CurrentApproverName string                 `json:"current_approver_name,omitempty"`
	Slots               []ApproverSlot         `json:"slots,omitempty"`
	RejectionReason     string                 `json:"rejection_reason,omitempty"`
	RevisionCount       int                    `json:"revision_count"`
	LastEscalatedLevel  int                    `json:"last_escalated_level"`
	Version             int64                  `json:"version"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
	ApprovedAt          *time.Time             `json:"approved_at,omitempty"`
	RejectedAt          *time.Time             `json:"rejected_at,omitempty"`
	History             []HistoryEntry         `json:"history"`
}

// CurrentStep returns the snapshot step for CurrentLevel.
func (r *ApprovalRequest) CurrentStep() (Step, bool) {
	if r.CurrentLevel < 1 || r.CurrentLevel > len(r.Workflow.Steps) {
		return Step{}, false
	}
	return r.Workflow.Steps[r.CurrentLevel-1], true
}

// PendingSlot returns the index of approverID's pending slot, or -1.
func (r *ApprovalRequest) PendingSlot(approverID string) int {
	for i, s := range r.Slots {
		if s.Status == SlotPending && s.ApproverID == approverID {
			return i
		}
	}
	return -1
}

// HoldsSlot reports whether approverID holds a slot at the current level, in any status.
func (r *ApprovalRequest) HoldsSlot(approverID string) bool {
	for _, s := range r.Slots {
		if s.ApproverID == approverID {
			return true
		}
	}
	return false
}

// ActedAtCurrentLevel returns the users who hold a slot at the current level or
// who approved, rejected or delegated it since the last resubmission.
func (r *ApprovalRequest) ActedAtCurrentLevel() map[string]bool {
	acted := make(map[string]bool, len(r.Slots))
	for _, s := range r.Slots {
		acted[s.ApproverID] = true
	}
	for i := len(r.History) - 1; i >= 0; i-- {
		h := r.History[i]
		if h.Action == ActionResubmitted {
			break
		}
		if h.Level != r.CurrentLevel {
			continue
		}
		switch h.Action {
		case ActionApproved, ActionRejected, ActionDelegated:
			acted[h.ActorID] = true
		}
	}
	return acted
}

// PendingApprovers lists the holders of pending slots.
func (r *ApprovalRequest) PendingApprovers() []Approver {
	var out []Approver
	for _, s := range r.Slots {
		if s.Status == SlotPending {
			out = append(out, Approver{ID: s.ApproverID, Name: s.ApproverName})
		}
	}
	return out
}

// SyncCurrentApprover points CurrentApproverID at the first pending slot.
func (r *ApprovalRequest) SyncCurrentApprover() {
	r.CurrentApproverID = ""
	r.CurrentApproverName = ""
	for _, s := range r.Slots {
		if s.Status == SlotPending {
			r.CurrentApproverID = s.ApproverID
			r.CurrentApproverName = s.ApproverName
			return
		}
	}
}

// Clone returns a deep copy so callers may mutate without touching shared state.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	c := *r
	c.Workflow = *r.Workflow.Clone()
	c.Slots = append([]ApproverSlot(nil), r.Slots...)
	c.History = append([]HistoryEntry(nil), r.History...)
	if r.Document != nil {
		c.Document = make(map[string]interface{}, len(r.Document))
		for k, v := range r.Document {
			c.Document[k] = v
		}
	}
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}
	if r.RejectedAt != nil {
		t := *r.RejectedAt
		c.RejectedAt = &t
	}
	return &c
}

// RequestFilter selects requests by their indexed fields. Zero values mean "no filter".
type RequestFilter struct {
	Status            RequestStatus
	CurrentApproverID string
	RequesterID       string
	WorkflowID        string
}

// Matches reports whether r satisfies the filter.
func (f RequestFilter) Matches(r *ApprovalRequest) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.CurrentApproverID != "" && r.CurrentApproverID != f.CurrentApproverID {
		return false
	}
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if f.WorkflowID != "" && r.WorkflowID != f.WorkflowID {
		return false
	}
	return true
}

// LevelStats aggregates one workflow level across requests.
type LevelStats struct {
	Level               int     `json:"level"`
	StepName            string  `json:"step_name,omitempty"`
	PendingCount        int     `json:"pending_count"`
	ApprovedCount       int     `json:"approved_count"`
	RejectedCount       int     `json:"rejected_count"`
	MeanProcessingHours float64 `json:"mean_processing_hours"`
}

// ApprovalMatrix is the per-level summary of a workflow.
type ApprovalMatrix struct {
	WorkflowID string       `json:"workflow_id"`
	Levels     []LevelStats `json:"levels"`
}

// User is an identity directory entry.
type User struct {
	ID    string   `json:"id" yaml:"id"`
	Name  string   `json:"name" yaml:"name"`
	Email string   `json:"email,omitempty" yaml:"email,omitempty"`
	Roles []string `json:"roles" yaml:"roles"`
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
