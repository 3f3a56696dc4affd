package persistence

// Table names
const (
	TableWorkflows = "approval_workflows"
	TableRequests  = "approval_requests"
	TableHistory   = "approval_history"
)

// requestColumns is the column list shared by every approval_requests SELECT.
const requestColumns = "id, workflow_id, document_type, document_id, requester_id, status, current_level, " +
	"current_approver_id, current_approver_name, workflow_snapshot, document, slots, rejection_reason, " +
	"revision_count, last_escalated_level, version, created_at, updated_at, approved_at, rejected_at"
