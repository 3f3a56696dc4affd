package ports

import (
	"context"

	"github.com/careflow/approvals/internal/domain/models"
)

// WorkflowStore is the durable store of workflow definitions.
type WorkflowStore interface {
	// GetWorkflow returns WORKFLOW_NOT_FOUND when id is unknown.
	GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	ListActiveWorkflows(ctx context.Context, targetModule string) ([]*models.WorkflowDefinition, error)
	SaveWorkflow(ctx context.Context, wf *models.WorkflowDefinition) error
}

// RequestStore persists approval requests with optimistic concurrency.
type RequestStore interface {
	// CreateRequest stores a new request at version 1.
	CreateRequest(ctx context.Context, req *models.ApprovalRequest) error

	// GetRequest returns REQUEST_NOT_FOUND when id is unknown.
	GetRequest(ctx context.Context, id string) (*models.ApprovalRequest, error)

	// UpdateRequest writes req only if the stored version still equals expectedVersion,
	// otherwise it fails with CONCURRENT_MODIFICATION. On success req.Version is bumped.
	// History entries beyond those already stored are appended; stored ones are never rewritten.
	UpdateRequest(ctx context.Context, req *models.ApprovalRequest, expectedVersion int64) error

	ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ApprovalRequest, error)
}
