package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	"github.com/careflow/approvals/pkg/utils"
)

// WorkflowService handles administration of workflow definitions.
// Running requests hold their own snapshot, so edits here never reach them.
type WorkflowService struct {
	store  ports.WorkflowStore
	logger *zap.Logger
	now    func() time.Time
}

// NewWorkflowService creates a WorkflowService
func NewWorkflowService(store ports.WorkflowStore, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{store: store, logger: logger, now: time.Now}
}

// Create validates and stores a new definition under a fresh id.
func (s *WorkflowService) Create(ctx context.Context, wf *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	out := wf.Clone()
	now := s.now().UTC()
	out.ID = utils.GenerateID()
	out.CreatedAt = now
	out.UpdatedAt = now
	if err := s.store.SaveWorkflow(ctx, out); err != nil {
		return nil, err
	}

	s.logger.Info("workflow created", zap.String("workflow_id", out.ID), zap.String("name", out.Name))
	return out, nil
}

// Update replaces the definition stored under id.
func (s *WorkflowService) Update(ctx context.Context, id string, wf *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	existing, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	out := wf.Clone()
	out.ID = existing.ID
	out.CreatedAt = existing.CreatedAt
	out.UpdatedAt = s.now().UTC()
	if err := s.store.SaveWorkflow(ctx, out); err != nil {
		return nil, err
	}

	s.logger.Info("workflow updated", zap.String("workflow_id", out.ID))
	return out, nil
}

// Clone copies a definition under a new id. The copy starts inactive.
func (s *WorkflowService) Clone(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	source, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	out := source.Clone()
	now := s.now().UTC()
	out.ID = utils.GenerateID()
	out.Name = source.Name + " (Copy)"
	out.IsActive = false
	out.CreatedAt = now
	out.UpdatedAt = now
	if err := s.store.SaveWorkflow(ctx, out); err != nil {
		return nil, err
	}

	s.logger.Info("workflow cloned", zap.String("source_id", id), zap.String("workflow_id", out.ID))
	return out, nil
}

// Get returns one definition.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.store.GetWorkflow(ctx, id)
}

// ListActive returns the active definitions of targetModule, or of every module when empty.
func (s *WorkflowService) ListActive(ctx context.Context, targetModule string) ([]*models.WorkflowDefinition, error) {
	return s.store.ListActiveWorkflows(ctx, targetModule)
}
