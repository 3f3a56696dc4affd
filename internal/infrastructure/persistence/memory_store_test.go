package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/careflow/approvals/internal/domain/models"
	apperrors "github.com/careflow/approvals/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RequestVersioning(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	req := &models.ApprovalRequest{ID: "r-1", Status: models.StatusPending, CurrentLevel: 1}
	require.NoError(t, s.CreateRequest(ctx, req))
	assert.Equal(t, int64(1), req.Version)

	first, err := s.GetRequest(ctx, "r-1")
	require.NoError(t, err)
	second, err := s.GetRequest(ctx, "r-1")
	require.NoError(t, err)

	first.CurrentLevel = 2
	require.NoError(t, s.UpdateRequest(ctx, first, 1))
	assert.Equal(t, int64(2), first.Version)

	second.Status = models.StatusRejected
	err = s.UpdateRequest(ctx, second, 1)
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)

	stored, err := s.GetRequest(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentLevel)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestMemoryStore_HistoryIsAppendOnly(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	req := &models.ApprovalRequest{ID: "r-1", Status: models.StatusPending}
	require.NoError(t, s.CreateRequest(ctx, req))

	req.History = []models.HistoryEntry{{ID: "h-1", Action: models.ActionApproved, ActorID: "u-1", Level: 1, Timestamp: ts}}
	require.NoError(t, s.UpdateRequest(ctx, req, req.Version))

	// a caller rewriting an old entry does not change what is stored
	req.History[0].Comment = "edited"
	req.History = append(req.History, models.HistoryEntry{ID: "h-2", Action: models.ActionApproved, ActorID: "u-2", Level: 2, Timestamp: ts})
	require.NoError(t, s.UpdateRequest(ctx, req, req.Version))

	stored, err := s.GetRequest(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, stored.History, 2)
	assert.Empty(t, stored.History[0].Comment)
	assert.Equal(t, "h-2", stored.History[1].ID)
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)

	_, err = s.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrWorkflowNotFound)

	err = s.UpdateRequest(ctx, &models.ApprovalRequest{ID: "missing"}, 1)
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)
}

func TestMemoryStore_ListFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateRequest(ctx, &models.ApprovalRequest{ID: "r-1", WorkflowID: "wf-1", Status: models.StatusPending, CurrentApproverID: "u-1"}))
	require.NoError(t, s.CreateRequest(ctx, &models.ApprovalRequest{ID: "r-2", WorkflowID: "wf-1", Status: models.StatusApproved}))
	require.NoError(t, s.CreateRequest(ctx, &models.ApprovalRequest{ID: "r-3", WorkflowID: "wf-2", Status: models.StatusPending, CurrentApproverID: "u-2"}))

	pending, err := s.ListRequests(ctx, models.RequestFilter{Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "r-1", pending[0].ID)

	mine, err := s.ListRequests(ctx, models.RequestFilter{CurrentApproverID: "u-2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "r-3", mine[0].ID)

	all, err := s.ListRequests(ctx, models.RequestFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_ActiveWorkflows(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveWorkflow(ctx, &models.WorkflowDefinition{ID: "wf-2", TargetModule: "incidents", IsActive: true, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.SaveWorkflow(ctx, &models.WorkflowDefinition{ID: "wf-1", TargetModule: "incidents", IsActive: true, CreatedAt: base}))
	require.NoError(t, s.SaveWorkflow(ctx, &models.WorkflowDefinition{ID: "wf-3", TargetModule: "incidents", IsActive: false}))
	require.NoError(t, s.SaveWorkflow(ctx, &models.WorkflowDefinition{ID: "wf-4", TargetModule: "leave", IsActive: true}))

	active, err := s.ListActiveWorkflows(ctx, "incidents")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "wf-1", active[0].ID)
	assert.Equal(t, "wf-2", active[1].ID)
}
