package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careflow/approvals/internal/infrastructure/persistence"
	apperrors "github.com/careflow/approvals/pkg/errors"
	"github.com/careflow/approvals/pkg/utils"
)

func TestWorkflowService_CreateUpdateClone(t *testing.T) {
	store := persistence.NewMemoryStore()
	svc := NewWorkflowService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, sequentialWorkflow())
	require.NoError(t, err)
	assert.True(t, utils.IsValidUUID(created.ID))
	assert.False(t, created.CreatedAt.IsZero())

	edit := created.Clone()
	edit.Name = "Incident review v2"
	edit.Steps[1].TimeoutHours = 8
	updated, err := svc.Update(ctx, created.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	clone, err := svc.Clone(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, clone.ID)
	assert.Equal(t, "Incident review v2 (Copy)", clone.Name)
	assert.False(t, clone.IsActive)
	assert.Equal(t, 8, clone.Steps[1].TimeoutHours)

	active, err := svc.ListActive(ctx, "incidents")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, created.ID, active[0].ID)

	got, err := svc.Get(ctx, clone.ID)
	require.NoError(t, err)
	assert.Equal(t, clone.Name, got.Name)
}

func TestWorkflowService_Validation(t *testing.T) {
	svc := NewWorkflowService(persistence.NewMemoryStore(), nil)
	ctx := context.Background()

	noSteps := sequentialWorkflow()
	noSteps.Steps = nil
	_, err := svc.Create(ctx, noSteps)
	assert.ErrorIs(t, err, apperrors.ErrNoStepsDefined)

	gap := sequentialWorkflow()
	gap.Steps[1].Order = 3
	_, err = svc.Create(ctx, gap)
	assertValidationError(t, err)

	_, err = svc.Update(ctx, "missing", sequentialWorkflow())
	assert.ErrorIs(t, err, apperrors.ErrWorkflowNotFound)

	_, err = svc.Clone(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrWorkflowNotFound)
}
