package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

// WorkflowRepository stores workflow definitions in MySQL as JSON documents
// with their indexed fields broken out into columns.
type WorkflowRepository struct {
	db *sql.DB
}

var _ ports.WorkflowStore = (*WorkflowRepository)(nil)

// NewWorkflowRepository creates a new WorkflowRepository
func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := fmt.Sprintf("SELECT definition, created_at, updated_at FROM %s WHERE id = ?", TableWorkflows)
	wf, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindWorkflowNotFound, "workflow %s not found", id)
	}
	return wf, err
}

func (r *WorkflowRepository) ListActiveWorkflows(ctx context.Context, targetModule string) ([]*models.WorkflowDefinition, error) {
	query := fmt.Sprintf("SELECT definition, created_at, updated_at FROM %s WHERE is_active = TRUE", TableWorkflows)
	var args []interface{}
	if targetModule != "" {
		query += " AND target_module = ?"
		args = append(args, targetModule)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "failed to list workflows")
	}
	defer rows.Close()

	var out []*models.WorkflowDefinition
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to list workflows")
	}
	return out, nil
}

func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, wf *models.WorkflowDefinition) error {
	definition, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s: %w", wf.ID, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, name, target_module, is_active, definition, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?) "+
		"ON DUPLICATE KEY UPDATE name = VALUES(name), target_module = VALUES(target_module), is_active = VALUES(is_active), "+
		"definition = VALUES(definition), updated_at = VALUES(updated_at)", TableWorkflows)
	if _, err := r.db.ExecContext(ctx, query, wf.ID, wf.Name, wf.TargetModule, wf.IsActive, definition, wf.CreatedAt, wf.UpdatedAt); err != nil {
		return classify(err, "failed to save workflow")
	}
	return nil
}

func scanWorkflow(row rowScanner) (*models.WorkflowDefinition, error) {
	var definition []byte
	var wf models.WorkflowDefinition
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&definition, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(err, "failed to scan workflow")
	}
	if err := json.Unmarshal(definition, &wf); err != nil {
		return nil, fmt.Errorf("failed to decode workflow definition: %w", err)
	}
	wf.CreatedAt = createdAt.Time
	wf.UpdatedAt = updatedAt.Time
	return &wf, nil
}
