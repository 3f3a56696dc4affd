package persistence

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
)

type workflowsFile struct {
	Workflows []models.WorkflowDefinition `yaml:"workflows"`
}

// LoadWorkflowsFile reads and validates workflow definitions from a YAML file.
func LoadWorkflowsFile(path string) ([]*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflows file: %w", err)
	}

	var f workflowsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse workflows file %s: %w", path, err)
	}

	out := make([]*models.WorkflowDefinition, 0, len(f.Workflows))
	for i := range f.Workflows {
		wf := &f.Workflows[i]
		if wf.ID == "" {
			return nil, fmt.Errorf("workflows file %s: workflow %d has no id", path, i)
		}
		if err := wf.Validate(); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", wf.ID, err)
		}
		out = append(out, wf)
	}
	return out, nil
}

// SeedWorkflows stores each definition, stamping missing timestamps with now.
func SeedWorkflows(ctx context.Context, store ports.WorkflowStore, workflows []*models.WorkflowDefinition, now time.Time) error {
	for _, wf := range workflows {
		if wf.CreatedAt.IsZero() {
			wf.CreatedAt = now
		}
		wf.UpdatedAt = now
		if err := store.SaveWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("failed to seed workflow %s: %w", wf.ID, err)
		}
	}
	return nil
}
