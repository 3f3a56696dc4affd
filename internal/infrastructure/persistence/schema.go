package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + TableWorkflows + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		target_module VARCHAR(100) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		definition JSON NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_workflows_module_active (target_module, is_active)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableRequests + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		workflow_id VARCHAR(36) NOT NULL,
		document_type VARCHAR(100) NOT NULL,
		document_id VARCHAR(255) NOT NULL,
		requester_id VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL,
		current_level INT NOT NULL,
		current_approver_id VARCHAR(255) NOT NULL DEFAULT '',
		current_approver_name VARCHAR(255) NOT NULL DEFAULT '',
		workflow_snapshot JSON NOT NULL,
		document JSON NOT NULL,
		slots JSON NOT NULL,
		rejection_reason TEXT NOT NULL,
		revision_count INT NOT NULL DEFAULT 0,
		last_escalated_level INT NOT NULL DEFAULT 0,
		version BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		approved_at DATETIME(6) NULL,
		rejected_at DATETIME(6) NULL,
		KEY idx_requests_status (status),
		KEY idx_requests_approver (current_approver_id),
		KEY idx_requests_requester (requester_id),
		KEY idx_requests_workflow (workflow_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableHistory + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		request_id VARCHAR(36) NOT NULL,
		seq INT NOT NULL,
		action VARCHAR(30) NOT NULL,
		actor_id VARCHAR(255) NOT NULL,
		delegate_id VARCHAR(255) NOT NULL DEFAULT '',
		comment TEXT NOT NULL,
		level INT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_history_request_seq (request_id, seq)
	)`,
}

// EnsureSchema creates the engine tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
