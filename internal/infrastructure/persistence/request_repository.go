package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

// RequestRepository stores approval requests in MySQL.
// History lives in its own append-only table; the request row carries the version used for check-and-set.
type RequestRepository struct {
	db *sql.DB
	tm *TransactionManager
}

var _ ports.RequestStore = (*RequestRepository)(nil)

// NewRequestRepository creates a new RequestRepository
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db, tm: NewTransactionManager(db)}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *RequestRepository) CreateRequest(ctx context.Context, req *models.ApprovalRequest) error {
	row, err := encodeRequest(req)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", TableRequests, requestColumns)
	err = r.tm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query,
			req.ID, req.WorkflowID, req.DocumentType, req.DocumentID, req.RequesterID, string(req.Status), req.CurrentLevel,
			req.CurrentApproverID, req.CurrentApproverName, row.workflow, row.document, row.slots, req.RejectionReason,
			req.RevisionCount, req.LastEscalatedLevel, int64(1), req.CreatedAt, req.UpdatedAt, nullTime(req.ApprovedAt), nullTime(req.RejectedAt),
		); err != nil {
			return classify(err, "failed to insert approval request")
		}
		return insertHistory(ctx, tx, req.ID, 0, req.History)
	})
	if err != nil {
		return err
	}
	req.Version = 1
	return nil
}

func (r *RequestRepository) GetRequest(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", requestColumns, TableRequests)
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindRequestNotFound, "approval request %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	if req.History, err = loadHistory(ctx, r.db, id); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RequestRepository) UpdateRequest(ctx context.Context, req *models.ApprovalRequest, expectedVersion int64) error {
	row, err := encodeRequest(req)
	if err != nil {
		return err
	}

	update := fmt.Sprintf("UPDATE %s SET status = ?, current_level = ?, current_approver_id = ?, current_approver_name = ?, "+
		"workflow_snapshot = ?, document = ?, slots = ?, rejection_reason = ?, revision_count = ?, last_escalated_level = ?, "+
		"updated_at = ?, approved_at = ?, rejected_at = ?, version = version + 1 WHERE id = ? AND version = ?", TableRequests)
	exists := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", TableRequests)
	count := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE request_id = ?", TableHistory)

	err = r.tm.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, update,
			string(req.Status), req.CurrentLevel, req.CurrentApproverID, req.CurrentApproverName,
			row.workflow, row.document, row.slots, req.RejectionReason, req.RevisionCount, req.LastEscalatedLevel,
			req.UpdatedAt, nullTime(req.ApprovedAt), nullTime(req.RejectedAt), req.ID, expectedVersion,
		)
		if err != nil {
			return classify(err, "failed to update approval request")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return classify(err, "failed to read affected rows")
		}
		if affected == 0 {
			var found bool
			if err := tx.QueryRowContext(ctx, exists, req.ID).Scan(&found); err != nil {
				return classify(err, "failed to check approval request")
			}
			if !found {
				return apperrors.New(apperrors.KindRequestNotFound, "approval request %s not found", req.ID)
			}
			return apperrors.New(apperrors.KindConcurrentModification, "request %s changed since version %d", req.ID, expectedVersion)
		}

		var stored int
		if err := tx.QueryRowContext(ctx, count, req.ID).Scan(&stored); err != nil {
			return classify(err, "failed to count history")
		}
		if stored >= len(req.History) {
			return nil
		}
		return insertHistory(ctx, tx, req.ID, stored, req.History[stored:])
	})
	if err != nil {
		return err
	}
	req.Version = expectedVersion + 1
	return nil
}

func (r *RequestRepository) ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ApprovalRequest, error) {
	var where []string
	var args []interface{}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.CurrentApproverID != "" {
		where = append(where, "current_approver_id = ?")
		args = append(args, filter.CurrentApproverID)
	}
	if filter.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", requestColumns, TableRequests)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "failed to list approval requests")
	}
	defer rows.Close()

	var out []*models.ApprovalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to list approval requests")
	}

	for _, req := range out {
		if req.History, err = loadHistory(ctx, r.db, req.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type encodedRequest struct {
	workflow, document, slots []byte
}

func encodeRequest(req *models.ApprovalRequest) (*encodedRequest, error) {
	workflow, err := json.Marshal(req.Workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow snapshot: %w", err)
	}
	doc := req.Document
	if doc == nil {
		doc = map[string]interface{}{}
	}
	document, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	slots := req.Slots
	if slots == nil {
		slots = []models.ApproverSlot{}
	}
	encodedSlots, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("failed to encode slots: %w", err)
	}
	return &encodedRequest{workflow: workflow, document: document, slots: encodedSlots}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*models.ApprovalRequest, error) {
	var (
		req                      models.ApprovalRequest
		status                   string
		workflow, document, slot []byte
		approvedAt, rejectedAt   sql.NullTime
	)
	err := row.Scan(
		&req.ID, &req.WorkflowID, &req.DocumentType, &req.DocumentID, &req.RequesterID, &status, &req.CurrentLevel,
		&req.CurrentApproverID, &req.CurrentApproverName, &workflow, &document, &slot, &req.RejectionReason,
		&req.RevisionCount, &req.LastEscalatedLevel, &req.Version, &req.CreatedAt, &req.UpdatedAt, &approvedAt, &rejectedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, classify(err, "failed to scan approval request")
	}

	req.Status = models.RequestStatus(status)
	if err := json.Unmarshal(workflow, &req.Workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow snapshot of %s: %w", req.ID, err)
	}
	if err := json.Unmarshal(document, &req.Document); err != nil {
		return nil, fmt.Errorf("failed to decode document of %s: %w", req.ID, err)
	}
	if err := json.Unmarshal(slot, &req.Slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots of %s: %w", req.ID, err)
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		req.ApprovedAt = &t
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		req.RejectedAt = &t
	}
	return &req, nil
}

func insertHistory(ctx context.Context, q querier, requestID string, firstSeq int, entries []models.HistoryEntry) error {
	query := fmt.Sprintf("INSERT INTO %s (id, request_id, seq, action, actor_id, delegate_id, comment, level, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", TableHistory)
	for i, h := range entries {
		if _, err := q.ExecContext(ctx, query,
			h.ID, requestID, firstSeq+i, string(h.Action), h.ActorID, h.DelegateID, h.Comment, h.Level, h.Timestamp,
		); err != nil {
			return classify(err, "failed to append history")
		}
	}
	return nil
}

func loadHistory(ctx context.Context, q querier, requestID string) ([]models.HistoryEntry, error) {
	query := fmt.Sprintf("SELECT id, action, actor_id, delegate_id, comment, level, created_at FROM %s WHERE request_id = ? ORDER BY seq", TableHistory)
	rows, err := q.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, classify(err, "failed to load history")
	}
	defer rows.Close()

	history := []models.HistoryEntry{}
	for rows.Next() {
		var h models.HistoryEntry
		var action string
		if err := rows.Scan(&h.ID, &action, &h.ActorID, &h.DelegateID, &h.Comment, &h.Level, &h.Timestamp); err != nil {
			return nil, classify(err, "failed to scan history")
		}
		h.Action = models.HistoryAction(action)
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to load history")
	}
	return history, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
