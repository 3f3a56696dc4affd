package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careflow/approvals/internal/domain/models"
	apperrors "github.com/careflow/approvals/pkg/errors"
)

var repoEpoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func historyColumns() []string {
	return []string{"id", "action", "actor_id", "delegate_id", "comment", "level", "created_at"}
}

func requestRowColumns() []string {
	return []string{"id", "workflow_id", "document_type", "document_id", "requester_id", "status", "current_level",
		"current_approver_id", "current_approver_name", "workflow_snapshot", "document", "slots", "rejection_reason",
		"revision_count", "last_escalated_level", "version", "created_at", "updated_at", "approved_at", "rejected_at"}
}

func pendingRequest() *models.ApprovalRequest {
	return &models.ApprovalRequest{
		ID:                  "req-1",
		WorkflowID:          "wf-1",
		Workflow:            models.WorkflowDefinition{ID: "wf-1", Name: "Incident review", LevelType: models.LevelSequential},
		DocumentType:        "incident",
		DocumentID:          "inc-42",
		Document:            map[string]interface{}{"severity": "high"},
		RequesterID:         "nurse-1",
		Status:              models.StatusPending,
		CurrentLevel:        1,
		CurrentApproverID:   "lead-1",
		CurrentApproverName: "Ben Lead",
		Slots:               []models.ApproverSlot{{ApproverID: "lead-1", ApproverName: "Ben Lead", Status: models.SlotPending}},
		CreatedAt:           repoEpoch,
		UpdatedAt:           repoEpoch,
	}
}

func requestRow(t *testing.T, req *models.ApprovalRequest) *sqlmock.Rows {
	t.Helper()
	workflow, err := json.Marshal(req.Workflow)
	require.NoError(t, err)
	document, err := json.Marshal(req.Document)
	require.NoError(t, err)
	slots, err := json.Marshal(req.Slots)
	require.NoError(t, err)

	return sqlmock.NewRows(requestRowColumns()).AddRow(
		req.ID, req.WorkflowID, req.DocumentType, req.DocumentID, req.RequesterID, string(req.Status), req.CurrentLevel,
		req.CurrentApproverID, req.CurrentApproverName, workflow, document, slots, req.RejectionReason,
		req.RevisionCount, req.LastEscalatedLevel, req.Version, req.CreatedAt, req.UpdatedAt, nil, nil,
	)
}

func TestRequestRepository_CreateRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRequestRepository(db)
	req := pendingRequest()
	req.History = []models.HistoryEntry{{ID: "h-1", Action: models.ActionSkipped, ActorID: "system", Level: 1, Timestamp: repoEpoch}}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES", TableRequests, requestColumns)
	history := fmt.Sprintf("INSERT INTO %s (id, request_id, seq, action, actor_id, delegate_id, comment, level, created_at)", TableHistory)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insert)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(history)).
		WithArgs("h-1", "req-1", 0, "skipped", "system", "", "", 1, repoEpoch).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateRequest(context.Background(), req))
	assert.Equal(t, int64(1), req.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_GetRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRequestRepository(db)
	stored := pendingRequest()
	stored.Version = 3

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", requestColumns, TableRequests)
	history := fmt.Sprintf("SELECT id, action, actor_id, delegate_id, comment, level, created_at FROM %s WHERE request_id = ? ORDER BY seq", TableHistory)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("req-1").WillReturnRows(requestRow(t, stored))
	mock.ExpectQuery(regexp.QuoteMeta(history)).WithArgs("req-1").WillReturnRows(
		sqlmock.NewRows(historyColumns()).AddRow("h-1", "delegated", "lead-2", "lead-1", "", 1, repoEpoch),
	)

	req, err := repo.GetRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), req.Version)
	assert.Equal(t, "Incident review", req.Workflow.Name)
	assert.Equal(t, "high", req.Document["severity"])
	require.Len(t, req.Slots, 1)
	assert.Equal(t, "lead-1", req.Slots[0].ApproverID)
	assert.Nil(t, req.ApprovedAt)
	require.Len(t, req.History, 1)
	assert.Equal(t, models.ActionDelegated, req.History[0].Action)
	assert.Equal(t, "lead-1", req.History[0].DelegateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_GetRequestNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRequestRepository(db)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", requestColumns, TableRequests)
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("missing").WillReturnRows(sqlmock.NewRows(requestRowColumns()))

	_, err = repo.GetRequest(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)
}

func TestRequestRepository_UpdateAppendsNewHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRequestRepository(db)
	req := pendingRequest()
	req.CurrentLevel = 2
	req.History = []models.HistoryEntry{
		{ID: "h-1", Action: models.ActionSkipped, ActorID: "system", Level: 1, Timestamp: repoEpoch},
		{ID: "h-2", Action: models.ActionApproved, ActorID: "lead-1", Comment: "ok", Level: 1, Timestamp: repoEpoch.Add(time.Hour)},
	}

	update := fmt.Sprintf("UPDATE %s SET status = ?", TableRequests)
	count := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE request_id = ?", TableHistory)
	history := fmt.Sprintf("INSERT INTO %s (id, request_id, seq", TableHistory)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(count)).WithArgs("req-1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(history)).
		WithArgs("h-2", "req-1", 1, "approved", "lead-1", "", "ok", 1, repoEpoch.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateRequest(context.Background(), req, 4))
	assert.Equal(t, int64(5), req.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_UpdateVersionConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRequestRepository(db)
	req := pendingRequest()
	req.Version = 2

	update := fmt.Sprintf("UPDATE %s SET status = ?", TableRequests)
	exists := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", TableRequests)

	// Test Case 1: row exists at another version
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(exists)).WithArgs("req-1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err = repo.UpdateRequest(context.Background(), req, 2)
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)
	assert.Equal(t, int64(2), req.Version)

	// Test Case 2: row is gone
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(exists)).WithArgs("req-1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err = repo.UpdateRequest(context.Background(), req, 2)
	assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_ListRequestsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRequestRepository(db)
	stored := pendingRequest()
	stored.Version = 1

	query := fmt.Sprintf("SELECT %s FROM %s WHERE status = ? AND current_approver_id = ? ORDER BY created_at, id", requestColumns, TableRequests)
	history := fmt.Sprintf("SELECT id, action, actor_id, delegate_id, comment, level, created_at FROM %s", TableHistory)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("pending", "lead-1").WillReturnRows(requestRow(t, stored))
	mock.ExpectQuery(regexp.QuoteMeta(history)).WithArgs("req-1").WillReturnRows(sqlmock.NewRows(historyColumns()))

	out, err := repo.ListRequests(context.Background(), models.RequestFilter{Status: models.StatusPending, CurrentApproverID: "lead-1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "req-1", out[0].ID)
	assert.Empty(t, out[0].History)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_DeadlockIsRetryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRequestRepository(db)
	query := fmt.Sprintf("SELECT %s FROM %s", requestColumns, TableRequests)
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnError(errors.New("deadlock found when trying to get lock"))

	_, err = repo.ListRequests(context.Background(), models.RequestFilter{})
	assert.True(t, apperrors.IsRetryable(err))
}
