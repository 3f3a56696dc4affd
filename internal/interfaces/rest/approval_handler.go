package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/careflow/approvals/internal/application/services"
	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
	appErrors "github.com/careflow/approvals/pkg/errors"
)

// ApprovalService defines the interface for approval operations
type ApprovalService interface {
	Submit(ctx context.Context, in services.SubmitInput) (*models.ApprovalRequest, error)
	AutoSubmit(ctx context.Context, targetModule string, in services.SubmitInput) ([]*models.ApprovalRequest, error)
	GetRequest(ctx context.Context, requestID string) (*models.ApprovalRequest, error)
	PendingFor(ctx context.Context, approverID string) ([]*models.ApprovalRequest, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]*models.ApprovalRequest, error)
	Approve(ctx context.Context, requestID, actorID, comment string) (*models.ApprovalRequest, error)
	Reject(ctx context.Context, requestID, actorID, reason string) (*models.ApprovalRequest, error)
	Delegate(ctx context.Context, requestID, fromUserID, toUserID string) (*models.ApprovalRequest, error)
	Resubmit(ctx context.Context, requestID string, updates map[string]interface{}) (*models.ApprovalRequest, error)
	SendReminder(ctx context.Context, requestID, actorID string) (*models.ApprovalRequest, error)
	RunEscalationSweep(ctx context.Context) (int, error)
}

// NotificationInbox reads the in-app notifications of a user.
type NotificationInbox interface {
	Inbox(ctx context.Context, recipientID string, limit int64) ([]ports.Notification, error)
}

// ApprovalHandler handles approval request API endpoints
type ApprovalHandler struct {
	svc   ApprovalService
	inbox NotificationInbox
}

// NewApprovalHandler creates a new ApprovalHandler. inbox may be nil.
func NewApprovalHandler(svc ApprovalService, inbox NotificationInbox) *ApprovalHandler {
	return &ApprovalHandler{svc: svc, inbox: inbox}
}

// ============================================================================
// Request/Response Types
// ============================================================================

// SubmitRequest represents a request to route a document through a workflow
type SubmitRequest struct {
	WorkflowID   string                 `json:"workflow_id" binding:"required"`
	DocumentType string                 `json:"document_type" binding:"required"`
	DocumentID   string                 `json:"document_id" binding:"required"`
	Document     map[string]interface{} `json:"document"`
}

// AutoSubmitRequest submits a document to every matching automatic workflow
type AutoSubmitRequest struct {
	TargetModule string                 `json:"target_module" binding:"required"`
	DocumentType string                 `json:"document_type" binding:"required"`
	DocumentID   string                 `json:"document_id" binding:"required"`
	Document     map[string]interface{} `json:"document"`
}

// ApprovalActionRequest carries the optional comment of an approval
type ApprovalActionRequest struct {
	Comment string `json:"comment"`
}

// RejectRequest carries the mandatory rejection reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

// DelegateRequest names the user taking over the caller's slot
type DelegateRequest struct {
	ToUserID string `json:"to_user_id" binding:"required"`
}

// ResubmitRequest carries document field updates applied on resubmission
type ResubmitRequest struct {
	Updates map[string]interface{} `json:"updates"`
}

// ============================================================================
// Endpoints
// ============================================================================

// Submit handles POST /api/approvals
func (h *ApprovalHandler) Submit(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	var req SubmitRequest
	if !BindJSON(c, &req) {
		return
	}

	created, err := h.svc.Submit(c.Request.Context(), services.SubmitInput{
		WorkflowID:   req.WorkflowID,
		DocumentType: req.DocumentType,
		DocumentID:   req.DocumentID,
		Document:     req.Document,
		RequesterID:  user.ID,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

// AutoSubmit handles POST /api/approvals/auto
func (h *ApprovalHandler) AutoSubmit(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	var req AutoSubmitRequest
	if !BindJSON(c, &req) {
		return
	}

	created, err := h.svc.AutoSubmit(c.Request.Context(), req.TargetModule, services.SubmitInput{
		DocumentType: req.DocumentType,
		DocumentID:   req.DocumentID,
		Document:     req.Document,
		RequesterID:  user.ID,
	})
	if err != nil && len(created) == 0 {
		RespondAppError(c, err)
		return
	}

	// Partial success still reports what was created
	response := gin.H{"data": created}
	if err != nil {
		response["message"] = err.Error()
	}
	c.JSON(http.StatusCreated, response)
}

// Get handles GET /api/approvals/:id
func (h *ApprovalHandler) Get(c *gin.Context) {
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.svc.GetRequest(c.Request.Context(), c.Param("id"))
	})
}

// GetPending handles GET /api/approvals/pending
func (h *ApprovalHandler) GetPending(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.svc.PendingFor(c.Request.Context(), user.ID)
	})
}

// List handles GET /api/approvals?status=&requester_id=&workflow_id=&current_approver_id=
func (h *ApprovalHandler) List(c *gin.Context) {
	filter := models.RequestFilter{
		Status:            models.RequestStatus(c.Query("status")),
		CurrentApproverID: c.Query("current_approver_id"),
		RequesterID:       c.Query("requester_id"),
		WorkflowID:        c.Query("workflow_id"),
	}
	switch filter.Status {
	case "", models.StatusPending, models.StatusApproved, models.StatusRejected:
	default:
		RespondAppError(c, appErrors.NewValidationError("status", "unknown status "+string(filter.Status)))
		return
	}
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.svc.ListRequests(c.Request.Context(), filter)
	})
}

// Approve handles POST /api/approvals/:id/approve
func (h *ApprovalHandler) Approve(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	var req ApprovalActionRequest
	_ = c.ShouldBindJSON(&req) // Optional comment

	h.respond(c, func(ctx context.Context) (*models.ApprovalRequest, error) {
		return h.svc.Approve(ctx, c.Param("id"), user.ID, req.Comment)
	})
}

// Reject handles POST /api/approvals/:id/reject
func (h *ApprovalHandler) Reject(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	var req RejectRequest
	_ = c.ShouldBindJSON(&req) // an empty reason is rejected by the engine

	h.respond(c, func(ctx context.Context) (*models.ApprovalRequest, error) {
		return h.svc.Reject(ctx, c.Param("id"), user.ID, req.Reason)
	})
}

// Delegate handles POST /api/approvals/:id/delegate
func (h *ApprovalHandler) Delegate(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	var req DelegateRequest
	if !BindJSON(c, &req) {
		return
	}

	h.respond(c, func(ctx context.Context) (*models.ApprovalRequest, error) {
		return h.svc.Delegate(ctx, c.Param("id"), user.ID, req.ToUserID)
	})
}

// Resubmit handles POST /api/approvals/:id/resubmit. Only the requester may resubmit.
func (h *ApprovalHandler) Resubmit(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	var req ResubmitRequest
	_ = c.ShouldBindJSON(&req) // Optional updates

	h.respond(c, func(ctx context.Context) (*models.ApprovalRequest, error) {
		existing, err := h.svc.GetRequest(ctx, c.Param("id"))
		if err != nil {
			return nil, err
		}
		if existing.RequesterID != user.ID {
			return nil, appErrors.NewPermissionError("resubmit", "approval request "+existing.ID)
		}
		return h.svc.Resubmit(ctx, existing.ID, req.Updates)
	})
}

// Remind handles POST /api/approvals/:id/remind
func (h *ApprovalHandler) Remind(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	h.respond(c, func(ctx context.Context) (*models.ApprovalRequest, error) {
		return h.svc.SendReminder(ctx, c.Param("id"), user.ID)
	})
}

// RunEscalationSweep handles POST /api/admin/escalations/sweep
func (h *ApprovalHandler) RunEscalationSweep(c *gin.Context) {
	escalated, err := h.svc.RunEscalationSweep(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"escalated": escalated}})
}

// Notifications handles GET /api/notifications?limit=
func (h *ApprovalHandler) Notifications(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	if h.inbox == nil {
		c.JSON(http.StatusOK, gin.H{"data": []ports.Notification{}})
		return
	}

	var limit int64
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			RespondAppError(c, appErrors.NewValidationError("limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.inbox.Inbox(c.Request.Context(), user.ID, limit)
	})
}

func (h *ApprovalHandler) respond(c *gin.Context, action func(ctx context.Context) (*models.ApprovalRequest, error)) {
	updated, err := action(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}
