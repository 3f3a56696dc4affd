package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careflow/approvals/internal/domain/models"
)

// WorkflowAdmin defines the workflow administration operations
type WorkflowAdmin interface {
	Create(ctx context.Context, wf *models.WorkflowDefinition) (*models.WorkflowDefinition, error)
	Update(ctx context.Context, id string, wf *models.WorkflowDefinition) (*models.WorkflowDefinition, error)
	Clone(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	Get(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	ListActive(ctx context.Context, targetModule string) ([]*models.WorkflowDefinition, error)
}

// MatrixReader builds the per-level report of a workflow
type MatrixReader interface {
	GetApprovalMatrix(ctx context.Context, workflowID string) (*models.ApprovalMatrix, error)
}

// WorkflowHandler handles workflow definition endpoints
type WorkflowHandler struct {
	admin  WorkflowAdmin
	matrix MatrixReader
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(admin WorkflowAdmin, matrix MatrixReader) *WorkflowHandler {
	return &WorkflowHandler{admin: admin, matrix: matrix}
}

// List handles GET /api/workflows?target_module=
func (h *WorkflowHandler) List(c *gin.Context) {
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.admin.ListActive(c.Request.Context(), c.Query("target_module"))
	})
}

// Get handles GET /api/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.admin.Get(c.Request.Context(), c.Param("id"))
	})
}

// Create handles POST /api/workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	var wf models.WorkflowDefinition
	if !BindJSON(c, &wf) {
		return
	}
	created, err := h.admin.Create(c.Request.Context(), &wf)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

// Update handles PUT /api/workflows/:id
func (h *WorkflowHandler) Update(c *gin.Context) {
	var wf models.WorkflowDefinition
	if !BindJSON(c, &wf) {
		return
	}
	updated, err := h.admin.Update(c.Request.Context(), c.Param("id"), &wf)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// Clone handles POST /api/workflows/:id/clone
func (h *WorkflowHandler) Clone(c *gin.Context) {
	clone, err := h.admin.Clone(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": clone})
}

// Matrix handles GET /api/workflows/:id/matrix
func (h *WorkflowHandler) Matrix(c *gin.Context) {
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.matrix.GetApprovalMatrix(c.Request.Context(), c.Param("id"))
	})
}
