package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/careflow/approvals/internal/interfaces/middleware"
)

// AdminRole is required for workflow administration and manual sweeps.
const AdminRole = "approvals_admin"

// RouterConfig holds the dependencies of the HTTP surface
type RouterConfig struct {
	Approvals *ApprovalHandler
	Workflows *WorkflowHandler
	JWTSecret []byte
	Logger    *zap.Logger
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter wires every route onto a new gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(cfg.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", middleware.RequireAuth(cfg.JWTSecret))

	approvals := api.Group("/approvals")
	{
		approvals.GET("", cfg.Approvals.List)
		approvals.POST("", cfg.Approvals.Submit)
		approvals.POST("/auto", cfg.Approvals.AutoSubmit)
		approvals.GET("/pending", cfg.Approvals.GetPending)
		approvals.GET("/:id", cfg.Approvals.Get)
		approvals.POST("/:id/approve", cfg.Approvals.Approve)
		approvals.POST("/:id/reject", cfg.Approvals.Reject)
		approvals.POST("/:id/delegate", cfg.Approvals.Delegate)
		approvals.POST("/:id/resubmit", cfg.Approvals.Resubmit)
		approvals.POST("/:id/remind", cfg.Approvals.Remind)
	}
	api.GET("/notifications", cfg.Approvals.Notifications)

	workflows := api.Group("/workflows")
	{
		workflows.GET("", cfg.Workflows.List)
		workflows.GET("/:id", cfg.Workflows.Get)
		workflows.GET("/:id/matrix", cfg.Workflows.Matrix)
		workflows.POST("", middleware.RequireRole(AdminRole), cfg.Workflows.Create)
		workflows.PUT("/:id", middleware.RequireRole(AdminRole), cfg.Workflows.Update)
		workflows.POST("/:id/clone", middleware.RequireRole(AdminRole), cfg.Workflows.Clone)
	}

	api.POST("/admin/escalations/sweep", middleware.RequireRole(AdminRole), cfg.Approvals.RunEscalationSweep)

	return r
}
