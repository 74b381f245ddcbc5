package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mfotsing/structureclerk-api/internal/handler"
	"github.com/mfotsing/structureclerk-api/internal/middleware"
	"github.com/mfotsing/structureclerk-api/internal/models"
	"github.com/mfotsing/structureclerk-api/internal/service"
)

// Handlers bundles the HTTP handlers wired into the router.
type Handlers struct {
	Auth      *handler.AuthHandler
	Approval  *handler.ApprovalHandler
	Workflow  *handler.WorkflowHandler
	Activity  *handler.ActivityHandler
	Document  *handler.DocumentHandler
	Metrics   *handler.MetricsHandler
	AuthSvc   *service.AuthService
	MetricsSv *service.MetricsService
}

// Register attaches all API routes under the given prefix.
func Register(r *gin.Engine, prefix string, h Handlers) {
	if prefix == "" {
		prefix = "/api/v1"
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if h.MetricsSv != nil {
		r.GET("/metrics", gin.WrapH(h.MetricsSv.Handler()))
	}

	v1 := r.Group(prefix)

	auth := v1.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	// Signed token carries its own authorization.
	v1.GET("/downloads", h.Document.Download)

	protected := v1.Group("")
	protected.Use(middleware.JWT(h.AuthSvc))
	{
		protected.POST("/auth/logout", h.Auth.Logout)
		protected.PUT("/auth/password", h.Auth.ChangePassword)

		approvals := protected.Group("/approvals")
		{
			approvals.GET("/pending", h.Workflow.ListPending)
			approvals.POST("/:id/approve", h.Approval.Approve)
			approvals.POST("/:id/reject", h.Approval.Reject)
		}

		workflows := protected.Group("/workflows")
		{
			workflows.POST("", h.Workflow.Create)
			workflows.GET("/:id", h.Workflow.Get)
			workflows.POST("/:id/comments", h.Workflow.AddComment)
		}

		activities := protected.Group("/activities")
		{
			activities.GET("", h.Activity.List)
			activities.GET("/export", middleware.RequireRoles(models.RoleOwner, models.RoleAdmin), h.Activity.Export)
		}

		documents := protected.Group("/documents")
		{
			documents.POST("", h.Document.Upload)
			documents.GET("", h.Document.List)
			documents.GET("/:id", h.Document.Get)
			documents.GET("/:id/download-url", h.Document.DownloadURL)
			documents.DELETE("/:id", h.Document.Delete)
		}

		if h.Metrics != nil {
			protected.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleOwner, models.RoleAdmin), h.Metrics.Snapshot)
		}
	}
}
