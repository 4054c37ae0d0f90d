// Package httpapi exposes the plancore service over a JSON HTTP API.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"plancore/internal/core"
	"plancore/pkg/domain"
)

// Server wires the service into a gin router.
type Server struct {
	svc    *core.Service
	logger *zap.Logger
	engine *gin.Engine
}

// NewServer builds the router. A nil gatherer skips the metrics endpoint.
func NewServer(svc *core.Service, logger *zap.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{svc: svc, logger: logger, engine: engine}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/readyz", s.handleReady)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api/v1")
	{
		api.POST("/projects", s.handleCreateProject)
		api.GET("/projects", s.handleListProjects)
		api.GET("/projects/:id", s.handleGetProjectDetail)
		api.PATCH("/projects/:id", s.handleUpdateProject)
		api.DELETE("/projects/:id", s.handleDeleteProject)
		api.POST("/projects/:id/archive", s.handleArchiveProject)
		api.POST("/projects/:id/phases", s.handleCreatePhase)
		api.POST("/projects/:id/team", s.handleAddTeamMember)
		api.POST("/projects/:id/tasks", s.handleCreateTask)
		api.GET("/projects/:id/tasks", s.handleListTasks)

		api.PATCH("/phases/:id", s.handleUpdatePhase)
		api.DELETE("/phases/:id", s.handleDeletePhase)
		api.DELETE("/team/:id", s.handleRemoveTeamMember)

		api.GET("/tasks/:id", s.handleGetTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/:id/toggle", s.handleToggleCompletion)
		api.PUT("/tasks/:id/dependency", s.handleSetDependency)
		api.GET("/tasks/:id/changelog", s.handleListChangeLog)
		api.POST("/tasks/:id/comments", s.handleAddComment)
		api.GET("/tasks/:id/comments", s.handleListComments)
		api.POST("/tasks/:id/attachments", s.handleAddAttachment)
		api.GET("/tasks/:id/attachments", s.handleListAttachments)

		api.PATCH("/comments/:id", s.handleEditComment)
		api.DELETE("/comments/:id", s.handleDeleteComment)
		api.GET("/attachments/:id", s.handleDownloadAttachment)
		api.GET("/attachments/:id/url", s.handleAttachmentURL)
		api.DELETE("/attachments/:id", s.handleDeleteAttachment)

		api.GET("/stats", s.handleStats)
		api.GET("/deadlines", s.handleDeadlines)
		api.GET("/alerts", s.handleAlerts)
	}
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleReady(c *gin.Context) {
	// The store is in-process; readiness just probes a view round trip.
	err := s.svc.Store().View(c.Request.Context(), func(domain.TransactionView) error { return nil })
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// actor reads the calling party from request headers. Author checks and
// audit attribution use it; identity verification is out of scope here.
func actor(c *gin.Context) core.PartyRef {
	return core.PartyRef{
		Kind: domain.PartyKind(strings.TrimSpace(c.GetHeader("X-Actor-Kind"))),
		ID:   strings.TrimSpace(c.GetHeader("X-Actor-ID")),
	}
}

func optString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
