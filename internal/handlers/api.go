package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"addonplan/internal/models"
	"addonplan/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// Planner is the read-only view of the orchestrator served over HTTP
type Planner interface {
	List(ctx context.Context) ([]models.ToolStatus, error)
	Status(ctx context.Context, key string) (*models.ToolStatus, error)
	History(ctx context.Context, key string) ([]models.InstallEvent, error)
	Plan(ctx context.Context, goal string) (*models.Plan, error)
	Ledger(ctx context.Context) (*models.InstallLedger, error)
	Cluster(ctx context.Context) (*models.ClusterReport, error)
}

// APIHandler handles all API requests
type APIHandler struct {
	planner      Planner
	logger       *zap.Logger
	clusterCheck func(ctx context.Context) bool
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(planner Planner, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{planner: planner, logger: logger}
}

// WithClusterCheck makes /health report cluster reachability
func (h *APIHandler) WithClusterCheck(check func(ctx context.Context) bool) *APIHandler {
	h.clusterCheck = check
	return h
}

// NewRouter registers every route. It never exposes an install endpoint.
func NewRouter(h *APIHandler, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.Health)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		api.GET("/tools", h.GetTools)
		api.GET("/tools/:key", h.GetTool)
		api.GET("/tools/:key/history", h.GetToolHistory)
		api.GET("/plan", h.GetPlan)
		api.GET("/ledger", h.GetLedger)
		api.GET("/cluster", h.GetCluster)
	}
	return router
}

// Health reports liveness, and cluster reachability when a check is configured
func (h *APIHandler) Health(c *gin.Context) {
	if h.clusterCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	cluster := "reachable"
	if !h.clusterCheck(c.Request.Context()) {
		cluster = "unreachable"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cluster": cluster})
}

// GetTools returns every registry tool with its installed state
func (h *APIHandler) GetTools(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	tools, err := h.planner.List(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tools": tools,
		"count": len(tools),
	})
}

// GetTool returns the status of one tool
func (h *APIHandler) GetTool(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	status, err := h.planner.Status(ctx, c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetToolHistory returns the ledger events of one tool, newest first
func (h *APIHandler) GetToolHistory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	events, err := h.planner.History(ctx, c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GetPlan decides for the goal query parameter without installing anything
func (h *APIHandler) GetPlan(c *gin.Context) {
	goal := c.Query("goal")
	if goal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "goal is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	plan, err := h.planner.Plan(ctx, goal)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// GetLedger returns the full install ledger
func (h *APIHandler) GetLedger(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	ledger, err := h.planner.Ledger(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// GetCluster returns the discovered nodes, their summary and the cluster profile
func (h *APIHandler) GetCluster(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	report, err := h.planner.Cluster(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, services.ErrUnknownTool) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
