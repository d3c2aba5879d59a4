package handler

import (
	"context"
	"net/http"
	"strconv"

	"loadcast/internal/model"
	"loadcast/pkg/logger"
	mysqlModel "loadcast/pkg/store/mysql/model"

	"github.com/gin-gonic/gin"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// PipelineRunner submits and lists pipeline runs
type PipelineRunner interface {
	Submit(ctx context.Context, req *model.RunRequest) (*model.SubmitRunResponse, error)
	GetRun(ctx context.Context, runID string) (*mysqlModel.PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]*mysqlModel.PipelineRun, error)
	Cancel(ctx context.Context, runID string) error
}

// PipelineHandler handles pipeline run operations
type PipelineHandler struct {
	pipeline PipelineRunner
}

// NewPipelineHandler creates pipeline handler
func NewPipelineHandler(pipeline PipelineRunner) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline}
}

// Submit enqueues a pipeline run
// @Summary Submit pipeline run
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body model.RunRequest false "Periods to load"
// @Success 202 {object} model.SubmitRunResponse
// @Router /api/v1/pipeline/runs [post]
func (h *PipelineHandler) Submit(c *gin.Context) {
	var req model.RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WarnCtx(c.Request.Context(), "invalid request: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	req.Trigger = model.TriggerAPI

	resp, err := h.pipeline.Submit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// GetRun gets a pipeline run
// @Summary Get pipeline run
// @Tags pipeline
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} mysqlModel.PipelineRun
// @Router /api/v1/pipeline/runs/{id} [get]
func (h *PipelineHandler) GetRun(c *gin.Context) {
	runID := c.Param("id")
	run, err := h.pipeline.GetRun(c.Request.Context(), runID)
	if err != nil {
		writeError(c, err)
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns lists recent pipeline runs
// @Summary List pipeline runs
// @Tags pipeline
// @Produce json
// @Param limit query int false "Maximum runs returned"
// @Success 200 {array} mysqlModel.PipelineRun
// @Router /api/v1/pipeline/runs [get]
func (h *PipelineHandler) ListRuns(c *gin.Context) {
	limit := defaultRunLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.pipeline.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

// CancelRun cancels a queued pipeline run
// @Summary Cancel pipeline run
// @Tags pipeline
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/pipeline/runs/{id} [delete]
func (h *PipelineHandler) CancelRun(c *gin.Context) {
	runID := c.Param("id")
	if err := h.pipeline.Cancel(c.Request.Context(), runID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "cancelled": true})
}
