package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"loadcast/internal/model"
	"loadcast/pkg/inference"
	"loadcast/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Scorer serves predictions and load reports
type Scorer interface {
	Predict(ctx context.Context, input any) ([]float64, error)
	Report(ctx context.Context, input any) (*inference.Report, error)
	LatestReport(ctx context.Context) (json.RawMessage, error)
	Served() *model.ServedModel
}

// PredictionHandler handles prediction and report operations
type PredictionHandler struct {
	scorer Scorer
}

// NewPredictionHandler creates prediction handler
func NewPredictionHandler(scorer Scorer) *PredictionHandler {
	return &PredictionHandler{scorer: scorer}
}

// Predict scores feature rows
// @Summary Predict player counts
// @Tags predictions
// @Accept json
// @Produce json
// @Param request body model.PredictRequest true "Feature rows or columns"
// @Success 200 {object} model.PredictResponse
// @Router /api/v1/predict [post]
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req model.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnCtx(c.Request.Context(), "invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: X_test is required"})
		return
	}
	input, err := decodeRows(req.XTest)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid X_test"})
		return
	}

	pred, err := h.scorer.Predict(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.PredictResponse{Prediction: pred})
}

// Report scores rows and returns the cluster load report
// @Summary Cluster load report
// @Tags predictions
// @Accept json
// @Produce json
// @Param request body model.ReportRequest true "Rows with cluster ids"
// @Success 200 {object} inference.Report
// @Router /api/v1/report [post]
func (h *PredictionHandler) Report(c *gin.Context) {
	var req model.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnCtx(c.Request.Context(), "invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: rows is required"})
		return
	}
	input, err := decodeRows(req.Rows)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rows"})
		return
	}

	report, err := h.scorer.Report(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// LatestReport returns the last generated report
// @Summary Latest cluster load report
// @Tags predictions
// @Produce json
// @Success 200 {object} inference.Report
// @Router /api/v1/report/latest [get]
func (h *PredictionHandler) LatestReport(c *gin.Context) {
	data, err := h.scorer.LatestReport(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Served describes the model answering predictions
// @Summary Served model
// @Tags models
// @Produce json
// @Success 200 {object} model.ServedModel
// @Router /api/v1/models/served [get]
func (h *PredictionHandler) Served(c *gin.Context) {
	served := h.scorer.Served()
	if served == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no model loaded"})
		return
	}
	c.JSON(http.StatusOK, served)
}
