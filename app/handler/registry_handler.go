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

// ModelRegistry lists and promotes model versions
type ModelRegistry interface {
	Models(ctx context.Context) ([]*mysqlModel.RegisteredModel, error)
	Versions(ctx context.Context, name string) ([]*mysqlModel.ModelVersion, error)
	Transition(ctx context.Context, name string, version int, stage string, archiveExisting bool) (*mysqlModel.ModelVersion, error)
}

// RegistryHandler handles model registry operations
type RegistryHandler struct {
	registry ModelRegistry
}

// NewRegistryHandler creates registry handler
func NewRegistryHandler(registry ModelRegistry) *RegistryHandler {
	return &RegistryHandler{registry: registry}
}

// ListModels lists registered models
// @Summary List registered models
// @Tags models
// @Produce json
// @Success 200 {array} mysqlModel.RegisteredModel
// @Router /api/v1/models [get]
func (h *RegistryHandler) ListModels(c *gin.Context) {
	models, err := h.registry.Models(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// ListVersions lists the versions of a model
// @Summary List model versions
// @Tags models
// @Produce json
// @Param name path string true "Model name"
// @Success 200 {array} mysqlModel.ModelVersion
// @Router /api/v1/models/{name}/versions [get]
func (h *RegistryHandler) ListVersions(c *gin.Context) {
	versions, err := h.registry.Versions(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// TransitionStage moves a model version to another stage
// @Summary Transition model version stage
// @Tags models
// @Accept json
// @Produce json
// @Param name path string true "Model name"
// @Param version path int true "Version"
// @Param request body model.StageTransitionRequest true "Target stage"
// @Success 200 {object} mysqlModel.ModelVersion
// @Router /api/v1/models/{name}/versions/{version}/stage [post]
func (h *RegistryHandler) TransitionStage(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return
	}

	var req model.StageTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnCtx(c.Request.Context(), "invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: stage is required"})
		return
	}

	v, err := h.registry.Transition(c.Request.Context(), c.Param("name"), version, req.Stage, req.ArchiveExisting)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
