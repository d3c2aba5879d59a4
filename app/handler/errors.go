package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"loadcast/internal/service"
	"loadcast/pkg/apperr"
	"loadcast/pkg/logger"
	"loadcast/pkg/queue/asynq"
	"loadcast/pkg/registry"
	redisstore "loadcast/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var schemaErr *apperr.SchemaError
	var typeErr *apperr.TypeMismatchError
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &typeErr), errors.Is(err, apperr.ErrEmptyInput),
		errors.Is(err, registry.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoModel):
		return http.StatusServiceUnavailable
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, redisstore.ErrNotCached),
		errors.Is(err, asynq.ErrRunNotQueued):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRunInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), "request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// decodeRows decodes tabular JSON keeping numbers exact
func decodeRows(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
