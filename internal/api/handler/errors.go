package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/service"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPhotoNotFound), errors.Is(err, domain.ErrTagNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidImage), errors.Is(err, domain.ErrInvalidTag),
		errors.Is(err, domain.ErrInvalidDescription), errors.Is(err, service.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDetectionUnavailable), errors.Is(err, domain.ErrCaptionUnavailable),
		errors.Is(err, service.ErrSimilarityUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrBackfillRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": ...}. Internal errors are logged and their details hidden.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		logger.CtxError(c.Request.Context(), "Request failed: %v", err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
