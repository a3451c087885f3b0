package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/report"
	"github.com/momentsapp/moments/internal/service"
)

// AdminHandler handles admin operations.
type AdminHandler struct {
	photos   *service.PhotoService
	tags     *service.TagService
	tagging  *service.TaggingService
	altText  *service.AltTextService
	backfill *service.BackfillService

	// Result of the last run started from the admin endpoint
	mu            sync.RWMutex
	currentStats  *service.BackfillStats
	lastRunTime   time.Time
	lastRunStatus string
}

// AdminDeps groups the services used by AdminHandler.
type AdminDeps struct {
	Photos   *service.PhotoService
	Tags     *service.TagService
	Tagging  *service.TaggingService
	AltText  *service.AltTextService
	Backfill *service.BackfillService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		photos:   deps.Photos,
		tags:     deps.Tags,
		tagging:  deps.Tagging,
		altText:  deps.AltText,
		backfill: deps.Backfill,
	}
}

// VisionStatusResponse reports which vision integrations can be used.
type VisionStatusResponse struct {
	ObjectDetectionAvailable bool `json:"object_detection_available"`
	AltTextAvailable         bool `json:"alt_text_available"`
	SimilarityAvailable      bool `json:"similarity_available"`
}

// VisionStatus handles GET /api/v1/admin/vision/status.
func (h *AdminHandler) VisionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, VisionStatusResponse{
		ObjectDetectionAvailable: h.tagging != nil && h.tagging.Available(),
		AltTextAvailable:         h.altText != nil && h.altText.Available(),
		SimilarityAvailable:      h.photos.SimilarityEnabled(),
	})
}

// Analyze handles POST /api/v1/admin/photos/:id/analyze.
func (h *AdminHandler) Analyze(c *gin.Context) {
	photo, result, err := h.photos.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo": h.photos.View(photo), "analysis": result})
}

// BackfillRequest represents the backfill API request.
type BackfillRequest struct {
	Limit  int  `json:"limit" binding:"omitempty,min=1,max=1000"`
	DryRun bool `json:"dry_run"`
}

// BackfillStatusResponse represents the backfill status.
type BackfillStatusResponse struct {
	IsRunning     bool                   `json:"is_running"`
	LastRunTime   string                 `json:"last_run_time,omitempty"`
	LastRunStatus string                 `json:"last_run_status,omitempty"`
	CurrentStats  *service.BackfillStats `json:"current_stats,omitempty"`
}

// TriggerBackfill handles POST /api/v1/admin/backfill.
func (h *AdminHandler) TriggerBackfill(c *gin.Context) {
	ctx := c.Request.Context()

	var req BackfillRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.CtxWarn(ctx, "Invalid backfill request: client_ip=%s, error=%v", c.ClientIP(), err)
			badRequest(c, err.Error())
			return
		}
	}

	if h.backfill.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "Backfill is already running"})
		return
	}

	logger.CtxInfo(ctx, "Starting backfill: limit=%d, dry_run=%v", req.Limit, req.DryRun)

	// Detach from the request so a client timeout does not abort the run halfway.
	runCtx := logger.FromContext(ctx).WithContext(context.Background())
	startTime := time.Now()
	stats, err := h.backfill.Run(runCtx, &service.BackfillOptions{Limit: req.Limit, DryRun: req.DryRun})
	duration := time.Since(startTime)
	if errors.Is(err, service.ErrBackfillRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": "Backfill is already running"})
		return
	}

	h.mu.Lock()
	h.currentStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{
			logger.FieldDurationMs: duration.Milliseconds(),
		}).Error(ctx, "Backfill failed: %v", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Backfill completed",
		"stats":   stats,
	})
}

// BackfillStatus handles GET /api/v1/admin/backfill/status.
func (h *AdminHandler) BackfillStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := BackfillStatusResponse{
		IsRunning:     h.backfill.Running(),
		LastRunStatus: h.lastRunStatus,
		CurrentStats:  h.currentStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// ExportTags handles GET /api/v1/admin/tags/export and returns an xlsx workbook.
func (h *AdminHandler) ExportTags(c *gin.Context) {
	tags, err := h.tags.ListWithCounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	c.Header("Content-Type", report.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="tags-%s.xlsx"`, now.Format("20060102")))
	c.Status(http.StatusOK)
	if err := report.WriteTagReport(c.Writer, tags, now); err != nil {
		logger.CtxError(c.Request.Context(), "Failed to write tag report: %v", err)
		_ = c.Error(errors.New("tag report failed"))
	}
}
