package handler

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"captcha-trainer/internal/export"
	"captcha-trainer/internal/llm"
	"captcha-trainer/internal/middleware"
	"captcha-trainer/internal/models"
	"captcha-trainer/internal/repository"
	"captcha-trainer/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/index.html
var indexHTML []byte

// Handler handles HTTP requests
type Handler struct {
	trainer        *service.Trainer
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(trainer *service.Trainer, maxUploadBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		trainer:        trainer,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	sessions := middleware.SessionMiddleware(h.logger)

	r.GET("/", sessions, h.Index)

	api := r.Group("/api/v1", sessions)
	{
		// Recognition and feedback
		api.GET("/models", h.ListModels)
		api.POST("/recognize", h.Recognize)
		api.POST("/feedback/confirm", h.Confirm)
		api.POST("/feedback/correct", h.Correct)

		// Session
		api.GET("/session", h.GetSession)
		api.POST("/session/reset-stats", h.ResetStats)

		// Data retrieval
		api.GET("/examples", h.GetExamples)
		api.GET("/records", h.GetRecords)
		api.GET("/stats", h.GetStats)

		// Export
		api.GET("/export/csv", h.Export(export.FormatCSV))
		api.GET("/export/json", h.Export(export.FormatJSON))

		// Admin
		api.POST("/admin/quota/reset", h.ResetQuota)
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

// Index serves the single page UI
func (h *Handler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *Handler) session(c *gin.Context) *service.Session {
	return h.trainer.Session(middleware.SessionID(c))
}

// ListModels returns the selectable models
func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":  h.trainer.Models(),
		"default": h.trainer.DefaultModel(),
	})
}

// Recognize handles an image upload
func (h *Handler) Recognize(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "code": "bad_request"})
		return
	}
	if fh.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes),
			"code":  "too_large",
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file", "code": "bad_request"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes))
	if err != nil {
		h.logger.Error("Failed to read upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file", "code": "bad_request"})
		return
	}

	result, err := h.trainer.Upload(c.Request.Context(), h.session(c), fh.Filename, data, c.PostForm("model"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Confirm accepts the model's answer
func (h *Handler) Confirm(c *gin.Context) {
	result, err := h.trainer.Confirm(c.Request.Context(), h.session(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Correct stores a human answer
func (h *Handler) Correct(c *gin.Context) {
	var req models.CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}

	result, err := h.trainer.Correct(c.Request.Context(), h.session(c), req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSession returns the caller's session
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.trainer.View(h.session(c)))
}

// ResetStats zeroes the caller's counters
func (h *Handler) ResetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.trainer.ResetStats(h.session(c)))
}

// GetExamples returns the gold-standard progress
func (h *Handler) GetExamples(c *gin.Context) {
	c.JSON(http.StatusOK, h.trainer.Examples(c.Request.Context()))
}

// GetRecords returns all records without images
func (h *Handler) GetRecords(c *gin.Context) {
	records, err := h.trainer.Records(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   len(records),
	})
}

// GetStats returns the accuracy over every stored record
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.trainer.OverallStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Export returns a download handler for format f
func (h *Handler) Export(f export.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.trainer.ExportRecords(c.Request.Context())
		if err != nil {
			h.logger.Error("Failed to export", zap.String("format", string(f)), zap.Error(err))
			h.respondError(c, err)
			return
		}

		var buf bytes.Buffer
		if err := export.Write(&buf, f, records); err != nil {
			h.logger.Error("Failed to encode export", zap.String("format", string(f)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed", "code": "internal"})
			return
		}

		c.Header("Content-Disposition", "attachment; filename="+f.Filename(time.Now()))
		c.Data(http.StatusOK, f.ContentType(), buf.Bytes())
	}
}

// ResetQuota unblocks every model
func (h *Handler) ResetQuota(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"unblocked": h.trainer.ResetQuota()})
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "captcha-trainer",
		"store":   h.trainer.StoreName(),
	})
}

// respondError maps domain errors onto HTTP statuses. Unknown upstream
// errors are shown verbatim.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := http.StatusBadGateway, "upstream_error"
	switch {
	case errors.Is(err, service.ErrInvalidImage), errors.Is(err, models.ErrEmptyLabel):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNoUpload), errors.Is(err, service.ErrNotRecognized),
		errors.Is(err, service.ErrAlreadyRated), errors.Is(err, service.ErrNothingToConfirm):
		status, code = http.StatusConflict, "wrong_state"
	case errors.Is(err, llm.ErrModelBlocked):
		status, code = http.StatusTooManyRequests, "model_blocked"
	case errors.Is(err, llm.ErrQuotaExceeded):
		status, code = http.StatusTooManyRequests, "quota_exceeded"
	case errors.Is(err, llm.ErrModelNotFound):
		status, code = http.StatusNotFound, "model_not_found"
	case errors.Is(err, repository.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "store_unavailable"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
