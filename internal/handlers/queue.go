package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/evaluation"
	"hire-realtime/internal/telemetry"
)

// QueueHandler exposes queue statistics and the manual cleanup sweep to admins.
type QueueHandler struct {
	reporter        *evaluation.Reporter
	audit           *telemetry.AuditEmitter
	defaultMaxAge   time.Duration
	defaultMaxCount int
	logger          *zap.Logger
}

func NewQueueHandler(reporter *evaluation.Reporter, audit *telemetry.AuditEmitter, maxAge time.Duration, maxCount int, logger *zap.Logger) *QueueHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueHandler{
		reporter:        reporter,
		audit:           audit,
		defaultMaxAge:   maxAge,
		defaultMaxCount: maxCount,
		logger:          logger,
	}
}

func (h *QueueHandler) Register(r gin.IRoutes) {
	r.GET("/queue/stats", h.Stats)
	r.POST("/queue/cleanup", h.Cleanup)
}

func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.reporter.GetQueueStats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Cleanup removes completed jobs. Optional JSON body {max_age, max_count}
// overrides the configured limits; max_age is a Go duration string.
func (h *QueueHandler) Cleanup(c *gin.Context) {
	var req struct {
		MaxAge   string `json:"max_age"`
		MaxCount *int   `json:"max_count"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, h.logger, errBadRequest.WithCause(err))
			return
		}
	}

	maxAge, maxCount := h.defaultMaxAge, h.defaultMaxCount
	if req.MaxAge != "" {
		d, err := time.ParseDuration(req.MaxAge)
		if err != nil || d < 0 {
			writeError(c, h.logger, apperr.New(apperr.KindValidation, "invalid_max_age", "max_age must be a non-negative duration"))
			return
		}
		maxAge = d
	}
	if req.MaxCount != nil {
		maxCount = *req.MaxCount
	}

	removed, err := h.reporter.CleanupCompletedJobs(c.Request.Context(), maxAge, maxCount)
	h.audit.Emit(c.Request.Context(), telemetry.AuditEvent{
		Action:    "queue_cleanup",
		Text:      "completed jobs cleanup",
		RequestID: requestIDFromContext(c),
		UserID:    userIDFromContext(c),
		Fields: map[string]string{
			"removed":   strconv.Itoa(removed),
			"max_age":   maxAge.String(),
			"max_count": strconv.Itoa(maxCount),
		},
	})

	resp := gin.H{"removed": removed}
	if err != nil {
		h.logger.Warn("cleanup finished with errors", zap.Int("removed", removed), zap.Error(err))
		resp["errors"] = errorStrings(err)
	}
	c.JSON(http.StatusOK, resp)
}

func errorStrings(err error) []string {
	errs := multierr.Errors(err)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
