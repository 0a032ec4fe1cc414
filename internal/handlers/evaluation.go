package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/evaluation"
)

var errResumeRequired = apperr.New(apperr.KindValidation, "resume_required", "resume file is required")

// EvaluationHandler accepts resume uploads and reports job status.
type EvaluationHandler struct {
	orchestrator *evaluation.Orchestrator
	reporter     *evaluation.Reporter
	maxFileSize  int64
	logger       *zap.Logger
}

func NewEvaluationHandler(orchestrator *evaluation.Orchestrator, reporter *evaluation.Reporter, maxFileSize int64, logger *zap.Logger) *EvaluationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxFileSize <= 0 {
		maxFileSize = evaluation.DefaultMaxFileSize
	}
	return &EvaluationHandler{orchestrator: orchestrator, reporter: reporter, maxFileSize: maxFileSize, logger: logger}
}

func (h *EvaluationHandler) Register(r gin.IRoutes) {
	r.POST("/evaluations", h.Submit)
	r.GET("/evaluations/:job_id", h.GetStatus)
}

// Submit takes multipart fields resume, job_description and ocr_text and
// answers 202 with the queued job.
func (h *EvaluationHandler) Submit(c *gin.Context) {
	header, err := c.FormFile("resume")
	if err != nil {
		writeError(c, h.logger, errResumeRequired.WithCause(err))
		return
	}
	file, err := header.Open()
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("open upload: %w", err))
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the size check to reject it.
	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("read upload: %w", err))
		return
	}

	job, err := h.orchestrator.Submit(c.Request.Context(), evaluation.SubmitRequest{
		UserID:         userIDFromContext(c),
		FileName:       header.Filename,
		Data:           data,
		JobDescription: c.PostForm("job_description"),
		OCRText:        c.PostForm("ocr_text"),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status, "step": job.Step})
}

// GetStatus reports a job to its owner or an admin. Other callers see 404.
func (h *EvaluationHandler) GetStatus(c *gin.Context) {
	status, err := h.reporter.GetJobStatus(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if status == nil || (status.Payload.UserID != userIDFromContext(c) && !isAdmin(c)) {
		writeError(c, h.logger, evaluation.ErrJobNotFound)
		return
	}
	c.JSON(http.StatusOK, status)
}
