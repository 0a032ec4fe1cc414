package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hire-realtime/internal/apperr"
	"hire-realtime/internal/extract"
	"hire-realtime/internal/models"
	"hire-realtime/internal/observability"
	"hire-realtime/internal/repositories"
)

const (
	DefaultMaxFileSize = 10 << 20

	ActionEvaluate = "resume:evaluate"
)

var (
	ErrEmptyFile              = apperr.New(apperr.KindValidation, "empty_file", "resume file is empty")
	ErrFileTooLarge           = apperr.New(apperr.KindValidation, "file_too_large", "resume file is too large")
	ErrJobDescriptionRequired = apperr.New(apperr.KindValidation, "job_description_required", "job_description is required")
	ErrJobNotFound            = apperr.New(apperr.KindNotFound, "job_not_found", "evaluation job not found")
	ErrQueueUnavailable       = apperr.New(apperr.KindTransient, "queue_unavailable", "evaluation queue unavailable")
	ErrRateLimited            = apperr.New(apperr.KindRateLimited, "rate_limited", "too many evaluations, try again later")
	ErrProcessingPanic        = errors.New("evaluation panicked")
)

// TextExtractor turns stored resume bytes into text.
type TextExtractor interface {
	Supports(fileType string) bool
	Extract(ctx context.Context, fileType string, data []byte, ocrText string) (string, error)
}

// ModelRunner scores a prompt against the fallback model list.
type ModelRunner interface {
	Run(ctx context.Context, prompt string, hooks Hooks) (models.EvaluationResult, error)
	MaxAttempts() int
}

// FileStore persists uploads and hands back a URL for them.
type FileStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Load(ctx context.Context, url string) ([]byte, error)
}

// Queue hands job ids to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Broadcaster delivers status events to connected users and rooms.
type Broadcaster interface {
	BroadcastToUser(userID, event string, payload any)
	BroadcastExceptUser(room, event string, payload any, exceptUserID string)
}

// Limiter is an optional per-(subject, action) admission check.
type Limiter interface {
	Allow(subject, action string) (bool, time.Duration)
}

// SubmitRequest is one uploaded resume plus the job it is graded against.
type SubmitRequest struct {
	UserID         string
	FileName       string
	Data           []byte
	JobDescription string
	OCRText        string
}

// Orchestrator validates submissions and drives jobs through
// queued -> extracting_text -> scoring -> completed|failed.
type Orchestrator struct {
	jobs        repositories.EvaluationRepository
	extractor   TextExtractor
	runner      ModelRunner
	files       FileStore
	queue       Queue
	bus         Broadcaster
	limiter     Limiter
	maxFileSize int64
	now         func() time.Time
	logger      *zap.Logger
}

type Option func(*Orchestrator)

func WithLimiter(l Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

func WithMaxFileSize(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxFileSize = n
		}
	}
}

func NewOrchestrator(jobs repositories.EvaluationRepository, extractor TextExtractor, runner ModelRunner, files FileStore, queue Queue, bus Broadcaster, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		jobs:        jobs,
		extractor:   extractor,
		runner:      runner,
		files:       files,
		queue:       queue,
		bus:         bus,
		maxFileSize: DefaultMaxFileSize,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the upload, stores it, records a queued job and enqueues
// it. Nothing is stored or emitted when validation fails.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (models.EvaluationJob, error) {
	fileType := extract.FileType(req.FileName)
	if fileType == "" || !o.extractor.Supports(fileType) {
		return models.EvaluationJob{}, extract.ErrUnsupportedType.WithCause(fmt.Errorf("file %q", req.FileName))
	}
	if len(req.Data) == 0 {
		return models.EvaluationJob{}, ErrEmptyFile
	}
	if int64(len(req.Data)) > o.maxFileSize {
		return models.EvaluationJob{}, ErrFileTooLarge.WithCause(fmt.Errorf("%d bytes exceeds %d", len(req.Data), o.maxFileSize))
	}
	jobDescription := strings.TrimSpace(req.JobDescription)
	if jobDescription == "" {
		return models.EvaluationJob{}, ErrJobDescriptionRequired
	}
	ocrText := strings.TrimSpace(req.OCRText)
	if extract.IsImage(fileType) && ocrText == "" {
		return models.EvaluationJob{}, extract.ErrOCRRequired
	}

	if o.limiter != nil {
		if ok, retryAfter := o.limiter.Allow(req.UserID, ActionEvaluate); !ok {
			observability.IncRateLimited(ActionEvaluate)
			return models.EvaluationJob{}, ErrRateLimited.WithCause(fmt.Errorf("retry after %s", retryAfter.Round(time.Second)))
		}
	}

	jobID := uuid.NewString()
	url, err := o.files.Save(ctx, jobID+"."+fileType, req.Data)
	if err != nil {
		return models.EvaluationJob{}, fmt.Errorf("store resume: %w", err)
	}

	job := models.EvaluationJob{
		ID:             jobID,
		UserID:         req.UserID,
		FileURL:        url,
		FileName:       req.FileName,
		FileType:       fileType,
		JobDescription: jobDescription,
		OCRText:        ocrText,
		Step:           models.StepQueued,
		Status:         models.JobWaiting,
		MaxAttempts:    o.runner.MaxAttempts(),
	}
	if err := o.jobs.CreateJob(ctx, &job); err != nil {
		return models.EvaluationJob{}, fmt.Errorf("create evaluation job: %w", err)
	}
	o.emit(job, "resume queued for evaluation")

	if err := o.queue.Enqueue(ctx, job.ID); err != nil {
		o.logger.Error("enqueue evaluation job", zap.String("job_id", job.ID), zap.Error(err))
		o.fail(ctx, &job, ErrQueueUnavailable.WithCause(err))
		return job, ErrQueueUnavailable.WithCause(err)
	}

	o.logger.Info("evaluation job queued",
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.String("file_type", fileType))
	return job, nil
}

// Process runs one job to a terminal state. Jobs that are already
// finalized are skipped so redelivered queue messages are harmless. A
// canceled ctx leaves the job unfinished for recovery on the next start.
func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if errors.Is(err, repositories.ErrJobNotFound) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("load evaluation job: %w", err)
	}
	if job.Step.IsTerminal() {
		o.logger.Debug("skipping finalized job", zap.String("job_id", jobID), zap.String("step", string(job.Step)))
		return nil
	}

	started := o.now()
	err = o.safeProcess(ctx, &job)
	switch {
	case err == nil:
		observability.ObserveEvaluation("completed", o.now().Sub(started))
		return nil
	case errors.Is(err, repositories.ErrJobFinalized):
		o.logger.Warn("job finalized concurrently", zap.String("job_id", jobID))
		return nil
	case errors.Is(err, context.Canceled):
		observability.ObserveEvaluation("canceled", o.now().Sub(started))
		return err
	}

	o.fail(ctx, &job, err)
	observability.ObserveEvaluation("failed", o.now().Sub(started))
	return err
}

// safeProcess turns a panic in an extractor or scorer into an error so the
// job still reaches failed.
func (o *Orchestrator) safeProcess(ctx context.Context, job *models.EvaluationJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("evaluation panicked", zap.String("job_id", job.ID), zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrProcessingPanic, r)
		}
	}()
	return o.process(ctx, job)
}

func (o *Orchestrator) process(ctx context.Context, job *models.EvaluationJob) error {
	if err := o.advance(ctx, job, models.StepExtractingText, 10, "extracting resume text"); err != nil {
		return err
	}
	data, err := o.files.Load(ctx, job.FileURL)
	if err != nil {
		return fmt.Errorf("load resume: %w", err)
	}
	text, err := o.extractor.Extract(ctx, job.FileType, data, job.OCRText)
	if err != nil {
		return err
	}
	fields := ParseResume(text)
	if err := o.advance(ctx, job, models.StepExtractingText, 30, fmt.Sprintf("extracted %d words", fields.WordCount)); err != nil {
		return err
	}

	if err := o.advance(ctx, job, models.StepScoring, 40, "scoring resume"); err != nil {
		return err
	}
	prompt := BuildPrompt(fields, job.JobDescription)
	maxAttempts := o.runner.MaxAttempts()

	var updateErr error
	result, err := o.runner.Run(ctx, prompt, Hooks{
		OnAttempt: func(a Attempt) {
			job.Attempts = a.Total
			job.LastModel = a.Model
			if updateErr != nil {
				return
			}
			updateErr = o.advance(ctx, job, models.StepScoring, scoringProgress(a.Total, maxAttempts),
				fmt.Sprintf("scoring with %s (attempt %d)", a.Model, a.Number))
		},
		OnBackoff: func(b Backoff) {
			if updateErr != nil {
				return
			}
			updateErr = o.delay(ctx, job, b)
		},
	})
	if updateErr != nil {
		return updateErr
	}
	if err != nil {
		return err
	}

	if err := o.advance(ctx, job, models.StepScoring, 90, "validating result"); err != nil {
		return err
	}
	if err := o.jobs.CompleteJob(ctx, job.ID, result); err != nil {
		return err
	}
	job.Step, job.Status, job.Progress, job.Result = models.StepCompleted, models.JobCompleted, 100, &result
	o.emit(*job, fmt.Sprintf("overall score %d", result.OverallScore))
	o.logger.Info("evaluation completed",
		zap.String("job_id", job.ID),
		zap.String("model", result.Model),
		zap.Int("attempts", job.Attempts),
		zap.Int("overall_score", result.OverallScore))
	return nil
}

// scoringProgress spreads attempts over 40..85.
func scoringProgress(attempt, maxAttempts int) int {
	if maxAttempts <= 0 {
		return 40
	}
	return 40 + (attempt-1)*45/maxAttempts
}

func (o *Orchestrator) advance(ctx context.Context, job *models.EvaluationJob, step models.EvaluationStep, progress int, details string) error {
	job.Step, job.Status, job.Progress, job.NextRetryAt = step, models.JobActive, ClampProgress(progress), nil
	return o.save(ctx, job, details)
}

// delay marks the job delayed until the runner retries the same model.
func (o *Orchestrator) delay(ctx context.Context, job *models.EvaluationJob, b Backoff) error {
	retryAt := o.now().Add(b.Delay).UTC()
	job.Status, job.NextRetryAt = models.JobDelayed, &retryAt
	return o.save(ctx, job, fmt.Sprintf("%s attempt %d failed, retrying in %s", b.Model, b.Attempt, b.Delay))
}

func (o *Orchestrator) save(ctx context.Context, job *models.EvaluationJob, details string) error {
	err := o.jobs.UpdateProgress(ctx, job.ID, repositories.JobUpdate{
		Step:        job.Step,
		Status:      job.Status,
		Progress:    job.Progress,
		Attempts:    job.Attempts,
		NextRetryAt: job.NextRetryAt,
		LastModel:   job.LastModel,
	})
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	o.emit(*job, details)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, job *models.EvaluationJob, cause error) {
	reason := cause.Error()
	if err := o.jobs.FailJob(context.WithoutCancel(ctx), job.ID, reason); err != nil {
		if !errors.Is(err, repositories.ErrJobFinalized) {
			o.logger.Error("mark job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}
	job.Step, job.Status, job.Error = models.StepFailed, models.JobFailed, reason
	o.emit(*job, reason)
	o.logger.Warn("evaluation failed", zap.String("job_id", job.ID), zap.Error(cause))
}

// emit sends resume:status to the owner and to anyone else watching the job.
func (o *Orchestrator) emit(job models.EvaluationJob, details string) {
	ev := models.ResumeStatusEvent{
		JobID:     job.ID,
		Step:      job.Step,
		Status:    job.Status,
		Progress:  ClampProgress(job.Progress),
		Details:   details,
		Timestamp: o.now().UTC(),
	}
	o.bus.BroadcastToUser(job.UserID, models.EventResumeStatus, ev)
	o.bus.BroadcastExceptUser(models.EvaluationRoom(job.ID), models.EventResumeStatus, ev, job.UserID)
}
