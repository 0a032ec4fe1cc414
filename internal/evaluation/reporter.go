package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"hire-realtime/internal/models"
	"hire-realtime/internal/repositories"
)

// QueueStats is the per-status job count.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// JobPayload is the submission data echoed by the status API.
type JobPayload struct {
	UserID         string `json:"user_id"`
	FileName       string `json:"file_name"`
	FileType       string `json:"file_type"`
	FileURL        string `json:"file_url"`
	JobDescription string `json:"job_description"`
}

// JobStatus is the store-agnostic job view.
type JobStatus struct {
	JobID       string                   `json:"job_id"`
	Status      models.JobStatus         `json:"status"`
	Step        models.EvaluationStep    `json:"step"`
	Progress    int                      `json:"progress"`
	Attempts    int                      `json:"attempts"`
	MaxAttempts int                      `json:"max_attempts"`
	NextRetry   *time.Time               `json:"next_retry"`
	Payload     JobPayload               `json:"payload"`
	Result      *models.EvaluationResult `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Reporter reads queue and job state for the status API.
type Reporter struct {
	jobs   repositories.EvaluationRepository
	now    func() time.Time
	logger *zap.Logger
}

func NewReporter(jobs repositories.EvaluationRepository, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{jobs: jobs, now: time.Now, logger: logger}
}

func (r *Reporter) GetQueueStats(ctx context.Context) (QueueStats, error) {
	counts, err := r.jobs.CountByStatus(ctx)
	if err != nil {
		return QueueStats{}, fmt.Errorf("count jobs: %w", err)
	}
	return QueueStats{
		Waiting:   counts[models.JobWaiting],
		Active:    counts[models.JobActive],
		Completed: counts[models.JobCompleted],
		Failed:    counts[models.JobFailed],
		Delayed:   counts[models.JobDelayed],
	}, nil
}

// GetJobStatus returns nil, nil for unknown jobs.
func (r *Reporter) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := r.jobs.GetJob(ctx, jobID)
	if errors.Is(err, repositories.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &JobStatus{
		JobID:       job.ID,
		Status:      job.Status,
		Step:        job.Step,
		Progress:    ClampProgress(job.Progress),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		NextRetry:   job.NextRetryAt,
		Payload: JobPayload{
			UserID:         job.UserID,
			FileName:       job.FileName,
			FileType:       job.FileType,
			FileURL:        job.FileURL,
			JobDescription: job.JobDescription,
		},
		Result:    job.Result,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}

// CleanupCompletedJobs removes up to maxCount completed jobs older than
// maxAge. A failed removal does not stop the sweep; all failures are
// returned together.
func (r *Reporter) CleanupCompletedJobs(ctx context.Context, maxAge time.Duration, maxCount int) (int, error) {
	if maxCount <= 0 {
		return 0, nil
	}
	ids, err := r.jobs.ListCompletedBefore(ctx, r.now().Add(-maxAge), maxCount)
	if err != nil {
		return 0, fmt.Errorf("list completed jobs: %w", err)
	}

	removed := 0
	var errs error
	for _, id := range ids {
		if err := r.jobs.DeleteJob(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrJobNotFound) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("delete job %s: %w", id, err))
			continue
		}
		removed++
	}
	if removed > 0 || errs != nil {
		r.logger.Info("completed jobs cleaned up",
			zap.Int("removed", removed),
			zap.Int("failed", len(multierr.Errors(errs))))
	}
	return removed, errs
}

// RunCleanup sweeps every interval until ctx is done.
func (r *Reporter) RunCleanup(ctx context.Context, interval, maxAge time.Duration, maxCount int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.CleanupCompletedJobs(ctx, maxAge, maxCount); err != nil {
				r.logger.Warn("cleanup sweep", zap.Error(err))
			}
		}
	}
}
