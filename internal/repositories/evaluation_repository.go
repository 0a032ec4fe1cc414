package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"hire-realtime/internal/models"
)

var (
	ErrJobNotFound  = errors.New("evaluation job not found")
	ErrJobFinalized = errors.New("evaluation job already finalized")
)

const jobColumns = `id, user_id, file_url, file_name, file_type, job_description, ocr_text, step, status, progress,
        attempts, max_attempts, next_retry_at, last_model, result, error, created_at, updated_at, completed_at`

// JobUpdate is a non-terminal progress transition.
type JobUpdate struct {
	Step        models.EvaluationStep
	Status      models.JobStatus
	Progress    int
	Attempts    int
	NextRetryAt *time.Time
	LastModel   string
}

// EvaluationRepository abstracts evaluation job persistence.
type EvaluationRepository interface {
	CreateJob(ctx context.Context, job *models.EvaluationJob) error
	GetJob(ctx context.Context, jobID string) (models.EvaluationJob, error)
	UpdateProgress(ctx context.Context, jobID string, update JobUpdate) error
	CompleteJob(ctx context.Context, jobID string, result models.EvaluationResult) error
	FailJob(ctx context.Context, jobID, reason string) error
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteJob(ctx context.Context, jobID string) error
	ListUnfinished(ctx context.Context, limit int) ([]models.EvaluationJob, error)
}

// EvaluationRepo implements EvaluationRepository using sqlx.
type EvaluationRepo struct {
	db *sqlx.DB
}

func NewEvaluationRepo(db *sqlx.DB) *EvaluationRepo {
	return &EvaluationRepo{db: db}
}

// CreateJob inserts a queued job; timestamps are filled from the database.
func (r *EvaluationRepo) CreateJob(ctx context.Context, job *models.EvaluationJob) error {
	return r.db.QueryRowxContext(ctx, `INSERT INTO evaluation_jobs
        (id, user_id, file_url, file_name, file_type, job_description, ocr_text, step, status, progress, attempts, max_attempts)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11)
        RETURNING created_at, updated_at`,
		job.ID, job.UserID, job.FileURL, job.FileName, job.FileType, job.JobDescription, job.OCRText,
		job.Step, job.Status, job.Progress, job.MaxAttempts).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (r *EvaluationRepo) GetJob(ctx context.Context, jobID string) (models.EvaluationJob, error) {
	var job models.EvaluationJob
	err := r.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM evaluation_jobs WHERE id=$1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EvaluationJob{}, ErrJobNotFound
	}
	return job, err
}

// UpdateProgress records a transition; finalized jobs are left untouched.
func (r *EvaluationRepo) UpdateProgress(ctx context.Context, jobID string, u JobUpdate) error {
	res, err := r.db.ExecContext(ctx, `UPDATE evaluation_jobs
        SET step=$2, status=$3, progress=$4, attempts=$5, next_retry_at=$6, last_model=$7, updated_at=NOW()
        WHERE id=$1 AND step NOT IN ('completed', 'failed')`,
		jobID, u.Step, u.Status, u.Progress, u.Attempts, u.NextRetryAt, u.LastModel)
	if err != nil {
		return err
	}
	return r.terminalGuard(ctx, res, jobID)
}

// CompleteJob stores the result and moves the job to its terminal success state.
func (r *EvaluationRepo) CompleteJob(ctx context.Context, jobID string, result models.EvaluationResult) error {
	res, err := r.db.ExecContext(ctx, `UPDATE evaluation_jobs
        SET step='completed', status='completed', progress=100, result=$2, last_model=$3, next_retry_at=NULL,
            error='', updated_at=NOW(), completed_at=NOW()
        WHERE id=$1 AND step NOT IN ('completed', 'failed')`, jobID, &result, result.Model)
	if err != nil {
		return err
	}
	return r.terminalGuard(ctx, res, jobID)
}

// FailJob moves the job to its terminal failure state.
func (r *EvaluationRepo) FailJob(ctx context.Context, jobID, reason string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE evaluation_jobs
        SET step='failed', status='failed', error=$2, next_retry_at=NULL, updated_at=NOW(), completed_at=NOW()
        WHERE id=$1 AND step NOT IN ('completed', 'failed')`, jobID, reason)
	if err != nil {
		return err
	}
	return r.terminalGuard(ctx, res, jobID)
}

func (r *EvaluationRepo) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	var rows []struct {
		Status models.JobStatus `db:"status"`
		Count  int              `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM evaluation_jobs GROUP BY status`); err != nil {
		return nil, err
	}
	counts := make(map[models.JobStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *EvaluationRepo) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM evaluation_jobs
        WHERE step='completed' AND completed_at < $1
        ORDER BY completed_at ASC LIMIT $2`, cutoff, limit)
	return ids, err
}

func (r *EvaluationRepo) DeleteJob(ctx context.Context, jobID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM evaluation_jobs WHERE id=$1`, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListUnfinished returns jobs that were queued or in flight, oldest first.
func (r *EvaluationRepo) ListUnfinished(ctx context.Context, limit int) ([]models.EvaluationJob, error) {
	jobs := []models.EvaluationJob{}
	err := r.db.SelectContext(ctx, &jobs, `SELECT `+jobColumns+` FROM evaluation_jobs
        WHERE step NOT IN ('completed', 'failed')
        ORDER BY created_at ASC LIMIT $1`, limit)
	return jobs, err
}

func (r *EvaluationRepo) terminalGuard(ctx context.Context, res sql.Result, jobID string) error {
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	var step models.EvaluationStep
	err := r.db.GetContext(ctx, &step, `SELECT step FROM evaluation_jobs WHERE id=$1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	return ErrJobFinalized
}
