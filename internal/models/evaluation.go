package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EvaluationStep is the pipeline position of an evaluation job.
type EvaluationStep string

const (
	StepQueued         EvaluationStep = "queued"
	StepExtractingText EvaluationStep = "extracting_text"
	StepScoring        EvaluationStep = "scoring"
	StepCompleted      EvaluationStep = "completed"
	StepFailed         EvaluationStep = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s EvaluationStep) IsTerminal() bool {
	return s == StepCompleted || s == StepFailed
}

// JobStatus is the store-agnostic queue state exposed by the status API.
type JobStatus string

const (
	JobWaiting   JobStatus = "waiting"
	JobActive    JobStatus = "active"
	JobDelayed   JobStatus = "delayed"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// EvaluationJob is one resume-vs-job-description scoring request.
type EvaluationJob struct {
	ID             string            `db:"id" json:"id"`
	UserID         string            `db:"user_id" json:"user_id"`
	FileURL        string            `db:"file_url" json:"file_url"`
	FileName       string            `db:"file_name" json:"file_name"`
	FileType       string            `db:"file_type" json:"file_type"`
	JobDescription string            `db:"job_description" json:"job_description"`
	OCRText        string            `db:"ocr_text" json:"-"`
	Step           EvaluationStep    `db:"step" json:"step"`
	Status         JobStatus         `db:"status" json:"status"`
	Progress       int               `db:"progress" json:"progress"`
	Attempts       int               `db:"attempts" json:"attempts"`
	MaxAttempts    int               `db:"max_attempts" json:"max_attempts"`
	NextRetryAt    *time.Time        `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastModel      string            `db:"last_model" json:"last_model,omitempty"`
	Result         *EvaluationResult `db:"result" json:"result,omitempty"`
	Error          string            `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// SubScores are the normalized 0..100 grading dimensions.
type SubScores struct {
	SkillsMatch         int  `json:"skills_match"`
	ExperienceRelevance int  `json:"experience_relevance"`
	EducationFit        int  `json:"education_fit"`
	KeywordAlignment    int  `json:"keyword_alignment"`
	Formatting          *int `json:"formatting,omitempty"`
}

// Suggestion is one actionable improvement for the resume.
type Suggestion struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    int    `json:"priority"`
}

// EvaluationResult is the validated output of the scoring collaborator.
type EvaluationResult struct {
	Scores       SubScores    `json:"scores"`
	OverallScore int          `json:"overall_score"`
	Review       string       `json:"review"`
	Suggestions  []Suggestion `json:"suggestions"`
	Model        string       `json:"model"`
}

// Value stores the result as JSONB.
func (r *EvaluationResult) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan reads the result from a JSONB column.
func (r *EvaluationResult) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	case nil:
		return nil
	default:
		return fmt.Errorf("evaluation result: unsupported scan type %T", src)
	}
}
