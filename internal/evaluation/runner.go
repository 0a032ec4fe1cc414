package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hire-realtime/internal/llm"
	"hire-realtime/internal/models"
	"hire-realtime/internal/observability"
)

const DefaultAttemptsPerModel = 3

var ErrModelsExhausted = errors.New("all scoring models exhausted")

// ExhaustedError is returned when every model in the list failed.
type ExhaustedError struct {
	LastModel string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts (last model %s): %v", ErrModelsExhausted, e.Attempts, e.LastModel, e.Err)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrModelsExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Attempt is reported to the caller before every scorer call.
type Attempt struct {
	Model      string
	ModelIndex int
	Number     int
	Total      int
}

// Backoff is reported before the runner waits to retry the same model.
type Backoff struct {
	Model   string
	Attempt int
	Delay   time.Duration
	Err     error
}

// Hooks lets the caller follow a Run. Nil fields are skipped.
type Hooks struct {
	OnAttempt func(Attempt)
	OnBackoff func(Backoff)
}

// Runner tries an ordered model list, retrying each model a bounded number
// of times with linear backoff.
type Runner struct {
	scorer         llm.Scorer
	models         []string
	attempts       int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	sleep          func(context.Context, time.Duration) error
	logger         *zap.Logger
}

type RunnerOption func(*Runner)

func WithAttempts(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.attempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) RunnerOption {
	return func(r *Runner) { r.baseDelay = d }
}

// WithAttemptTimeout bounds each scorer call. Zero leaves it to the scorer.
func WithAttemptTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.attemptTimeout = d }
}

func withSleep(fn func(context.Context, time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

func NewRunner(scorer llm.Scorer, modelList []string, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		scorer:    scorer,
		models:    append([]string(nil), modelList...),
		attempts:  DefaultAttemptsPerModel,
		baseDelay: 2 * time.Second,
		sleep:     sleepContext,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxAttempts is the upper bound on scorer calls for one Run.
func (r *Runner) MaxAttempts() int {
	return len(r.models) * r.attempts
}

// Run returns the first validated result.
func (r *Runner) Run(ctx context.Context, prompt string, hooks Hooks) (models.EvaluationResult, error) {
	if len(r.models) == 0 {
		return models.EvaluationResult{}, &ExhaustedError{Err: llm.ErrNoProvider}
	}

	var (
		lastErr   error
		lastModel string
		total     int
	)
	for i, model := range r.models {
	attempts:
		for n := 1; n <= r.attempts; n++ {
			if err := ctx.Err(); err != nil {
				return models.EvaluationResult{}, err
			}
			total++
			lastModel = model
			if hooks.OnAttempt != nil {
				hooks.OnAttempt(Attempt{Model: model, ModelIndex: i, Number: n, Total: total})
			}

			result, err := r.try(ctx, model, prompt)
			if err == nil {
				observability.IncModelAttempt(model, "success")
				return result, nil
			}
			lastErr = err

			class, reason := Classify(err)
			observability.IncModelAttempt(model, string(reason))
			r.logger.Warn("scoring attempt failed",
				zap.String("model", model),
				zap.Int("attempt", n),
				zap.String("reason", string(reason)),
				zap.Stringer("action", class),
				zap.Error(err))

			switch class {
			case Abort:
				return models.EvaluationResult{}, err
			case NextModel:
				break attempts
			}
			if n < r.attempts {
				delay := time.Duration(n) * r.baseDelay
				if hooks.OnBackoff != nil {
					hooks.OnBackoff(Backoff{Model: model, Attempt: n, Delay: delay, Err: err})
				}
				if err := r.sleep(ctx, delay); err != nil {
					return models.EvaluationResult{}, err
				}
			}
		}
	}
	return models.EvaluationResult{}, &ExhaustedError{LastModel: lastModel, Attempts: total, Err: lastErr}
}

func (r *Runner) try(ctx context.Context, model, prompt string) (models.EvaluationResult, error) {
	if r.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.attemptTimeout)
		defer cancel()
	}
	raw, err := r.scorer.Score(ctx, model, prompt)
	if err != nil {
		return models.EvaluationResult{}, err
	}
	return ParseResult(raw, model)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
