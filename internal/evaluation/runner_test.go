package evaluation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"hire-realtime/internal/llm"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		class  Class
		reason Reason
	}{
		{"gemini not found", fmt.Errorf("generate: %w", genai.APIError{Code: 404, Status: "NOT_FOUND", Message: "models/gemini-0 is not found"}), NextModel, ReasonModelNotFound},
		{"gemini unsupported", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "model is not supported for generateContent"}, NextModel, ReasonUnsupported},
		{"gemini quota", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, NextModel, ReasonQuota},
		{"gemini overloaded", genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "The model is overloaded"}, Retry, ReasonOverloaded},
		{"openai quota", &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota", Message: "You exceeded your current quota"}, NextModel, ReasonQuota},
		{"openai gateway", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, Retry, ReasonOverloaded},
		{"message not found", errors.New("model gpt-9 not found"), NextModel, ReasonModelNotFound},
		{"message quota", errors.New("rate limit exceeded"), NextModel, ReasonQuota},
		{"no provider", fmt.Errorf("%w: claude-x", llm.ErrNoProvider), NextModel, ReasonModelNotFound},
		{"invalid response", fmt.Errorf("%w: no JSON object", ErrInvalidResponse), Retry, ReasonInvalidResponse},
		{"other", errBoom, Retry, ReasonOther},
		{"canceled", fmt.Errorf("score: %w", context.Canceled), Abort, ReasonCanceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class, reason := Classify(tc.err)
			assert.Equal(t, tc.class, class)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestRunnerStopsAfterModelsTimesAttempts(t *testing.T) {
	scorer := &scriptedScorer{respond: func(string, int) (string, error) { return "", errBoom }}
	runner := NewRunner(scorer, []string{"a", "b", "c"}, nil, withSleep(noSleep))

	_, err := runner.Run(context.Background(), "prompt", Hooks{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelsExhausted))
	assert.True(t, errors.Is(err, errBoom))
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "c", exhausted.LastModel)
	assert.Equal(t, 9, exhausted.Attempts)
	assert.Len(t, scorer.Calls(), runner.MaxAttempts())
}

func TestRunnerAdvancesOnQuotaWithoutRetry(t *testing.T) {
	scorer := &scriptedScorer{respond: func(model string, _ int) (string, error) {
		if model == "a" {
			return "", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}
		}
		return validResponse, nil
	}}
	runner := NewRunner(scorer, []string{"a", "b"}, nil, withSleep(noSleep))

	var attempts []Attempt
	result, err := runner.Run(context.Background(), "prompt", Hooks{OnAttempt: func(a Attempt) { attempts = append(attempts, a) }})

	require.NoError(t, err)
	assert.Equal(t, "b", result.Model)
	assert.Equal(t, []string{"a", "b"}, scorer.Calls())
	require.Len(t, attempts, 2)
	assert.Equal(t, Attempt{Model: "b", ModelIndex: 1, Number: 1, Total: 2}, attempts[1])
}

func TestRunnerRetriesInvalidResponsesWithLinearBackoff(t *testing.T) {
	scorer := &scriptedScorer{respond: func(_ string, call int) (string, error) {
		if call < 3 {
			return "sorry, I can't help with that", nil
		}
		return validResponse, nil
	}}
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	runner := NewRunner(scorer, []string{"a", "b"}, nil, WithBaseDelay(time.Second), withSleep(sleep))
	var backoffs []Backoff

	result, err := runner.Run(context.Background(), "prompt", Hooks{OnBackoff: func(b Backoff) { backoffs = append(backoffs, b) }})

	require.NoError(t, err)
	assert.Equal(t, "a", result.Model)
	assert.Equal(t, []string{"a", "a", "a"}, scorer.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	require.Len(t, backoffs, 2)
	assert.Equal(t, "a", backoffs[1].Model)
	assert.Equal(t, 2, backoffs[1].Attempt)
	assert.Equal(t, 2*time.Second, backoffs[1].Delay)
	assert.ErrorIs(t, backoffs[0].Err, ErrInvalidResponse)
}

func TestRunnerSkipsBackoffBetweenModels(t *testing.T) {
	scorer := &scriptedScorer{respond: func(string, int) (string, error) { return "", errBoom }}
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	runner := NewRunner(scorer, []string{"a", "b"}, nil, WithAttempts(2), WithBaseDelay(time.Second), withSleep(sleep))

	_, err := runner.Run(context.Background(), "prompt", Hooks{})

	require.Error(t, err)
	assert.Len(t, scorer.Calls(), 4)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, delays)
}

func TestRunnerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scorer := &scriptedScorer{respond: func(string, int) (string, error) {
		cancel()
		return "", errBoom
	}}
	runner := NewRunner(scorer, []string{"a", "b"}, nil)

	_, err := runner.Run(ctx, "prompt", Hooks{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, scorer.Calls(), 1)
}

func TestRunnerWithoutModels(t *testing.T) {
	runner := NewRunner(&scriptedScorer{}, nil, nil)
	_, err := runner.Run(context.Background(), "prompt", Hooks{})
	assert.ErrorIs(t, err, ErrModelsExhausted)
	assert.Equal(t, 0, runner.MaxAttempts())
}
