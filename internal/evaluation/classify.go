package evaluation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"hire-realtime/internal/llm"
)

// Class tells the runner what to do after a failed attempt.
type Class int

const (
	// Retry the same model after a backoff delay.
	Retry Class = iota
	// NextModel abandons the current model without further attempts.
	NextModel
	// Abort stops the whole fallback loop.
	Abort
)

func (c Class) String() string {
	switch c {
	case NextModel:
		return "next_model"
	case Abort:
		return "abort"
	default:
		return "retry"
	}
}

// Reason is a short label recorded in metrics and logs.
type Reason string

const (
	ReasonModelNotFound   Reason = "model_not_found"
	ReasonUnsupported     Reason = "unsupported"
	ReasonQuota           Reason = "quota"
	ReasonOverloaded      Reason = "overloaded"
	ReasonInvalidResponse Reason = "invalid_response"
	ReasonCanceled        Reason = "canceled"
	ReasonOther           Reason = "other"
)

// Classify maps a scorer error onto the fallback policy.
func Classify(err error) (Class, Reason) {
	switch {
	case err == nil:
		return Retry, ReasonOther
	case errors.Is(err, context.Canceled):
		return Abort, ReasonCanceled
	case errors.Is(err, ErrInvalidResponse):
		return Retry, ReasonInvalidResponse
	case errors.Is(err, llm.ErrNoProvider):
		return NextModel, ReasonModelNotFound
	}

	if status, msg, ok := providerStatus(err); ok {
		if reason, ok := classifyStatus(status, msg); ok {
			return classOf(reason), reason
		}
	}
	reason := classifyMessage(err.Error())
	return classOf(reason), reason
}

func classOf(reason Reason) Class {
	switch reason {
	case ReasonModelNotFound, ReasonUnsupported, ReasonQuota:
		return NextModel
	default:
		return Retry
	}
}

// providerStatus pulls the HTTP status and message out of the SDK error types.
func providerStatus(err error) (int, string, bool) {
	var gv genai.APIError
	if errors.As(err, &gv) {
		return gv.Code, gv.Status + " " + gv.Message, true
	}
	var gp *genai.APIError
	if errors.As(err, &gp) && gp != nil {
		return gp.Code, gp.Status + " " + gp.Message, true
	}
	var oa *openai.APIError
	if errors.As(err, &oa) {
		code, _ := oa.Code.(string)
		return oa.HTTPStatusCode, code + " " + oa.Type + " " + oa.Message, true
	}
	var or *openai.RequestError
	if errors.As(err, &or) {
		msg := ""
		if or.Err != nil {
			msg = or.Err.Error()
		}
		return or.HTTPStatusCode, msg, true
	}
	return 0, "", false
}

func classifyStatus(status int, msg string) (Reason, bool) {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusNotFound:
		return ReasonModelNotFound, true
	case status == http.StatusTooManyRequests, strings.Contains(lower, "resource_exhausted"), strings.Contains(lower, "insufficient_quota"):
		return ReasonQuota, true
	case status == http.StatusBadRequest && (strings.Contains(lower, "not supported") || strings.Contains(lower, "unsupported")):
		return ReasonUnsupported, true
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway, status == http.StatusGatewayTimeout,
		strings.Contains(lower, "unavailable"), strings.Contains(lower, "overloaded"):
		return ReasonOverloaded, true
	}
	return "", false
}

func classifyMessage(msg string) Reason {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found") && strings.Contains(lower, "model"):
		return ReasonModelNotFound
	case strings.Contains(lower, "not supported"), strings.Contains(lower, "unsupported model"):
		return ReasonUnsupported
	case strings.Contains(lower, "quota"), strings.Contains(lower, "rate limit"), strings.Contains(lower, "rate_limit"),
		strings.Contains(lower, "resource_exhausted"), strings.Contains(lower, "429"):
		return ReasonQuota
	case strings.Contains(lower, "overloaded"), strings.Contains(lower, "unavailable"), strings.Contains(lower, "503"):
		return ReasonOverloaded
	default:
		return ReasonOther
	}
}
