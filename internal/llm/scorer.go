package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("model returned no text")
	ErrNoProvider    = errors.New("no provider configured for model")
)

// Scorer sends a prompt to a named model and returns its raw text.
type Scorer interface {
	Score(ctx context.Context, model, prompt string) (string, error)
}

// Router picks a provider by model-name prefix, so one fallback list can
// mix vendors.
type Router struct {
	routes   []route
	fallback Scorer
}

type route struct {
	prefix string
	scorer Scorer
}

func NewRouter(fallback Scorer) *Router {
	return &Router{fallback: fallback}
}

// Route sends models starting with prefix to scorer. First match wins.
func (r *Router) Route(prefix string, scorer Scorer) *Router {
	r.routes = append(r.routes, route{prefix: prefix, scorer: scorer})
	return r
}

func (r *Router) Score(ctx context.Context, model, prompt string) (string, error) {
	for _, rt := range r.routes {
		if strings.HasPrefix(model, rt.prefix) {
			return rt.scorer.Score(ctx, model, prompt)
		}
	}
	if r.fallback == nil {
		return "", fmt.Errorf("%w: %s", ErrNoProvider, model)
	}
	return r.fallback.Score(ctx, model, prompt)
}
