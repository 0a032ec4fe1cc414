package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedScorer string

func (f fixedScorer) Score(_ context.Context, model, _ string) (string, error) {
	return string(f) + ":" + model, nil
}

func TestRouterPicksProviderByPrefix(t *testing.T) {
	r := NewRouter(fixedScorer("gemini")).Route("gpt-", fixedScorer("openai"))

	out, err := r.Score(context.Background(), "gpt-4o-mini", "p")
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o-mini", out)

	out, err = r.Score(context.Background(), "gemini-2.5-flash", "p")
	require.NoError(t, err)
	assert.Equal(t, "gemini:gemini-2.5-flash", out)

	_, err = NewRouter(nil).Score(context.Background(), "x", "p")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestOpenAIScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": " {\"ok\":true} "}}},
		})
	}))
	defer srv.Close()

	client := NewOpenAI("test-key", srv.URL+"/v1", 512, 0.2)
	out, err := client.Score(context.Background(), "gpt-4o-mini", "grade this")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}
