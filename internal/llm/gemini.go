package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini scores prompts through the Gemini API.
type Gemini struct {
	client      *genai.Client
	temperature float32
	maxTokens   int32
}

func NewGemini(ctx context.Context, apiKey string, temperature float32, maxTokens int32) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, temperature: temperature, maxTokens: maxTokens}, nil
}

// Score returns API errors unwrapped so callers can classify them.
func (g *Gemini) Score(ctx context.Context, model, prompt string) (string, error) {
	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  g.maxTokens,
		ResponseMIMEType: "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
