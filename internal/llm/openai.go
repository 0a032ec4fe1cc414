package llm

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are an expert technical recruiter. Reply with a single JSON object and nothing else."

// OpenAI scores prompts through the chat completions API.
type OpenAI struct {
	client      *openai.Client
	maxTokens   int
	temperature float32
}

// NewOpenAI builds a client; baseURL may point at any compatible gateway.
func NewOpenAI(apiKey, baseURL string, maxTokens int, temperature float32) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(config),
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (o *OpenAI) Score(ctx context.Context, model, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
