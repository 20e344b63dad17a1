package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// LLMClient is the interface for code-generating model calls.
type LLMClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// OpenAICompatClient works with any OpenAI-compatible API.
type OpenAICompatClient struct {
	client *openai.Client
	model  string
}

// NewClient creates an LLM client for the given endpoint.
func NewClient(baseURL, apiKey, model string) *OpenAICompatClient {
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &OpenAICompatClient{
		client: &client,
		model:  model,
	}
}

// Complete sends one system+user exchange and returns the model's text.
func (c *OpenAICompatClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	}

	var completion *openai.ChatCompletion
	var err error
	for attempt := range 3 {
		completion, err = c.client.Chat.Completions.New(ctx, params)
		if err == nil {
			break
		}
		if !strings.Contains(err.Error(), "429") || attempt == 2 {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		wait := time.Duration(2<<attempt) * time.Second
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", fmt.Errorf("chat completion: %w", ctx.Err())
		}
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}
