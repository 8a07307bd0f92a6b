// Package llm wraps the language-model services used to explain and check
// citation relevance. Every capability has a no-op default so the evaluator
// works without any external service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paper-auditor/config"

	"github.com/google/generative-ai-go/genai"
	"github.com/openai/openai-go/v3"
	openaiopt "github.com/openai/openai-go/v3/option"
	"google.golang.org/api/option"
)

// ErrUnavailable is returned when no language model is configured.
var ErrUnavailable = errors.New("language model unavailable")

// Client sends one prompt to a chat model and returns the text answer.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
	Close() error
}

// OpenAI-compatible endpoints for providers other than OpenAI itself.
var compatibleBaseURLs = map[string]string{
	"deepseek":  "https://api.deepseek.com/v1",
	"anthropic": "https://api.anthropic.com/v1/",
}

const temperature = 0.1

// NewClient creates the client for an allow-listed model.
func NewClient(ctx context.Context, cfg *config.Config, spec config.ModelSpec) (Client, error) {
	apiKey := cfg.APIKeyFor(spec.Provider)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no API key for %s", ErrUnavailable, spec.Provider)
	}
	switch spec.Provider {
	case "gemini":
		return NewGeminiClient(ctx, apiKey, spec.Model)
	case "openai", "deepseek", "anthropic":
		return NewOpenAIClient(apiKey, compatibleBaseURLs[spec.Provider], spec.Model), nil
	}
	return nil, fmt.Errorf("%w: unsupported provider %q", ErrUnavailable, spec.Provider)
}

// OpenAIClient talks to OpenAI or any endpoint speaking its chat API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a chat client. An empty baseURL uses OpenAI.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	opts := []openaiopt.RequestOption{openaiopt.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(baseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: model}
}

func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", c.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion with %s: no choices", c.model)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Close() error { return nil }

// GeminiClient talks to Google Gemini.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini client for model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(temperature)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return textOf(resp)
}

func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func textOf(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", errors.New("no content in response")
	}
	var parts []string
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("no text parts in response")
	}
	return strings.TrimSpace(strings.Join(parts, "")), nil
}
