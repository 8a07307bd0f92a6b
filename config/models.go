package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrModelNotAllowed is returned for model identifiers outside the allow-list.
var ErrModelNotAllowed = errors.New("model not allowed")

// ModelSpec is one allowed provider/model pair for the LLM-assisted evaluator.
type ModelSpec struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ID returns the canonical "provider/model" form.
func (m ModelSpec) ID() string {
	return m.Provider + "/" + m.Model
}

var allowedModels = map[string][]string{
	"openai":    {"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini"},
	"anthropic": {"claude-3-sonnet-20240229", "claude-3-opus-20240229", "claude-3-haiku-20240307", "claude-3-5-sonnet-20241022"},
	"deepseek":  {"deepseek-chat", "deepseek-coder"},
	"gemini":    {"gemini-1.5-flash", "gemini-1.5-pro", "gemini-2.0-flash"},
}

// AllowedModels lists every allowed model sorted by provider and model.
func AllowedModels() []ModelSpec {
	var out []ModelSpec
	for provider, models := range allowedModels {
		for _, m := range models {
			out = append(out, ModelSpec{Provider: provider, Model: m})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// ResolveModel validates id against the allow-list. Both "provider/model"
// and a bare model name are accepted.
func ResolveModel(id string) (ModelSpec, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ModelSpec{}, fmt.Errorf("%w: empty model id", ErrModelNotAllowed)
	}
	provider, model, qualified := strings.Cut(id, "/")
	if !qualified {
		model = provider
		provider = ""
	}
	for p, models := range allowedModels {
		if provider != "" && provider != p {
			continue
		}
		for _, m := range models {
			if m == model {
				return ModelSpec{Provider: p, Model: m}, nil
			}
		}
	}
	return ModelSpec{}, fmt.Errorf("%w: %q", ErrModelNotAllowed, id)
}

// APIKeyFor returns the configured credential for an LLM provider.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "deepseek":
		return c.DeepSeekAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}
