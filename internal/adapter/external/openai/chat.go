// Package openai connects to OpenAI-compatible APIs: chat completion for the
// agents (OpenAI, Groq) and speech-to-text for voice questions.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"agenthub/internal/shared"
)

// ChatConfig describes one OpenAI-compatible chat endpoint.
type ChatConfig struct {
	// Provider names the endpoint in errors ("openai", "groq").
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// HTTPClient routes the SDK through the shared client (logging, transient retries).
	HTTPClient *http.Client
}

// NewChatModel builds an eino tool-calling chat model. A missing API key
// yields a KindUnavailable error so the dashboard can show the agent as
// not configured instead of failing at request time.
func NewChatModel(ctx context.Context, cfg ChatConfig) (model.ToolCallingChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s api key not set: %w", cfg.Provider, shared.ErrUnavailable)
	}
	mc := &einoopenai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		mc.Temperature = &t
	}
	if cfg.MaxTokens > 0 {
		n := cfg.MaxTokens
		mc.MaxTokens = &n
	}
	cm, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, shared.Wrapf(err, "%s chat model", cfg.Provider)
	}
	return cm, nil
}
