package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json handles all JSON work inside package llm, uniformly via json-iterator.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMUsage holds normalized token accounting for a single generation.
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	PromptDetail     string `json:"prompt_detail,omitempty"`
	CompletionDetail string `json:"completion_detail,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage emits the usage statistics of a completed generation.
func LogUsage(model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.Info("LLM usage",
		"model", model,
		"prompt", usage.PromptTokens,
		"completion", usage.CompletionTokens,
		"total", usage.TotalTokens,
		"thoughts", usage.ThoughtsTokens,
		"cached", usage.CachedTokens,
		"stop_reason", usage.StopReason,
	)
}

// Tool describes the metadata a tool exposes to the LLM for function
// calling. Each provider client converts this into its native schema.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema properties of the argument object.
	Parameters() map[string]any
	RequiredParameters() []string
}

// ToolSchema assembles the standard JSON Schema object for a tool's
// arguments, shared by all provider conversions.
func ToolSchema(t Tool) map[string]any {
	required := t.RequiredParameters()
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": t.Parameters(),
		"required":   required,
	}
}

// LLMClient is the provider-agnostic streaming chat interface.
type LLMClient interface {
	// Provider returns the provider identifier ("gemini", "openai", "ollama").
	Provider() string

	// StreamChat starts a streaming generation over the given history and
	// returns a channel of incremental chunks. The tools slice may be nil.
	StreamChat(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamChunk, error)

	// IsTransientError reports whether an error is worth retrying
	// (rate limits, overload, transient network failures).
	IsTransientError(err error) bool

	// SetDebug toggles raw chunk capture for this client.
	SetDebug(enabled bool)
}

// FallbackClient chains multiple clients and tries them in order.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

// Provider implements LLMClient. The fallback group reports the provider
// of its first (preferred) client.
func (f *FallbackClient) Provider() string {
	if len(f.Clients) > 0 {
		return f.Clients[0].Provider()
	}
	return "fallback"
}

// SetDebug propagates the debug toggle to every wrapped client.
func (f *FallbackClient) SetDebug(enabled bool) {
	for _, c := range f.Clients {
		c.SetDebug(enabled)
	}
}

// StreamChat tries each wrapped client in order, retrying transient
// failures per client before moving to the next one.
func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamChunk, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.Warn("Previous provider failed, trying fallback", "index", i+1)
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.Info("Retrying provider", "index", i+1, "attempt", fmt.Sprintf("%d/%d", retry, maxRetries))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages, tools)
			if err == nil {
				return ch, nil
			}

			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.Warn("Provider failed with transient error, retrying", "index", i+1, "error", err)
				continue
			}

			slog.Error("Provider failed", "index", i+1, "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed. Last error: %v", lastErr)
}

// IsTransientError implements LLMClient. A FallbackClient error means every
// wrapped client already exhausted its retries, so it is not transient.
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
