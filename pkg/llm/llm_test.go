package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient fails a fixed number of times before succeeding.
type scriptedClient struct {
	name      string
	failures  int
	transient bool
	calls     int
}

func (s *scriptedClient) Provider() string { return s.name }

func (s *scriptedClient) StreamChat(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamChunk, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("upstream unavailable")
	}
	ch := make(chan StreamChunk, 2)
	ch <- NewTextChunk("ok from " + s.name)
	ch <- NewFinalChunk(StopReasonStop, nil)
	close(ch)
	return ch, nil
}

func (s *scriptedClient) IsTransientError(err error) bool { return s.transient }
func (s *scriptedClient) SetDebug(enabled bool)           {}

func TestFallbackClientRetriesTransient(t *testing.T) {
	primary := &scriptedClient{name: "gemini", failures: 2, transient: true}
	f := &FallbackClient{
		Clients:    []LLMClient{primary},
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}

	ch, err := f.StreamChat(context.Background(), []Message{NewUserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, primary.calls)

	first := <-ch
	assert.Equal(t, "ok from gemini", first.ContentBlocks[0].Text)
}

func TestFallbackClientMovesToNextProvider(t *testing.T) {
	// Non-transient errors skip remaining retries and fall through.
	primary := &scriptedClient{name: "gemini", failures: 5, transient: false}
	backup := &scriptedClient{name: "ollama"}
	f := &FallbackClient{
		Clients:    []LLMClient{primary, backup},
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}

	ch, err := f.StreamChat(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)

	first := <-ch
	assert.Equal(t, "ok from ollama", first.ContentBlocks[0].Text)
}

func TestFallbackClientAllFail(t *testing.T) {
	f := &FallbackClient{
		Clients:    []LLMClient{&scriptedClient{name: "gemini", failures: 10, transient: true}},
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}

	_, err := f.StreamChat(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all fallback providers failed")
	assert.False(t, f.IsTransientError(err))
}

func TestFallbackClientProvider(t *testing.T) {
	f := &FallbackClient{Clients: []LLMClient{&scriptedClient{name: "openai"}}}
	assert.Equal(t, "openai", f.Provider())
	assert.Equal(t, "fallback", (&FallbackClient{}).Provider())
}

func TestToolSchema(t *testing.T) {
	tool := fakeSchemaTool{}
	schema := ToolSchema(tool)

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"location"}, schema["required"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "location")
}

type fakeSchemaTool struct{}

func (fakeSchemaTool) Name() string        { return "geocode_location" }
func (fakeSchemaTool) Description() string { return "resolves a place name" }
func (fakeSchemaTool) Parameters() map[string]any {
	return map[string]any{"location": map[string]any{"type": "string"}}
}
func (fakeSchemaTool) RequiredParameters() []string { return []string{"location"} }

func TestMessageTextHelpers(t *testing.T) {
	msg := NewAssistantMessage("Day 1: ")
	msg.AddContentBlock(NewThinkingBlock("consider the season"))
	msg.AddContentBlock(NewTextBlock("visit Fushimi Inari."))

	assert.Equal(t, "Day 1: visit Fushimi Inari.", msg.GetTextContent())
	assert.Equal(t, "consider the season", msg.GetThinkingContent())
	assert.False(t, msg.HasImages())

	msg.AddContentBlock(NewImageBlockFromURL("https://example.com/map.png", "image/png"))
	assert.True(t, msg.HasImages())
}
