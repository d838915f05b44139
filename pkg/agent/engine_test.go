package agent

import (
	"context"
	"strings"
	"testing"

	"wayfarer/pkg/api"
	"wayfarer/pkg/config"
	"wayfarer/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//----------------------------------------------------------------
// Test doubles
//----------------------------------------------------------------

// scriptedLLM replays one canned response per StreamChat call.
type scriptedLLM struct {
	turns []llm.StreamChunk // one entry = final payload of one call
	calls int
	seen  [][]llm.Message
}

func (s *scriptedLLM) Provider() string { return "scripted" }

func (s *scriptedLLM) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.StreamChunk, error) {
	s.seen = append(s.seen, messages)
	if s.calls >= len(s.turns) {
		panic("scriptedLLM: no more turns scripted")
	}
	turn := s.turns[s.calls]
	s.calls++

	ch := make(chan llm.StreamChunk, 2)
	ch <- turn
	ch <- llm.NewFinalChunk(llm.StopReasonStop, &llm.LLMUsage{TotalTokens: 10, StopReason: llm.StopReasonStop})
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) IsTransientError(err error) bool { return false }
func (s *scriptedLLM) SetDebug(enabled bool)           {}

// fakeResponder satisfies api.MessageResponder and records all traffic.
type fakeResponder struct {
	replies  []string
	signals  []string
	streamed []llm.ContentBlock
}

func (r *fakeResponder) SendReply(session api.SessionContext, content string) error {
	r.replies = append(r.replies, content)
	return nil
}

func (r *fakeResponder) StreamReply(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	for b := range blocks {
		r.streamed = append(r.streamed, b)
	}
	return nil
}

func (r *fakeResponder) SendSignal(session api.SessionContext, signal string) error {
	r.signals = append(r.signals, signal)
	return nil
}

// echoTool records invocations and returns a fixed payload.
type echoTool struct {
	name     string
	lastArgs map[string]any
	calls    int
}

func (t *echoTool) Name() string                 { return t.name }
func (t *echoTool) Description() string          { return "test tool" }
func (t *echoTool) Parameters() map[string]any   { return map[string]any{"location": map[string]any{"type": "string"}} }
func (t *echoTool) RequiredParameters() []string { return []string{"location"} }

func (t *echoTool) Execute(ctx context.Context, args map[string]any) (*api.ToolResult, error) {
	t.calls++
	t.lastArgs = args
	return &api.ToolResult{
		Content: []api.ContentBlock{{Type: "text", Text: `{"hotels":["Grand Hotel"]}`}},
	}, nil
}

func newTestEngine(client llm.LLMClient, t *testing.T) (*AgentEngine, *fakeResponder) {
	t.Helper()
	sysCfg := config.DefaultSystemConfig()
	sysCfg.RetryDelayMs = 1
	sysCfg.ThinkingInitDelayMs = 1

	engine := NewAgentEngine(client, &config.Config{}, sysCfg, llm.NewSessionManager(""))
	responder := &fakeResponder{}
	engine.SetResponder(responder)
	return engine, responder
}

func userMessage(content string) *api.UnifiedMessage {
	return &api.UnifiedMessage{
		Session: api.SessionContext{ChannelID: "web", ChatID: "global", Username: "WebUser"},
		Content: content,
	}
}

//----------------------------------------------------------------
// Tests
//----------------------------------------------------------------

func TestHandleMessagePlainAnswer(t *testing.T) {
	client := &scriptedLLM{turns: []llm.StreamChunk{
		llm.NewTextChunk("Kyoto is lovely in autumn."),
	}}
	engine, responder := newTestEngine(client, t)
	engine.RegisterTool(&echoTool{name: "find_hotels"})

	history := llm.NewChatHistory()
	result := engine.HandleMessage(context.Background(), userMessage("when should I visit Kyoto?"), history)

	assert.Equal(t, "Kyoto is lovely in autumn.", result.GetTextContent())
	assert.Equal(t, "Kyoto is lovely in autumn.", responder.streamed[0].Text)

	// system + user + assistant
	msgs := history.GetMessages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].GetTextContent(), "Wayfarer")

	// The planner answers from what it is given rather than interviewing
	// the traveler.
	assert.Contains(t, msgs[0].GetTextContent(), "Never ask the traveler questions")
	assert.Contains(t, msgs[0].GetTextContent(), "Decide from the information already given")
}

func TestHandleMessageRunsToolLoop(t *testing.T) {
	client := &scriptedLLM{turns: []llm.StreamChunk{
		{ToolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Name:     "find_hotels",
			Function: llm.FunctionCall{Name: "find_hotels", Arguments: `{"location":"Kyoto"}`},
		}}},
		llm.NewTextChunk("The Grand Hotel looks best."),
	}}
	engine, responder := newTestEngine(client, t)
	tool := &echoTool{name: "find_hotels"}
	engine.RegisterTool(tool)

	history := llm.NewChatHistory()
	result := engine.HandleMessage(context.Background(), userMessage("find hotels in Kyoto"), history)

	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, map[string]any{"location": "Kyoto"}, tool.lastArgs)
	assert.Equal(t, "The Grand Hotel looks best.", result.GetTextContent())
	assert.Contains(t, responder.signals, "role:system")

	// The tool result becomes a tool-role turn between the two model calls.
	roles := make([]string, 0)
	for _, m := range history.GetMessages() {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "assistant"}, roles)

	// The second model call sees the tool output.
	require.Equal(t, 2, client.calls)
	secondInput := client.seen[1]
	last := secondInput[len(secondInput)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Contains(t, last.GetTextContent(), "Grand Hotel")
}

func TestHandleMessageStripsFunctionsPrefix(t *testing.T) {
	client := &scriptedLLM{turns: []llm.StreamChunk{
		{ToolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Name:     "functions.find_hotels",
			Function: llm.FunctionCall{Name: "functions.find_hotels", Arguments: `{"location":"Kyoto"}`},
		}}},
		llm.NewTextChunk("done"),
	}}
	engine, _ := newTestEngine(client, t)
	tool := &echoTool{name: "find_hotels"}
	engine.RegisterTool(tool)

	engine.HandleMessage(context.Background(), userMessage("hotels please"), llm.NewChatHistory())
	assert.Equal(t, 1, tool.calls)
}

func TestSlashCommandExecutesTool(t *testing.T) {
	engine, responder := newTestEngine(&scriptedLLM{}, t)
	tool := &echoTool{name: "find_hotels"}
	engine.RegisterTool(tool)

	result := engine.HandleMessage(context.Background(), userMessage("/find_hotels Kyoto"), llm.NewChatHistory())

	assert.Equal(t, 1, tool.calls)
	// Bare text input maps to the first required parameter.
	assert.Equal(t, map[string]any{"location": "Kyoto"}, tool.lastArgs)
	assert.Contains(t, result.GetTextContent(), "Grand Hotel")
	require.NotEmpty(t, responder.replies)
	assert.Contains(t, responder.replies[0], "find_hotels")
}

func TestSlashCommandFuzzyName(t *testing.T) {
	engine, _ := newTestEngine(&scriptedLLM{}, t)
	tool := &echoTool{name: "find_hotels"}
	engine.RegisterTool(tool)

	// "/hotels Kyoto" resolves to find_hotels.
	engine.HandleMessage(context.Background(), userMessage("/hotels Kyoto"), llm.NewChatHistory())
	assert.Equal(t, 1, tool.calls)
}

func TestSlashCommandJSONArgs(t *testing.T) {
	engine, _ := newTestEngine(&scriptedLLM{}, t)
	tool := &echoTool{name: "find_activities"}
	engine.RegisterTool(tool)

	engine.HandleMessage(context.Background(),
		userMessage(`/find_activities {"location":"Kyoto","keywords":["temple"]}`), llm.NewChatHistory())

	require.Equal(t, 1, tool.calls)
	assert.Equal(t, "Kyoto", tool.lastArgs["location"])
}

func TestSlashNotoolsBare(t *testing.T) {
	client := &scriptedLLM{turns: []llm.StreamChunk{
		llm.NewTextChunk("Happy to keep chatting."),
	}}
	engine, responder := newTestEngine(client, t)
	engine.RegisterTool(&echoTool{name: "find_hotels"})

	history := llm.NewChatHistory()
	history.Add(llm.NewUserMessage("tell me about Kyoto"))

	result := engine.HandleMessage(context.Background(), userMessage("/notools"), history)

	assert.Equal(t, "Happy to keep chatting.", result.GetTextContent())
	for _, r := range responder.replies {
		assert.NotContains(t, r, "Format error")
	}
}

func TestSlashNotoolsCarriesQuestion(t *testing.T) {
	client := &scriptedLLM{turns: []llm.StreamChunk{
		llm.NewTextChunk("Kyoto, plainly."),
	}}
	engine, _ := newTestEngine(client, t)
	engine.RegisterTool(&echoTool{name: "find_hotels"})

	history := llm.NewChatHistory()
	engine.HandleMessage(context.Background(), userMessage("/notools where should I go?"), history)

	require.Equal(t, 1, client.calls)
	sent := client.seen[0]
	assert.Equal(t, "user", sent[len(sent)-1].Role)
	assert.Equal(t, "where should I go?", sent[len(sent)-1].GetTextContent())
}

func TestSlashCommandUnknownTool(t *testing.T) {
	engine, responder := newTestEngine(&scriptedLLM{}, t)
	engine.RegisterTool(&echoTool{name: "find_hotels"})

	result := engine.HandleMessage(context.Background(), userMessage("/teleport Mars"), llm.NewChatHistory())

	assert.Empty(t, result.Content)
	require.NotEmpty(t, responder.replies)
	assert.Contains(t, responder.replies[0], "Tool not found")
}

func TestEnsureSystemPromptInjectsSummary(t *testing.T) {
	engine, _ := newTestEngine(&scriptedLLM{}, t)

	history := llm.NewChatHistory()
	history.SetSummary("Traveler wants 3 days in Kyoto, likes temples.")
	engine.ensureSystemPrompt(history)

	system := history.GetMessages()[0].GetTextContent()
	assert.Contains(t, system, "[CONVERSATION SUMMARY]")
	assert.Contains(t, system, "likes temples")
}

func TestMaybeSummarizeTruncatesHistory(t *testing.T) {
	// First scripted turn answers the user, second produces the summary.
	client := &scriptedLLM{turns: []llm.StreamChunk{
		llm.NewTextChunk("Sure."),
		llm.NewTextChunk("Traveler is planning Kyoto in autumn."),
	}}
	engine, _ := newTestEngine(client, t)
	engine.RegisterTool(&echoTool{name: "find_hotels"})
	engine.sysCfg.HistorySummarizeThreshold = 6
	engine.sysCfg.HistoryKeepRecentCount = 2

	history := llm.NewChatHistory()
	for i := 0; i < 6; i++ {
		history.Add(llm.NewUserMessage("filler question"))
		history.Add(llm.NewAssistantMessage("filler answer"))
	}

	engine.HandleMessage(context.Background(), userMessage("one more thing"), history)

	assert.Equal(t, "Traveler is planning Kyoto in autumn.", history.GetSummary())
	// system message + the two most recent turns survive
	assert.Equal(t, 3, history.Len())
}

func TestSummarizeContentPreview(t *testing.T) {
	msg := llm.NewAssistantMessage(strings.Repeat("a", 150))
	msg.AddContentBlock(llm.NewThinkingBlock("pondering"))

	hasContent, hasThinking, preview := SummarizeContent(msg)
	assert.True(t, hasContent)
	assert.True(t, hasThinking)
	assert.Equal(t, strings.Repeat("a", 100)+"...", preview)
}

func TestConvertToolResultEmpty(t *testing.T) {
	blocks := ConvertToolResult(&api.ToolResult{})
	require.Len(t, blocks, 1)
	assert.Equal(t, "(No output)", blocks[0].Text)
}
