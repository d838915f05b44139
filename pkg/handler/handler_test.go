package handler

import (
	"context"
	"testing"

	"wayfarer/pkg/api"
	"wayfarer/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEngine struct {
	msg     *api.UnifiedMessage
	history *llm.ChatHistory
	debugID any
}

func (e *recordingEngine) HandleMessage(ctx context.Context, msg *api.UnifiedMessage, history *llm.ChatHistory) llm.Message {
	e.msg = msg
	e.history = history
	e.debugID = ctx.Value(llm.DebugDirContextKey)
	return llm.NewAssistantMessage("ok")
}

func (e *recordingEngine) SetResponder(responder api.MessageResponder) {}
func (e *recordingEngine) SetToolRegistry(tr api.ToolRegistry)         {}
func (e *recordingEngine) RegisterTool(tools ...api.Tool)              {}

func TestOnMessageResolvesSession(t *testing.T) {
	engine := &recordingEngine{}
	sessions := llm.NewSessionManager("")
	h := NewChatHandler(engine, sessions)

	msg := &api.UnifiedMessage{
		Session: api.SessionContext{ChannelID: "telegram", ChatID: "42", Username: "alice"},
		Content: "plan me a weekend in Lisbon",
	}
	h.OnMessage(msg)

	require.NotNil(t, engine.msg)
	assert.Equal(t, "plan me a weekend in Lisbon", engine.msg.Content)

	// A debug ID is stamped and threaded through the context.
	assert.NotEmpty(t, msg.DebugID)
	assert.Equal(t, msg.DebugID, engine.debugID)

	// The history handed to the engine is the session's own.
	expected, err := sessions.GetHistory("telegram_42")
	require.NoError(t, err)
	assert.Same(t, expected, engine.history)
}

func TestOnMessageKeepsExistingDebugID(t *testing.T) {
	engine := &recordingEngine{}
	h := NewChatHandler(engine, llm.NewSessionManager(""))

	msg := &api.UnifiedMessage{
		Session: api.SessionContext{ChannelID: "web", ChatID: "global"},
		DebugID: "preset",
	}
	h.OnMessage(msg)

	assert.Equal(t, "preset", msg.DebugID)
	assert.Equal(t, "preset", engine.debugID)
}
