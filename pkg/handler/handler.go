package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wayfarer/pkg/api"
	"wayfarer/pkg/llm"
	"wayfarer/pkg/utils"
)

// ChatHandler is a thin routing layer between the gateway and the agent
// engine. It resolves the per-session history, stamps debug metadata, and
// delegates the actual reasoning to the engine.
// It implements api.MessageProcessor and api.ResponderAware.
type ChatHandler struct {
	engine    api.AgentEngine
	sessions  *llm.SessionManager
	responder api.MessageResponder
}

// NewChatHandler creates a handler bound to the given engine and session store.
func NewChatHandler(engine api.AgentEngine, sessions *llm.SessionManager) *ChatHandler {
	return &ChatHandler{
		engine:   engine,
		sessions: sessions,
	}
}

// SetResponder implements api.ResponderAware.
func (h *ChatHandler) SetResponder(responder api.MessageResponder) {
	h.responder = responder
}

// OnMessage is the primary entry point for processing incoming user messages.
// It resolves the session's chat history, injects the debug tracking ID into
// the context, and hands the message to the engine.
func (h *ChatHandler) OnMessage(msg *api.UnifiedMessage) {
	if msg.DebugID == "" {
		msg.DebugID = utils.GenerateID()
	}
	start := time.Now()

	slog.Info("Message received",
		"channel", msg.Session.ChannelID,
		"user", msg.Session.Username,
		"content", msg.Content,
		"files", len(msg.Files),
		"debug_id", msg.DebugID,
	)

	sessionID := fmt.Sprintf("%s_%s", msg.Session.ChannelID, msg.Session.ChatID)
	history, err := h.sessions.GetHistory(sessionID)
	if err != nil {
		slog.Error("Failed to load session history", "session", sessionID, "error", err)
		if h.responder != nil {
			h.responder.SendReply(msg.Session, "❌ Failed to load conversation history, please try again.")
		}
		return
	}

	// Debug tracking ID groups all agent loop logs for this request
	ctx := context.WithValue(context.Background(), llm.DebugDirContextKey, msg.DebugID)

	h.engine.HandleMessage(ctx, msg, history)

	slog.Info("Agent loop finished", "duration", time.Since(start).String(), "debug_id", msg.DebugID)
}
