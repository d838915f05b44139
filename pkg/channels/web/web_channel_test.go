package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wayfarer/pkg/api"
	"wayfarer/pkg/llm"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingContext struct {
	mu       sync.Mutex
	messages []*api.UnifiedMessage
}

func (c *capturingContext) OnMessage(channelID string, msg *api.UnifiedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *capturingContext) SendReply(session api.SessionContext, content string) error { return nil }
func (c *capturingContext) StreamReply(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	return nil
}
func (c *capturingContext) SendSignal(session api.SessionContext, signal string) error { return nil }

func (c *capturingContext) wait(t *testing.T) *api.UnifiedMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.messages) > 0 {
			msg := c.messages[0]
			c.mu.Unlock()
			return msg
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no message received over websocket")
	return nil
}

func dialTestChannel(t *testing.T, ctx api.ChannelContext) (*WebChannel, *websocket.Conn) {
	t.Helper()
	channel := NewWebChannel(WebConfig{Port: 0}, llm.NewSessionManager(""))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		channel.handleWebSocket(w, r, ctx)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return channel, conn
}

func TestWebSocketPlainTextMessage(t *testing.T) {
	ctx := &capturingContext{}
	_, conn := dialTestChannel(t, ctx)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("plan a trip to Porto")))

	msg := ctx.wait(t)
	assert.Equal(t, "plan a trip to Porto", msg.Content)
	assert.Equal(t, "web", msg.Session.ChannelID)
	assert.Equal(t, "global", msg.Session.ChatID)
	assert.NotEmpty(t, msg.DebugID)
}

func TestWebSocketJSONMessage(t *testing.T) {
	ctx := &capturingContext{}
	_, conn := dialTestChannel(t, ctx)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"text":"three days in Kyoto","images":[]}`)))

	msg := ctx.wait(t)
	assert.Equal(t, "three days in Kyoto", msg.Content)
	assert.Empty(t, msg.Files)
}

func TestWebSocketStreamAndSignal(t *testing.T) {
	ctx := &capturingContext{}
	channel, conn := dialTestChannel(t, ctx)

	// The connection registers under its remote address.
	var userID string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		channel.mu.RLock()
		for id := range channel.connections {
			userID = id
		}
		channel.mu.RUnlock()
		if userID != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, userID)

	session := api.SessionContext{ChannelID: "web", UserID: userID, ChatID: "global"}

	require.NoError(t, channel.SendSignal(session, "thinking"))

	blocks := make(chan llm.ContentBlock, 2)
	blocks <- llm.NewTextBlock("Day 1: arrive.")
	close(blocks)
	require.NoError(t, channel.Stream(session, blocks))

	read := func() map[string]any {
		var decoded map[string]any
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &decoded))
		return decoded
	}

	signal := read()
	assert.Equal(t, "signal", signal["type"])
	assert.Equal(t, "thinking", signal["value"])

	text := read()
	assert.Equal(t, "text", text["type"])
	assert.Equal(t, "Day 1: arrive.", text["text"])

	done := read()
	assert.Equal(t, "done", done["type"])
}

func TestSendToDisconnectedUser(t *testing.T) {
	channel := NewWebChannel(WebConfig{}, llm.NewSessionManager(""))

	err := channel.Send(api.SessionContext{UserID: "ghost"}, "hello?")
	assert.Error(t, err)
}
