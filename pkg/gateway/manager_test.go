package gateway

import (
	"errors"
	"testing"

	"wayfarer/pkg/api"
	"wayfarer/pkg/llm"
	"wayfarer/pkg/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records everything routed to it.
type fakeChannel struct {
	id       string
	started  bool
	stopped  bool
	sent     []string
	signals  []string
	streamed []llm.ContentBlock
	startErr error
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Start(ctx api.ChannelContext) error {
	c.started = true
	return c.startErr
}

func (c *fakeChannel) Stop() error {
	c.stopped = true
	return nil
}

func (c *fakeChannel) Send(session api.SessionContext, content string) error {
	c.sent = append(c.sent, content)
	return nil
}

func (c *fakeChannel) Stream(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	for b := range blocks {
		c.streamed = append(c.streamed, b)
	}
	return nil
}

func (c *fakeChannel) SendSignal(session api.SessionContext, signal string) error {
	c.signals = append(c.signals, signal)
	return nil
}

// plainChannel has no signal support.
type plainChannel struct{ id string }

func (c *plainChannel) ID() string                           { return c.id }
func (c *plainChannel) Start(ctx api.ChannelContext) error   { return nil }
func (c *plainChannel) Stop() error                          { return nil }
func (c *plainChannel) Send(s api.SessionContext, _ string) error { return nil }
func (c *plainChannel) Stream(s api.SessionContext, blocks <-chan llm.ContentBlock) error {
	return nil
}

type recordingMonitor struct {
	messages []monitor.MonitorMessage
}

func (m *recordingMonitor) Start() error { return nil }
func (m *recordingMonitor) Stop() error  { return nil }
func (m *recordingMonitor) OnMessage(msg monitor.MonitorMessage) {
	m.messages = append(m.messages, msg)
}

func webSession() api.SessionContext {
	return api.SessionContext{ChannelID: "web", ChatID: "global", Username: "WebUser"}
}

func TestManagerLifecycle(t *testing.T) {
	gw := NewGatewayManager()
	ch := &fakeChannel{id: "web"}
	gw.Register(ch)

	require.NoError(t, gw.StartAll())
	assert.True(t, ch.started)

	got, ok := gw.GetChannel("web")
	require.True(t, ok)
	assert.Equal(t, ch, got)

	gw.StopAll()
	assert.True(t, ch.stopped)
}

func TestStartAllPropagatesFailure(t *testing.T) {
	gw := NewGatewayManager()
	gw.Register(&fakeChannel{id: "web", startErr: errors.New("port in use")})

	err := gw.StartAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web")
}

func TestSendReplyRoutesAndBroadcasts(t *testing.T) {
	gw := NewGatewayManager()
	ch := &fakeChannel{id: "web"}
	mon := &recordingMonitor{}
	gw.Register(ch)
	gw.SetMonitor(mon)

	require.NoError(t, gw.SendReply(webSession(), "Here is your itinerary."))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "Here is your itinerary.", ch.sent[0])
	require.Len(t, mon.messages, 1)
	assert.Equal(t, "ASSISTANT", mon.messages[0].MessageType)

	err := gw.SendReply(api.SessionContext{ChannelID: "missing"}, "x")
	assert.Error(t, err)
}

func TestSendSignal(t *testing.T) {
	gw := NewGatewayManager()
	signaling := &fakeChannel{id: "telegram"}
	gw.Register(signaling)
	gw.Register(&plainChannel{id: "web"})

	require.NoError(t, gw.SendSignal(api.SessionContext{ChannelID: "telegram"}, "thinking"))
	assert.Equal(t, []string{"thinking"}, signaling.signals)

	// Channels without signal support ignore signals silently.
	require.NoError(t, gw.SendSignal(api.SessionContext{ChannelID: "web"}, "thinking"))

	assert.Error(t, gw.SendSignal(api.SessionContext{ChannelID: "missing"}, "thinking"))
}

func TestStreamReplyAccumulatesForMonitor(t *testing.T) {
	gw := NewGatewayManager()
	ch := &fakeChannel{id: "web"}
	mon := &recordingMonitor{}
	gw.Register(ch)
	gw.SetMonitor(mon)

	blocks := make(chan llm.ContentBlock, 3)
	blocks <- llm.NewThinkingBlock("checking hotels")
	blocks <- llm.NewTextBlock("Day 1: ")
	blocks <- llm.NewTextBlock("arrive in Kyoto.")
	close(blocks)

	require.NoError(t, gw.StreamReply(webSession(), blocks))

	// The channel receives every block, thinking included.
	require.Len(t, ch.streamed, 3)
	require.Len(t, mon.messages, 1)
	assert.Equal(t, "Day 1: arrive in Kyoto.", mon.messages[0].Content)
}

func TestOnMessageDispatchesToHandler(t *testing.T) {
	gw := NewGatewayManager()
	mon := &recordingMonitor{}
	gw.SetMonitor(mon)

	var handled *api.UnifiedMessage
	gw.SetMessageHandler(func(msg *api.UnifiedMessage) {
		handled = msg
	})

	msg := &api.UnifiedMessage{Session: webSession(), Content: "plan a trip"}
	gw.OnMessage("web", msg)

	require.NotNil(t, handled)
	assert.Equal(t, "plan a trip", handled.Content)
	require.Len(t, mon.messages, 1)
	assert.Equal(t, "USER", mon.messages[0].MessageType)
}
