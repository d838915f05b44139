package gateway

import (
	"context"
	"testing"

	"wayfarer/pkg/api"
	"wayfarer/pkg/config"
	"wayfarer/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	responder api.MessageResponder
	received  []*api.UnifiedMessage
}

func (p *fakeProcessor) OnMessage(msg *api.UnifiedMessage) {
	p.received = append(p.received, msg)
}

func (p *fakeProcessor) SetResponder(r api.MessageResponder) {
	p.responder = r
}

type fakeEngine struct {
	responder api.MessageResponder
}

func (e *fakeEngine) HandleMessage(ctx context.Context, msg *api.UnifiedMessage, history *llm.ChatHistory) llm.Message {
	return llm.NewAssistantMessage("")
}
func (e *fakeEngine) SetResponder(r api.MessageResponder) { e.responder = r }
func (e *fakeEngine) SetToolRegistry(tr api.ToolRegistry) {}
func (e *fakeEngine) RegisterTool(tl ...api.Tool)         {}

func TestBuilderAssemblesGateway(t *testing.T) {
	ch := &fakeChannel{id: "web"}
	proc := &fakeProcessor{}
	engine := &fakeEngine{}
	mon := &recordingMonitor{}

	sysCfg := config.DefaultSystemConfig()
	sysCfg.InternalChannelBuffer = 7

	gw, err := NewGatewayBuilder().
		WithSystemConfig(sysCfg).
		WithMonitor(mon).
		WithChannel(ch).
		WithAgentEngine(engine).
		WithHandler(proc).
		Build()
	require.NoError(t, err)

	assert.True(t, ch.started)
	assert.Equal(t, 7, gw.channelBuffer)

	// The gateway injects itself as responder into handler and engine.
	assert.Same(t, gw, proc.responder)
	assert.Same(t, gw, engine.responder)

	// Incoming messages reach the processor.
	gw.OnMessage("web", &api.UnifiedMessage{Content: "hello"})
	require.Len(t, proc.received, 1)
	assert.Equal(t, "hello", proc.received[0].Content)
}

func TestBuilderChannelStartFailure(t *testing.T) {
	ch := &fakeChannel{id: "web", startErr: assert.AnError}

	_, err := NewGatewayBuilder().WithChannel(ch).Build()
	assert.Error(t, err)
}
