package monitor

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIMonitorOutput(t *testing.T) {
	var buf bytes.Buffer
	m := &CLIMonitor{writer: &buf}

	require.NoError(t, m.Start())
	assert.Contains(t, buf.String(), "CLI Monitor Active")

	buf.Reset()
	m.OnMessage(MonitorMessage{
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		MessageType: "USER",
		ChannelID:   "telegram",
		Username:    "alice",
		Content:     "plan my trip",
	})
	assert.Contains(t, buf.String(), "[telegram/alice] plan my trip")
	assert.Contains(t, buf.String(), "2026-03-01 12:00:00")

	buf.Reset()
	m.OnMessage(MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: "ASSISTANT",
		Content:     "Here is the itinerary.",
	})
	assert.Contains(t, buf.String(), "[AI] Here is the itinerary.")

	require.NoError(t, m.Stop())
}
