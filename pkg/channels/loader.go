package channels

import (
	"log/slog"

	"wayfarer/pkg/api"
	"wayfarer/pkg/config"
	"wayfarer/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

// LoadFromConfig acts as the central orchestration point for dynamic
// channel initialization. It iterates through the provided configuration
// map, resolves factories, and returns the constructed channels ready
// for registration with the gateway.
func LoadFromConfig(configs map[string]jsoniter.RawMessage, sessions *llm.SessionManager, system *config.SystemConfig) []api.Channel {
	var out []api.Channel
	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, sessions, system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// If Create returns nil (e.g., certain conditions not met but not an error), skip
		if channel == nil {
			continue
		}

		out = append(out, channel)
		slog.Info("Channel loaded", "name", name)
	}
	return out
}
