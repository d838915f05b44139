package llm

import (
	"wayfarer/pkg/config"
)

// ProviderGroupConfig describes one configured group of models sharing a
// provider type, credentials and generation options.
type ProviderGroupConfig struct {
	Type                string         `json:"type"`
	APIKeys             []string       `json:"api_keys,omitempty"`
	Models              []string       `json:"models"`
	BaseURL             string         `json:"base_url,omitempty"`
	UseThoughtSignature bool           `json:"use_thought_signature,omitempty"`
	Options             map[string]any `json:"options,omitempty"`
}

// ProviderFactory builds atomic LLM clients from a group configuration.
type ProviderFactory interface {
	// Create returns one client per model/key combination in the group.
	Create(groupConfig ProviderGroupConfig, systemConfig *config.SystemConfig) ([]LLMClient, error)
}

// Global provider registry, populated by provider packages' init().
var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider registers a ProviderFactory under a provider type name.
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory returns the factory registered for the given name.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
