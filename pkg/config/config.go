package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel API keys and LLM provider choices.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the configuration for the LLM provider groups in raw JSON.
	LLM jsoniter.RawMessage `json:"llm"`
	// Places configures access to the Google Maps Web Services backing
	// the travel tools.
	Places PlacesConfig `json:"places"`
	// SystemPrompt overrides the built-in root planner instruction when
	// set. Leave empty to use the default travel assistant persona.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// PlacesConfig holds the credentials and tuning for the Google Geocoding
// and Places APIs.
type PlacesConfig struct {
	// APIKey is the Google Maps Platform key. Falls back to the
	// GOOGLE_API_KEY environment variable when empty.
	APIKey string `json:"api_key,omitempty"`
	// BaseURL overrides the API host, used by tests and proxies.
	BaseURL string `json:"base_url,omitempty"`
	// RedisAddr enables the response cache when set (host:port).
	RedisAddr string `json:"redis_addr,omitempty"`
	// RedisDB selects the cache database index.
	RedisDB int `json:"redis_db,omitempty"`
	// CacheTTLMin is the cache entry lifetime in minutes. Default: 60.
	CacheTTLMin int `json:"cache_ttl_min,omitempty"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	if c.Places.APIKey == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		return fmt.Errorf("missing places API key: set places.api_key or GOOGLE_API_KEY")
	}
	return nil
}

// ResolvedPlacesKey returns the configured Places API key, falling back to
// the GOOGLE_API_KEY environment variable.
func (c *Config) ResolvedPlacesKey() string {
	if c.Places.APIKey != "" {
		return c.Places.APIKey
	}
	return os.Getenv("GOOGLE_API_KEY")
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the engine.
type SystemConfig struct {
	// MaxRetries is the number of times the system will attempt to
	// recover from a transient LLM or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for an
	// LLM request. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// InternalChannelBuffer defines the size of the internal Go channels
	// used for buffering stream chunks to prevent production blocking.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// ThinkingInitDelayMs is the time to wait (in milliseconds) after a
	// user message before showing the "AI is thinking" status in the UI.
	ThinkingInitDelayMs int `json:"thinking_init_delay_ms"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses will be split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// DownloadTimeoutMs is the timeout (in milliseconds) applied when
	// fetching external media or files (e.g., from Telegram servers).
	DownloadTimeoutMs int `json:"download_timeout_ms"`
	// ShowThinking determines whether the AI's internal reasoning process
	// should be streamed and displayed to the end user.
	ShowThinking bool `json:"show_thinking"`
	// DebugChunks enables saving every raw LLM response chunk to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles the tool calling (agentic) functionality.
	// If false, the AI will not be provided with any external tools.
	EnableTools bool `json:"enable_tools"`
	// SessionDir is the directory where conversation histories persist.
	SessionDir string `json:"session_dir"`

	// HistorySummarizeThreshold triggers summarization once a session
	// holds at least this many messages. 0 disables the count trigger.
	HistorySummarizeThreshold int `json:"history_summarize_threshold"`
	// HistoryMaxChars triggers summarization once the accumulated text
	// content exceeds this size. 0 disables the size trigger.
	HistoryMaxChars int `json:"history_max_chars"`
	// HistoryMaxTokens triggers summarization once the last reported
	// total token usage reaches this value. 0 disables the token trigger.
	HistoryMaxTokens int `json:"history_max_tokens"`
	// HistoryKeepRecentCount is how many recent messages survive a
	// summarization pass verbatim.
	HistoryKeepRecentCount int `json:"history_keep_recent_count"`

	// HotelRadiusMeters is the default search radius around the resolved
	// location when looking up hotels.
	HotelRadiusMeters int `json:"hotel_radius_meters"`
	// ActivityRadiusMeters is the default search radius for activity and
	// sightseeing lookups.
	ActivityRadiusMeters int `json:"activity_radius_meters"`
	// MaxHotelResults caps how many ranked hotels a search returns.
	MaxHotelResults int `json:"max_hotel_results"`
	// PlacesTimeoutMs is the per-request timeout against the Google APIs.
	PlacesTimeoutMs int `json:"places_timeout_ms"`
	// ExpertMaxTurns bounds the nested reasoning loop of an expert
	// sub-agent (each turn may include tool calls).
	ExpertMaxTurns int `json:"expert_max_turns"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:            3,
		RetryDelayMs:          500,
		LLMTimeoutMs:          600000,
		OllamaDefaultURL:      "http://localhost:11434",
		InternalChannelBuffer: 100,
		ThinkingInitDelayMs:   500,
		TelegramMessageLimit:  4000,
		DownloadTimeoutMs:     10000,
		ShowThinking:          true,
		LogLevel:              "info",
		EnableTools:           true,
		SessionDir:            "data/sessions",

		HistorySummarizeThreshold: 40,
		HistoryMaxChars:           60000,
		HistoryMaxTokens:          0,
		HistoryKeepRecentCount:    8,

		HotelRadiusMeters:    2000,
		ActivityRadiusMeters: 5000,
		MaxHotelResults:      10,
		PlacesTimeoutMs:      10000,
		ExpertMaxTurns:       4,
	}
}

// Load reads and parses the JSON configuration files from the current working directory.
// It first attempts to load 'config.json' (app config). If this file is missing, it returns an error.
// Then it calls LoadSystemConfig to load 'system.json'.
func Load() (*Config, *SystemConfig, error) {
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg // Parse failed, use defaults
	}

	return cfg
}
