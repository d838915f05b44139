package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSystemConfig(t *testing.T) {
	cfg := DefaultSystemConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.EnableTools)
	assert.Equal(t, 2000, cfg.HotelRadiusMeters)
	assert.Equal(t, 5000, cfg.ActivityRadiusMeters)
	assert.Equal(t, 10, cfg.MaxHotelResults)
	assert.Equal(t, 4, cfg.ExpertMaxTurns)
}

func TestLoadSystemConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"log_level": "debug",
		"max_hotel_results": 5
	}`), 0644))

	cfg := LoadSystemConfig(path)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.MaxHotelResults)
	// Untouched fields keep their defaults.
	assert.Equal(t, 2000, cfg.HotelRadiusMeters)
}

func TestLoadSystemConfigMissingOrCorrupt(t *testing.T) {
	cfg := LoadSystemConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, DefaultSystemConfig(), cfg)

	bad := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{not json`), 0644))
	cfg = LoadSystemConfig(bad)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := &Config{}
	assert.Error(t, cfg.Validate(), "missing llm block must be rejected")

	cfg.LLM = []byte(`{"groups":[]}`)
	assert.Error(t, cfg.Validate(), "missing places key must be rejected")

	cfg.Places.APIKey = "k"
	assert.NoError(t, cfg.Validate())
}

func TestResolvedPlacesKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "env-key")

	cfg := &Config{}
	assert.Equal(t, "env-key", cfg.ResolvedPlacesKey())

	cfg.Places.APIKey = "file-key"
	assert.Equal(t, "file-key", cfg.ResolvedPlacesKey())
}
