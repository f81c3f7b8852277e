package config

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"AIACT_RETRIEVE_K", "AIACT_STORE", "AIACT_LLM_PROVIDER", "AIACT_GENERATE_TITLES", "AIACT_TITLE_TEMPERATURE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 10, cfg.RetrieveK)
	assert.Equal(t, 3, cfg.SelectMax)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.True(t, cfg.GenerateTitles)
	assert.Equal(t, 0.4, cfg.TitleTemperature)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AIACT_RETRIEVE_K", "25")
	t.Setenv("AIACT_STORE", "Memory")
	t.Setenv("AIACT_WATCH_CORPUS", "true")
	t.Setenv("AIACT_LLM_TEMPERATURE", "0.7")
	t.Setenv("AIACT_STREAM_BUFFER", "not-a-number")

	cfg := Load()
	assert.Equal(t, 25, cfg.RetrieveK)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.True(t, cfg.WatchCorpus)
	assert.Equal(t, 0.7, cfg.LLMTemperature)
	assert.Equal(t, 16, cfg.StreamBuffer)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("index loaded", "passages", 3)

	assert.Contains(t, stderr.String(), "index loaded")
	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, file.String(), `"passages":3`)
}
