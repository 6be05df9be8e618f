package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:5001", cfg.Addr())
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, 8, cfg.MaxSteps)
	assert.False(t, cfg.LLMConfigured())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, time.Minute, cfg.Metrics.Interval)
}

func TestEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "legacy-key")
	t.Setenv("PORT", "8080")
	t.Setenv("UISTREAM_HOST", "127.0.0.1")
	t.Setenv("UISTREAM_LOGGING_LEVEL", "debug")
	t.Setenv("UISTREAM_SANDBOX_ENABLED", "true")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.GeminiAPIKey)
	assert.True(t, cfg.LLMConfigured())
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Sandbox.Enabled)
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "legacy-key")
	t.Setenv("UISTREAM_GEMINI_API_KEY", "new-key")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "new-key", cfg.GeminiAPIKey)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
model: gemini-2.5-pro
stream:
  tool_output_chunk_size: 100
metrics:
  enabled: true
  interval: 5s
`), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, 100, cfg.Stream.ToolOutputChunkSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Metrics.Interval)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "port", env: map[string]string{"UISTREAM_PORT": "70000"}},
		{name: "level", env: map[string]string{"UISTREAM_LOGGING_LEVEL": "loud"}},
		{name: "format", env: map[string]string{"UISTREAM_LOGGING_FORMAT": "xml"}},
		{name: "steps", env: map[string]string{"UISTREAM_MAX_STEPS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(viper.New(), "")
			assert.Error(t, err)
		})
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uistream.log")
	logger, closer, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("Dropped")
	logger.Warn("Kept", "threadID", "t1")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "Dropped")
	assert.Contains(t, string(b), `"msg":"Kept"`)
	assert.Contains(t, string(b), `"threadID":"t1"`)
}
