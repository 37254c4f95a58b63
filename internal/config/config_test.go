package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Source)
	assert.Equal(t, "http://localhost:8888", cfg.Executor.URL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 2*time.Second, cfg.Autonomous.IterationDelay)
	assert.Equal(t, "basic", cfg.Prompt.Mode)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
provider:
  source: ollama
  model_id: llama3.1:8b
executor:
  url: http://tools.lab:8888
  max_tools: 25
cache:
  enabled: false
autonomous:
  max_iterations: 10
  iteration_delay: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Provider.Source)
	assert.Equal(t, "llama3.1:8b", cfg.Provider.ModelID)
	assert.Equal(t, "http://tools.lab:8888", cfg.Executor.URL)
	assert.Equal(t, 25, cfg.Executor.MaxTools)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 10, cfg.Autonomous.MaxIterations)
	assert.Equal(t, 5*time.Second, cfg.Autonomous.IterationDelay)
	// Untouched sections keep their defaults.
	assert.Equal(t, "sessions", cfg.Session.Dir)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  model_id: from-file\n"), 0o644))

	t.Setenv("PWNPILOT_PROVIDER_MODEL_ID", "from-env")
	t.Setenv("PWNPILOT_SESSION_DIR", "/tmp/sessions")
	t.Setenv("PWNPILOT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Provider.ModelID)
	assert.Equal(t, "/tmp/sessions", cfg.Session.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"PWNPILOT_PROVIDER_MODEL_ID":          "provider.model_id",
		"PWNPILOT_PROVIDER_API_KEY":           "provider.api_key",
		"PWNPILOT_PROVIDER_OLLAMA_URL":        "provider.ollama_url",
		"PWNPILOT_EXECUTOR_URL":               "executor.url",
		"PWNPILOT_EXECUTOR_MAX_TOOLS":         "executor.max_tools",
		"PWNPILOT_AUTONOMOUS_MAX_ITERATIONS":  "autonomous.max_iterations",
		"PWNPILOT_AUTONOMOUS_ITERATION_DELAY": "autonomous.iteration_delay",
		"PWNPILOT_LOG_LEVEL":                  "log.level",
	}
	for in, want := range cases {
		assert.Equal(t, want, envTransform(in), in)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
