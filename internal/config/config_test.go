package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "MANAGER_BASE_URL", "SPECIALIST_BASE_URL", "ORCHESTRATOR_HOST", "MOCK_MODE", "CHARTS_DIR", "OUTPUT_DIR"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "ollama/gemma3:27b", cfg.ManagerModel)
	assert.Equal(t, "http://10.0.0.1:11434", cfg.ManagerBaseURL)
	assert.Equal(t, "http://10.0.0.2:11434", cfg.SpecialistBaseURL)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, "output/charts", cfg.ChartsDir)
	assert.False(t, cfg.MockMode)
	assert.Equal(t, PipelineLLM, cfg.Pipeline)
	assert.Equal(t, time.Second, cfg.StreamPollInterval)
	assert.Equal(t, "crew:events", cfg.EventChannelPrefix)
	assert.Equal(t, "none", cfg.ArtifactStore)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ORCHESTRATOR_HOST", "192.168.1.5")
	t.Setenv("MANAGER_BASE_URL", "")
	t.Setenv("MOCK_MODE", "true")
	t.Setenv("MOCK_SPEED", "20")
	t.Setenv("PIPELINE", "subprocess")
	t.Setenv("PIPELINE_COMMAND", "python -m crew.run")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("STREAM_POLL_INTERVAL", "250ms")

	cfg := Load()
	assert.Equal(t, "http://192.168.1.5:11434", cfg.ManagerBaseURL)
	assert.True(t, cfg.MockMode)
	assert.Equal(t, 20.0, cfg.MockSpeed)
	assert.Equal(t, []string{"python", "-m", "crew.run"}, cfg.PipelineCommand)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamPollInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SPECIALIST_MODEL=ollama/llama3:8b\n"), 0o644))
	t.Setenv("SPECIALIST_MODEL", "")
	os.Unsetenv("SPECIALIST_MODEL")

	cfg := Load()
	assert.Equal(t, "ollama/llama3:8b", cfg.SpecialistModel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown pipeline", func(c *Config) { c.Pipeline = "k8s" }, true},
		{"subprocess without command", func(c *Config) { c.Pipeline = PipelineSubprocess }, true},
		{"subprocess in mock mode", func(c *Config) { c.Pipeline = PipelineSubprocess; c.MockMode = true }, false},
		{"zero speed", func(c *Config) { c.MockSpeed = 0 }, true},
		{"zero poll interval", func(c *Config) { c.StreamPollInterval = 0 }, true},
		{"oidc without issuer", func(c *Config) { c.OIDCEnabled = true; c.OIDCClientID = "analyst" }, true},
		{"oidc configured", func(c *Config) {
			c.OIDCEnabled = true
			c.OIDCIssuer = "https://auth.example.com"
			c.OIDCClientID = "analyst"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Pipeline: PipelineLLM, MockSpeed: 1, StreamPollInterval: time.Second}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{OutputDir: filepath.Join(dir, "out"), ChartsDir: filepath.Join(dir, "out", "charts")}
	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, cfg.ChartsDir)
}
