package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ldi/taskdesk/internal/llm"
	"github.com/ldi/taskdesk/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from keys set in the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "TASKDESK_LLM_API_KEY"} {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		}
		os.Unsetenv(k)
	}
}

func TestLoadWithoutConfigFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 1, cfg.Database.MinConns)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.AcquireTimeout)
	assert.True(t, cfg.Guard.Strict)
	assert.Equal(t, synth.SQLite, cfg.Dialect())
}

func TestLoadUsesConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
database:
  driver: postgres
  dsn: postgres://localhost/taskdesk
  max_conns: 4
  acquire_timeout: 250ms
llm:
  provider: gemini
  api_key: file-key
guard:
  strict: false
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.Equal(t, 1, cfg.Database.MinConns)
	assert.Equal(t, 250*time.Millisecond, cfg.Database.AcquireTimeout)
	assert.Equal(t, llm.ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "file-key", cfg.LLM.APIKey)
	assert.False(t, cfg.Guard.Strict)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, synth.Postgres, cfg.Dialect())
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: from-file\n"), 0644))

	t.Setenv("TASKDESK_LLM_MODEL", "from-env")
	t.Setenv("TASKDESK_DB_MAX_CONNS", "3")
	t.Setenv("TASKDESK_MATCH", "ilike")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Database.MaxConns)
	assert.Equal(t, synth.Postgres, cfg.Dialect())
	assert.Equal(t, 3, cfg.DBOptions(nil).MaxConns)
}

func TestAPIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "groq-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "groq-key", cfg.LLM.APIKey)
	assert.Equal(t, "groq-key", cfg.LLMConfig(nil).APIKey)

	t.Setenv("TASKDESK_LLM_API_KEY", "explicit")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		yml  string
	}{
		{"driver", "database:\n  driver: mysql\n"},
		{"pool", "database:\n  min_conns: 5\n  max_conns: 2\n"},
		{"provider", "llm:\n  provider: claude\n"},
		{"match", "match: fuzzy\n"},
		{"yaml", "database: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yml), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
