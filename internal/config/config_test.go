package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Scan.MaxFunctionLines)
	assert.Equal(t, 4, cfg.Analyzer.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Analyzer.Timeout)
	assert.Equal(t, "CODEGRAPH_API_KEY", cfg.Analyzer.APIKeyEnv)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
scan:
  workers: 2
  max_function_lines: 80
  disabled_categories: [unused-export]
analyzer:
  model: local-model
  timeout: 5s
  concurrency: 8
store:
  path: /tmp/cg.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scan.Workers)
	assert.Equal(t, 80, cfg.Scan.MaxFunctionLines)
	assert.Equal(t, []string{"unused-export"}, cfg.Scan.DisabledCategories)
	assert.Equal(t, "local-model", cfg.Analyzer.Model)
	assert.Equal(t, 5*time.Second, cfg.Analyzer.Timeout)
	assert.Equal(t, 8, cfg.Analyzer.Concurrency)
	assert.Equal(t, 300, cfg.Analyzer.MaxTokens, "unset keys keep defaults")
	assert.Equal(t, "/tmp/cg.db", cfg.StorePath("/proj"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed yaml":    "scan: [oops",
		"zero concurrency":  "analyzer:\n  concurrency: 0\n",
		"negative workers":  "scan:\n  workers: -1\n",
		"temperature range": "analyzer:\n  temperature: 3\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CODEGRAPH_MODEL", "env-model")
	t.Setenv("CODEGRAPH_ENDPOINT", "http://localhost:9999/v1/chat/completions")
	t.Setenv("MY_KEY", "k-123")

	cfg, err := Load(writeConfig(t, "analyzer:\n  api_key_env: MY_KEY\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Analyzer.Model)
	assert.Equal(t, "http://localhost:9999/v1/chat/completions", cfg.Analyzer.Endpoint)
	assert.Equal(t, "k-123", cfg.APIKey())
}

func TestStorePath_Relative(t *testing.T) {
	t.Parallel()
	cfg := Default()
	assert.Equal(t, filepath.Join("/proj", ".codegraph", "codegraph.db"), cfg.StorePath("/proj"))
}
