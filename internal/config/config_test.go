package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.Equal(t, 10, cfg.Fetch.MaxConcurrent)
	require.Equal(t, 5, cfg.Fetch.MaxSizeMB)
	require.Equal(t, 3, cfg.Fetch.RetryAttempts)
	require.Equal(t, "./bookmarks_export", cfg.Output.Dir)
	require.True(t, cfg.Output.IncludeMetadata)
	require.Equal(t, 10, cfg.Output.SaveInterval)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
llm:
  model: claude-sonnet-4-5
  provider: anthropic
  rate_limit: 6
fetch:
  max_concurrent: 2
  retry_attempts: 1
output:
  dir: /tmp/export
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
	require.Equal(t, 6, cfg.LLM.RateLimit)
	require.Equal(t, 2, cfg.Fetch.MaxConcurrent)
	require.Equal(t, "/tmp/export", cfg.Output.Dir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Fetch.MaxConcurrent = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.LLM.Model = ""
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Output.SaveInterval = 0
	require.Error(t, bad.Validate())
}

func TestFingerprintStability(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	first := cfg.Fingerprint()
	second := cfg.Fingerprint()
	require.NotEmpty(t, first)
	require.Equal(t, first, second)
}

func TestFingerprintSensitivity(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	base := cfg.Fingerprint()

	changed := cfg
	changed.LLM.Model = "some-other-model"
	require.NotEqual(t, base, changed.Fingerprint())

	changed = cfg
	changed.Output.Dir = "/elsewhere"
	require.NotEqual(t, base, changed.Fingerprint())

	// Fields outside the fingerprint subset must not matter.
	changed = cfg
	changed.Fetch.MaxConcurrent = 99
	require.Equal(t, base, changed.Fingerprint())
}
