package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "fabula", cfg.Name)
	require.Equal(t, 3, cfg.Provider.Timeouts.MaxRetries)
	require.Equal(t, 3, cfg.Chains.Intention)
	require.Equal(t, 0, cfg.Chains.Memory)
}

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabula.yaml")
	body := `
provider:
  api_key: test-key
  model: test-model
  timeouts:
    max_retries: 7
chains:
  intention: 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "test-key", cfg.Provider.APIKey)
	require.Equal(t, "test-model", cfg.Provider.Model)
	require.Equal(t, 7, cfg.Provider.Timeouts.MaxRetries)
	require.Equal(t, 5, cfg.Chains.Intention)
	// Unset timeout fields fall back to canonical budgets.
	require.Equal(t, 2*time.Minute, cfg.Provider.Timeouts.HTTPClientTimeout)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabula.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  api_key: file-key\n"), 0644))

	t.Setenv("FABULA_API_KEY", "env-key")
	t.Setenv("FABULA_MAX_RETRIES", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Provider.APIKey)
	require.Equal(t, 9, cfg.Provider.Timeouts.MaxRetries)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "missing api key must fail validation")

	cfg.Provider.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.Chains.Memory = -1
	require.Error(t, cfg.Validate())
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	tt := ProviderTimeouts{
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  5 * time.Second,
	}
	require.Equal(t, time.Second, tt.Backoff(0))
	require.Equal(t, 2*time.Second, tt.Backoff(1))
	require.Equal(t, 4*time.Second, tt.Backoff(2))
	require.Equal(t, 5*time.Second, tt.Backoff(3))
	require.Equal(t, 5*time.Second, tt.Backoff(10))
}

func TestDepthFor(t *testing.T) {
	c := ChainsConfig{Intention: 3, Narration: 2, Memory: 0}
	require.Equal(t, 3, c.DepthFor("intention"))
	require.Equal(t, 2, c.DepthFor("narration"))
	require.Equal(t, 0, c.DepthFor("memory"))
	require.Equal(t, 0, c.DepthFor("unknown"))
}
