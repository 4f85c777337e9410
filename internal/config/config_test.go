package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "api_key: test-key\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "test-key", cfg.APIKey)
	require.Equal(t, 100_000, cfg.TokenBudget)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "claude-sonnet-4-20250514", cfg.DefaultModels["default"])
}

func TestLoadFailsClosedWithoutAPIKey(t *testing.T) {
	path := writeTempConfig(t, "storage_url: memory://\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	path := writeTempConfig(t, "api_key: from-file\n")
	t.Setenv("AEGIS_API_KEY", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.APIKey)
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	mainPath := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(basePath, []byte("token_budget: 50000\n"), 0o644))
	require.NoError(t, os.WriteFile(mainPath, []byte("$include: base.yaml\napi_key: k\n"), 0o644))

	cfg, err := Load(mainPath)
	require.NoError(t, err)
	require.Equal(t, 50000, cfg.TokenBudget)
	require.Equal(t, "k", cfg.APIKey)
}
