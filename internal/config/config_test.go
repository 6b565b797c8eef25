package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolboxpm/toolbox-vault/internal/crypto"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, crypto.DefaultIterations, cfg.KDFIterations)
	assert.True(t, cfg.Pwned.Enabled)
	assert.True(t, cfg.Pwned.AllowNetwork)
	assert.Equal(t, 15, cfg.ClipboardClearSeconds)
	assert.Contains(t, cfg.VaultPath, AppDirName)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	content := "vault_path: /tmp/custom.db\nkdf_iterations: 200000\npwned:\n  enabled: false\n  allow_network: false\nclipboard_clear_seconds: 30\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.VaultPath)
	assert.Equal(t, 200000, cfg.KDFIterations)
	assert.False(t, cfg.Pwned.Enabled)
	assert.False(t, cfg.Pwned.AllowNetwork)
	assert.Equal(t, 30, cfg.ClipboardClearSeconds)
}

func TestLoadClampsIterationFloor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weak.yml")
	require.NoError(t, os.WriteFile(path, []byte("kdf_iterations: 1000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, crypto.MinIterations, cfg.KDFIterations)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := Defaults()
	cfg.VaultPath = "/data/vault.db"
	cfg.Pwned.AllowNetwork = false
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/vault.db", loaded.VaultPath)
	assert.False(t, loaded.Pwned.AllowNetwork)
	assert.True(t, loaded.Pwned.Enabled)
}
