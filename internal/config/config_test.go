package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_UploadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.EqualValues(t, 3*1024*1024, cfg.Upload.MaxSize)
	assert.Equal(t, 50_000_000, cfg.Upload.MaxPixels)
	assert.False(t, cfg.Upload.Deduplicate)
}

func TestLoad_UploadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, "upload:\n  deduplicate: true\n  max_pixels: 1000000\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Upload.Deduplicate)
	assert.Equal(t, 1_000_000, cfg.Upload.MaxPixels)

	t.Setenv("UPLOAD_DEDUPLICATE", "false")
	cfg, err = Load(writeConfig(t, "upload:\n  deduplicate: true\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Upload.Deduplicate)
}

func TestLoad_RejectsNegativePixelLimit(t *testing.T) {
	_, err := Load(writeConfig(t, "upload:\n  max_pixels: -1\n"))
	assert.Error(t, err)
}

func TestHasAzureCredentials(t *testing.T) {
	assert.False(t, (&AzureVisionConfig{}).HasAzureCredentials())
	assert.False(t, (&AzureVisionConfig{Key: "k"}).HasAzureCredentials())
	assert.True(t, (&AzureVisionConfig{Endpoint: "https://x", Key: "k"}).HasAzureCredentials())
	assert.True(t, (&AzureVisionConfig{Endpoint: "https://x", KeyVaultName: "vault"}).HasAzureCredentials())
}
