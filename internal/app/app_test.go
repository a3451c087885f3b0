package app

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentsapp/moments/internal/config"
	"github.com/momentsapp/moments/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Upload: config.UploadConfig{MaxSize: 3 << 20, SmallSize: 400, MediumSize: 800},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			Path:        filepath.Join(dir, "moments.db"),
			AutoMigrate: true,
		},
		Storage: config.StorageConfig{
			Type:  "local",
			Local: config.LocalStorageConfig{Path: filepath.Join(dir, "uploads"), PublicURL: "/uploads"},
		},
		Search: config.SearchConfig{IndexPath: filepath.Join(dir, "index.bleve")},
		Redis:  config.RedisConfig{HotTagsTTL: time.Minute},
	}
}

func TestNew_LocalWithoutIntegrations(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Tagging.Available())
	assert.False(t, a.AltText.Available())
	assert.False(t, a.Photos.SimilarityEnabled())
	assert.Equal(t, cfg.Storage.Local.Path, a.UploadsDir())
	require.NoError(t, a.DB.PingContext(context.Background()))
}

func TestNew_DetectionNeedsCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vision.ObjectDetection.Enabled = true

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Tagging.Available(), "enabled without endpoint or key must stay unavailable")

	cfg2 := testConfig(t)
	cfg2.Vision.ObjectDetection.Enabled = true
	cfg2.Vision.Azure.Endpoint = "https://example.cognitiveservices.azure.com"
	cfg2.Vision.Azure.Key = "key"

	b, err := New(context.Background(), cfg2)
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, b.Tagging.Available())
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNew_DeduplicateFromConfig(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 24))))
	data := buf.Bytes()
	ctx := context.Background()

	for _, dedupe := range []bool{false, true} {
		cfg := testConfig(t)
		cfg.Upload.Deduplicate = dedupe

		a, err := New(ctx, cfg)
		require.NoError(t, err)

		first, err := a.Photos.Upload(ctx, &service.UploadInput{Data: data})
		require.NoError(t, err)
		second, err := a.Photos.Upload(ctx, &service.UploadInput{Data: data})
		require.NoError(t, err)

		assert.Equal(t, dedupe, second.Duplicate)
		assert.Equal(t, dedupe, first.Photo.ID == second.Photo.ID)
		a.Close()
	}
}
