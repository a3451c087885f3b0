package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/momentsapp/moments/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir(), "/uploads/")
	require.NoError(t, err)

	data := []byte("image bytes")
	require.NoError(t, s.Upload(ctx, "ab/photo.jpg", bytes.NewReader(data), int64(len(data)), "image/jpeg"))

	ok, err := s.Exists(ctx, "ab/photo.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := ReadAll(ctx, s, "ab/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "/uploads/ab/photo.jpg", s.GetURL("ab/photo.jpg"))

	require.NoError(t, s.Delete(ctx, "ab/photo.jpg"))
	require.NoError(t, s.Delete(ctx, "ab/photo.jpg"))

	ok, err = s.Exists(ctx, "ab/photo.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Download(ctx, "ab/photo.jpg")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestLocalStorage_KeysStayInsideBasePath(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base, "/uploads")
	require.NoError(t, err)

	require.NoError(t, s.Upload(ctx, "../../escape.txt", bytes.NewReader([]byte("x")), 1, "text/plain"))
	ok, err := s.Exists(ctx, "escape.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"https://abc.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.eu-west-1.amazonaws.com", StorageTypeS3},
		{"localhost:9000", StorageTypeS3Compatible},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, detectStorageType(tt.endpoint))
		})
	}
}

func TestNewStorage_UnknownType(t *testing.T) {
	_, err := NewStorage(context.Background(), &config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}

func TestNewStorage_AzureRequiresConnectionString(t *testing.T) {
	_, err := NewStorage(context.Background(), &config.StorageConfig{Type: "azure"})
	assert.Error(t, err)
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"", true, ""},
		{"localhost:9000", false, "http://localhost:9000"},
		{"https://abc.r2.cloudflarestorage.com/bucket", true, "https://abc.r2.cloudflarestorage.com"},
		{"http://minio:9000/", true, "https://minio:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, endpointURL(tt.endpoint, tt.useSSL))
		})
	}
}

func TestS3Storage_GetURL(t *testing.T) {
	s, err := NewS3Storage(&S3Config{Type: StorageTypeS3Compatible, Endpoint: "localhost:9000", Bucket: "moments"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/moments/a.jpg", s.GetURL("a.jpg"))

	s, err = NewS3Storage(&S3Config{Type: StorageTypeR2, Endpoint: "abc.r2.cloudflarestorage.com", UseSSL: true, Bucket: "moments", PublicURL: "https://cdn.example/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.jpg", s.GetURL("a.jpg"))

	_, err = NewS3Storage(&S3Config{Type: StorageTypeS3})
	assert.Error(t, err)
}
