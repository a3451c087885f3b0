package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIndex(t *testing.T, idx *PhotoIndex) {
	t.Helper()
	ctx := context.Background()
	docs := []*PhotoDocument{
		{ID: "p1", Description: "Walking the dog on the beach", Tags: []string{"beach", "dog"}, CreatedAt: time.Now()},
		{ID: "p2", AltText: "A red bicycle leaning on a wall", Objects: []string{"bicycle"}, CreatedAt: time.Now()},
		{ID: "p3", Description: "Mountains at sunrise", Tags: []string{"hot air balloon"}, CreatedAt: time.Now()},
	}
	require.NoError(t, idx.IndexPhotos(ctx, docs))
}

func TestPhotoIndex_Search(t *testing.T) {
	idx, err := OpenInMemory()
	require.NoError(t, err)
	defer idx.Close()
	seedIndex(t, idx)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"description stem", "walks", "p1"},
		{"tag keyword", "Dog", "p1"},
		{"alt text", "bicycle", "p2"},
		{"multi word tag", "hot air balloon", "p3"},
		{"fuzzy", "mountan", "p3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := idx.Search(ctx, tt.query, 10, 0)
			require.NoError(t, err)
			require.NotEmpty(t, res.Hits)
			assert.Equal(t, tt.want, res.Hits[0].ID)
		})
	}

	res, err := idx.Search(ctx, "   ", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestPhotoIndex_DeleteAndReindex(t *testing.T) {
	idx, err := OpenInMemory()
	require.NoError(t, err)
	defer idx.Close()
	seedIndex(t, idx)
	ctx := context.Background()

	require.NoError(t, idx.DeletePhoto(ctx, "p2"))
	res, err := idx.Search(ctx, "bicycle", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	require.NoError(t, idx.IndexPhoto(ctx, &PhotoDocument{ID: "p1", Description: "cat nap"}))
	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	res, err = idx.Search(ctx, "beach", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestOpen_PersistsAndReopens(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, idx.IndexPhoto(context.Background(), &PhotoDocument{ID: "p1", Description: "lake"}))
	require.NoError(t, idx.Close())

	idx, err = Open(dir)
	require.NoError(t, err)
	defer idx.Close()
	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
