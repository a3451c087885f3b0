package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/momentsapp/moments/internal/config"
	"github.com/momentsapp/moments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "moments.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createPhoto(t *testing.T, repo *PhotoRepository, description string) *domain.Photo {
	t.Helper()
	id := uuid.NewString()
	photo := &domain.Photo{
		ID:          id,
		Filename:    id + ".jpg",
		FilenameS:   id + "_s.jpg",
		FilenameM:   id + "_m.jpg",
		Description: description,
		Format:      "jpeg",
		MD5Hash:     id,
	}
	require.NoError(t, repo.Create(context.Background(), photo))
	return photo
}

func TestPhotoRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)
	ctx := context.Background()

	created := createPhoto(t, repo, "sunset")

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sunset", got.Description)
	assert.Nil(t, got.AltText)
	assert.Nil(t, got.DetectedObjects)
	assert.Empty(t, got.Tags)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPhotoNotFound)
}

func TestPhotoRepository_SetAltTextOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)
	ctx := context.Background()
	photo := createPhoto(t, repo, "")

	written, err := repo.SetAltText(ctx, photo.ID, "a dog on a beach")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.SetAltText(ctx, photo.ID, "something else")
	require.NoError(t, err)
	assert.False(t, written)

	got, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AltText)
	assert.Equal(t, "a dog on a beach", *got.AltText)
	assert.Equal(t, "a dog on a beach", got.EffectiveDescription())
}

func TestPhotoRepository_UpdateDescriptionKeepsAltText(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)
	ctx := context.Background()
	photo := createPhoto(t, repo, "")

	_, err := repo.SetAltText(ctx, photo.ID, "a red car")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateDescription(ctx, photo.ID, "my car"))

	got, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, "my car", got.EffectiveDescription())
	require.NotNil(t, got.AltText)
	assert.Equal(t, "a red car", *got.AltText)

	assert.ErrorIs(t, repo.UpdateDescription(ctx, "missing", "x"), domain.ErrPhotoNotFound)
}

func TestPhotoRepository_SetDetectedObjects(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)
	ctx := context.Background()
	photo := createPhoto(t, repo, "")

	objects := domain.DetectedObjects{{Name: "dog", Confidence: 0.93}, {Name: "ball", Confidence: 0.61}}
	now := time.Now()
	require.NoError(t, repo.SetDetectedObjects(ctx, photo.ID, objects, now))

	got, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, objects, got.DetectedObjects)
	require.NotNil(t, got.ObjectsDetectedAt)
	assert.WithinDuration(t, now, *got.ObjectsDetectedAt, time.Second)
}

func TestPhotoRepository_ListPendingAnalysis(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)
	ctx := context.Background()

	described := createPhoto(t, repo, "has a description")
	bare := createPhoto(t, repo, "")
	done := createPhoto(t, repo, "")
	_, err := repo.SetAltText(ctx, done.ID, "done")
	require.NoError(t, err)
	require.NoError(t, repo.SetDetectedObjects(ctx, done.ID, domain.DetectedObjects{}, time.Now()))

	alt, err := repo.ListPendingAnalysis(ctx, true, false, 10)
	require.NoError(t, err)
	require.Len(t, alt, 1)
	assert.Equal(t, bare.ID, alt[0].ID)

	det, err := repo.ListPendingAnalysis(ctx, false, true, 10)
	require.NoError(t, err)
	ids := []string{}
	for _, p := range det {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{described.ID, bare.ID}, ids)

	none, err := repo.ListPendingAnalysis(ctx, false, false, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTagRepository_AttachIsAdditiveAndIdempotent(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	tags := NewTagRepository(db)
	ctx := context.Background()
	photo := createPhoto(t, photos, "")

	added, err := tags.AttachToPhoto(ctx, photo.ID, []string{"beach", "sunset"}, domain.TagSourceUser)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = tags.AttachToPhoto(ctx, photo.ID, []string{"dog", "beach"}, domain.TagSourceDetection)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	got, err := photos.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "dog", "sunset"}, got.TagNames())

	links, err := tags.ListForPhoto(ctx, photo.ID)
	require.NoError(t, err)
	sources := map[uint]domain.TagSource{}
	for _, l := range links {
		sources[l.TagID] = l.Source
	}
	beach, err := tags.GetByName(ctx, "beach")
	require.NoError(t, err)
	assert.Equal(t, domain.TagSourceUser, sources[beach.ID])
}

func TestTagRepository_HotTagsOrdering(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	tags := NewTagRepository(db)
	ctx := context.Background()

	p1 := createPhoto(t, photos, "")
	p2 := createPhoto(t, photos, "")
	p3 := createPhoto(t, photos, "")

	_, err := tags.AttachToPhoto(ctx, p1.ID, []string{"dog", "cat", "tree"}, domain.TagSourceDetection)
	require.NoError(t, err)
	_, err = tags.AttachToPhoto(ctx, p2.ID, []string{"dog", "cat"}, domain.TagSourceDetection)
	require.NoError(t, err)
	_, err = tags.AttachToPhoto(ctx, p3.ID, []string{"dog"}, domain.TagSourceUser)
	require.NoError(t, err)
	_, err = tags.GetOrCreate(ctx, "unused")
	require.NoError(t, err)

	hot, err := tags.HotTags(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hot, 3)
	assert.Equal(t, "dog", hot[0].Name)
	assert.EqualValues(t, 3, hot[0].PhotoCount)
	assert.Equal(t, "cat", hot[1].Name)
	assert.Equal(t, "tree", hot[2].Name)

	all, err := tags.ListWithCounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPhotoRepository_DeleteRemovesLinksButKeepsTags(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	tags := NewTagRepository(db)
	ctx := context.Background()
	photo := createPhoto(t, photos, "")

	_, err := tags.AttachToPhoto(ctx, photo.ID, []string{"dog"}, domain.TagSourceDetection)
	require.NoError(t, err)
	require.NoError(t, photos.Delete(ctx, photo.ID))

	links, err := tags.ListForPhoto(ctx, photo.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	_, err = tags.GetByName(ctx, "dog")
	assert.NoError(t, err)

	assert.ErrorIs(t, photos.Delete(ctx, photo.ID), domain.ErrPhotoNotFound)
}

func TestPhotoRepository_ListByTag(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	tags := NewTagRepository(db)
	ctx := context.Background()

	p1 := createPhoto(t, photos, "")
	createPhoto(t, photos, "")
	_, err := tags.AttachToPhoto(ctx, p1.ID, []string{"dog"}, domain.TagSourceUser)
	require.NoError(t, err)

	list, total, err := photos.List(ctx, "dog", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, p1.ID, list[0].ID)

	_, total, err = photos.List(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestTagRepository_DetachAndSearch(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	tags := NewTagRepository(db)
	ctx := context.Background()
	photo := createPhoto(t, photos, "")

	_, err := tags.AttachToPhoto(ctx, photo.ID, []string{"hotdog", "dog", "cat"}, domain.TagSourceUser)
	require.NoError(t, err)

	found, err := tags.Search(ctx, "dog", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "dog", found[0].Name)
	assert.Equal(t, "hotdog", found[1].Name)

	dog, err := tags.GetByName(ctx, "dog")
	require.NoError(t, err)
	require.NoError(t, tags.DetachFromPhoto(ctx, photo.ID, dog.ID))
	assert.ErrorIs(t, tags.DetachFromPhoto(ctx, photo.ID, dog.ID), domain.ErrTagNotFound)
}

func TestPointIDIsDeterministic(t *testing.T) {
	id1 := PointID("photo-1", "photos")
	id2 := PointID("photo-1", "photos")
	if id1 != id2 {
		t.Errorf("UUID mismatch: first=%s, second=%s", id1, id2)
	}
	if len(id1) != 36 {
		t.Errorf("Invalid UUID length: got %d, want 36", len(id1))
	}
	if id1 == PointID("photo-2", "photos") {
		t.Errorf("Different photos should produce different UUIDs")
	}
	if id1 == PointID("photo-1", "photos-test") {
		t.Errorf("Different collections should produce different UUIDs")
	}
}

type recordingWriter struct {
	lines []string
}

func (w *recordingWriter) Printf(format string, args ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	w := &recordingWriter{}
	gl := newGormLogger(w)
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT * FROM photos WHERE md5_hash = 'x'", 0 }

	gl.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Empty(t, w.lines)

	gl.Trace(ctx, time.Now(), query, errors.New("database is locked"))
	require.Len(t, w.lines, 1)
	assert.Contains(t, w.lines[0], "database is locked")

	gl.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	require.Len(t, w.lines, 2)
	assert.Contains(t, w.lines[1], "SLOW SQL")
}
