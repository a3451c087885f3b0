package service

import (
	"context"
	"fmt"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
)

const (
	defaultHotTagsLimit = 10
	maxHotTagsLimit     = 100
)

// TagStore is the tag persistence used by the services.
type TagStore interface {
	AttachToPhoto(ctx context.Context, photoID string, names []string, source domain.TagSource) (int, error)
	DetachFromPhoto(ctx context.Context, photoID string, tagID uint) error
	GetByName(ctx context.Context, name string) (*domain.Tag, error)
	HotTags(ctx context.Context, limit int) ([]domain.TagCount, error)
	Search(ctx context.Context, query string, limit int) ([]domain.TagCount, error)
	ListWithCounts(ctx context.Context) ([]domain.TagCount, error)
}

// HotTagsCache caches hot tag lists per limit.
type HotTagsCache interface {
	Get(ctx context.Context, limit int) ([]domain.TagCount, bool, error)
	Set(ctx context.Context, limit int, tags []domain.TagCount) error
	Invalidate(ctx context.Context) error
}

// TagService links tags to photos and serves the hot tags list.
type TagService struct {
	tags  TagStore
	cache HotTagsCache
}

// NewTagService creates a TagService. cache may be nil.
func NewTagService(tags TagStore, cache HotTagsCache) *TagService {
	return &TagService{tags: tags, cache: cache}
}

// Attach normalizes names and links them to a photo. Invalid names are skipped.
// Returns the number of new links.
func (s *TagService) Attach(ctx context.Context, photoID string, names []string, source domain.TagSource) (int, error) {
	normalized := domain.UniqueTagNames(names)
	if len(normalized) == 0 {
		return 0, nil
	}
	added, err := s.tags.AttachToPhoto(ctx, photoID, normalized, source)
	if err != nil {
		return 0, fmt.Errorf("failed to attach tags: %w", err)
	}
	if added > 0 {
		s.invalidate(ctx)
	}
	return added, nil
}

// Detach removes one tag from a photo.
func (s *TagService) Detach(ctx context.Context, photoID string, tagID uint) error {
	if err := s.tags.DetachFromPhoto(ctx, photoID, tagID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// HotTags returns tags ordered by photo count desc, name asc. Results are cached when a
// cache is configured; cache failures fall back to the database.
func (s *TagService) HotTags(ctx context.Context, limit int) ([]domain.TagCount, error) {
	if limit <= 0 {
		limit = defaultHotTagsLimit
	}
	if limit > maxHotTagsLimit {
		limit = maxHotTagsLimit
	}

	if s.cache != nil {
		tags, ok, err := s.cache.Get(ctx, limit)
		if err != nil {
			logger.CtxWarn(ctx, "Hot tags cache read failed: %v", err)
		} else if ok {
			return tags, nil
		}
	}

	tags, err := s.tags.HotTags(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, limit, tags); err != nil {
			logger.CtxWarn(ctx, "Hot tags cache write failed: %v", err)
		}
	}
	return tags, nil
}

// Search finds tags by name.
func (s *TagService) Search(ctx context.Context, query string, limit int) ([]domain.TagCount, error) {
	normalized, err := domain.NormalizeTagName(query)
	if err != nil {
		return nil, err
	}
	return s.tags.Search(ctx, normalized, limit)
}

// GetByName returns the tag with the given name.
func (s *TagService) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	normalized, err := domain.NormalizeTagName(name)
	if err != nil {
		return nil, err
	}
	return s.tags.GetByName(ctx, normalized)
}

// ListWithCounts returns all tags with their photo counts.
func (s *TagService) ListWithCounts(ctx context.Context) ([]domain.TagCount, error) {
	return s.tags.ListWithCounts(ctx)
}

func (s *TagService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		logger.CtxWarn(ctx, "Hot tags cache invalidation failed: %v", err)
	}
}
