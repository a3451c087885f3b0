package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
)

// Search categories.
const (
	SearchCategoryPhoto = "photo"
	SearchCategoryTag   = "tag"
)

// ErrInvalidQuery is returned for an empty query or unknown category.
var ErrInvalidQuery = errors.New("invalid search query")

// SearchService answers the search endpoint for both photos and tags.
type SearchService struct {
	photos PhotoStore
	index  TextIndex
	tags   *TagService
}

// NewSearchService creates a SearchService.
func NewSearchService(photos PhotoStore, index TextIndex, tags *TagService) *SearchService {
	return &SearchService{photos: photos, index: index, tags: tags}
}

// SearchRequest is one search query.
type SearchRequest struct {
	Query    string
	Category string
	Limit    int
	Offset   int
}

// SearchResponse holds either photos or tags, depending on the category.
type SearchResponse struct {
	Query    string
	Category string
	Photos   []domain.Photo
	Tags     []domain.TagCount
	Total    int64
}

// Search runs a photo or tag search.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	category := req.Category
	if category == "" {
		category = SearchCategoryPhoto
	}
	limit, offset := clampPage(req.Limit, req.Offset)

	resp := &SearchResponse{Query: q, Category: category}

	switch category {
	case SearchCategoryPhoto:
		result, err := s.index.Search(ctx, q, limit, offset)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(result.Hits))
		for _, h := range result.Hits {
			ids = append(ids, h.ID)
		}
		photos, err := s.photos.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		resp.Photos = photos
		resp.Total = int64(result.Total)

	case SearchCategoryTag:
		tags, err := s.tags.Search(ctx, q, limit)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTag) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
			}
			return nil, err
		}
		resp.Tags = tags
		resp.Total = int64(len(tags))

	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidQuery, category)
	}

	logger.With(logger.Fields{
		"query":    q,
		"category": category,
	}).WithCount(int(resp.Total)).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "Search completed")
	return resp, nil
}
