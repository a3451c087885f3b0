package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRepository handles tags and their links to photos.
type TagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a new TagRepository.
func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// GetOrCreate returns the tag with the given normalized name, creating it if needed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: normalized tag name.
//
// Returns:
//   - *domain.Tag: existing or new tag.
//   - error: non-nil if the lookup or insert fails.
func (r *TagRepository) GetOrCreate(ctx context.Context, name string) (*domain.Tag, error) {
	return getOrCreateTag(r.db.WithContext(ctx), name)
}

func getOrCreateTag(db *gorm.DB, name string) (*domain.Tag, error) {
	tag := domain.Tag{Name: name, CreatedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tag).Error; err != nil {
		return nil, fmt.Errorf("failed to create tag %q: %w", name, err)
	}

	var existing domain.Tag
	if err := db.First(&existing, "name = ?", name).Error; err != nil {
		return nil, fmt.Errorf("failed to load tag %q: %w", name, err)
	}
	return &existing, nil
}

// AttachToPhoto links the named tags to a photo. Existing links are kept as they are.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - photoID: photo to tag.
//   - names: normalized tag names.
//   - source: how the tags were produced.
//
// Returns:
//   - int: number of new links.
//   - error: non-nil if any insert fails; the whole call is rolled back.
func (r *TagRepository) AttachToPhoto(ctx context.Context, photoID string, names []string, source domain.TagSource) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}

	added := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			tag, err := getOrCreateTag(tx, name)
			if err != nil {
				return err
			}
			link := domain.PhotoTag{
				PhotoID:   photoID,
				TagID:     tag.ID,
				Source:    source,
				CreatedAt: time.Now(),
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link)
			if res.Error != nil {
				return fmt.Errorf("failed to link tag %q: %w", name, res.Error)
			}
			added += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// DetachFromPhoto removes one tag link.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - photoID: photo ID.
//   - tagID: tag ID.
//
// Returns:
//   - error: domain.ErrTagNotFound if the photo does not carry the tag.
func (r *TagRepository) DetachFromPhoto(ctx context.Context, photoID string, tagID uint) error {
	res := r.db.WithContext(ctx).
		Where("photo_id = ? AND tag_id = ?", photoID, tagID).
		Delete(&domain.PhotoTag{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTagNotFound
	}
	return nil
}

// GetByName retrieves a tag by normalized name.
func (r *TagRepository) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	var tag domain.Tag
	if err := r.db.WithContext(ctx).First(&tag, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTagNotFound
		}
		return nil, err
	}
	return &tag, nil
}

// ListForPhoto returns the links of a photo, with their sources.
func (r *TagRepository) ListForPhoto(ctx context.Context, photoID string) ([]domain.PhotoTag, error) {
	var links []domain.PhotoTag
	if err := r.db.WithContext(ctx).
		Where("photo_id = ?", photoID).
		Order("created_at ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// HotTags returns the tags carried by the most photos, ties broken by name.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of tags.
//
// Returns:
//   - []domain.TagCount: tags with their photo counts, all counts > 0.
//   - error: non-nil if the query fails.
func (r *TagRepository) HotTags(ctx context.Context, limit int) ([]domain.TagCount, error) {
	var tags []domain.TagCount
	if err := r.countQuery(ctx).
		Having("COUNT(photo_tags.photo_id) > 0").
		Order("photo_count DESC, tags.name ASC").
		Limit(limit).
		Scan(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to query hot tags: %w", err)
	}
	return tags, nil
}

// Search returns tags whose name contains query, prefix matches first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: normalized search text.
//   - limit: maximum number of tags.
//
// Returns:
//   - []domain.TagCount: matching tags with their photo counts.
//   - error: non-nil if the query fails.
func (r *TagRepository) Search(ctx context.Context, query string, limit int) ([]domain.TagCount, error) {
	pattern := "%" + escapeLike(query) + "%"
	prefix := escapeLike(query) + "%"

	var tags []domain.TagCount
	if err := r.countQuery(ctx).
		Where("tags.name LIKE ? ESCAPE '\\'", pattern).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "CASE WHEN tags.name LIKE ? ESCAPE '\\' THEN 0 ELSE 1 END, photo_count DESC, tags.name ASC",
			Vars: []interface{}{prefix},
		}}).
		Limit(limit).
		Scan(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to search tags: %w", err)
	}
	return tags, nil
}

// ListWithCounts returns every tag with its photo count, including unused tags.
func (r *TagRepository) ListWithCounts(ctx context.Context) ([]domain.TagCount, error) {
	var tags []domain.TagCount
	if err := r.countQuery(ctx).
		Order("photo_count DESC, tags.name ASC").
		Scan(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

func (r *TagRepository) countQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("tags").
		Select("tags.id AS id, tags.name AS name, COUNT(photo_tags.photo_id) AS photo_count").
		Joins("LEFT JOIN photo_tags ON photo_tags.tag_id = tags.id").
		Group("tags.id, tags.name")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
