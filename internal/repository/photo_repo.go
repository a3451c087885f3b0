package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PhotoRepository handles photo data operations.
type PhotoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository creates a new PhotoRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *PhotoRepository: repository instance bound to db.
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create inserts a new photo record. Tags are linked separately through TagRepository.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - photo: photo record to persist.
//
// Returns:
//   - error: non-nil if the insert fails.
func (r *PhotoRepository) Create(ctx context.Context, photo *domain.Photo) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(photo).Error
}

// UpdateDescription replaces the user description. Alt-text is left untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: photo ID.
//   - description: new description.
//
// Returns:
//   - error: domain.ErrPhotoNotFound if no row matched.
func (r *PhotoRepository) UpdateDescription(ctx context.Context, id, description string) error {
	res := r.db.WithContext(ctx).Model(&domain.Photo{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"description": description, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrPhotoNotFound
	}
	return nil
}

// SetAltText stores alt-text only if none is stored yet.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: photo ID.
//   - altText: generated alt-text.
//
// Returns:
//   - bool: true if the value was written.
//   - error: non-nil if the update fails.
func (r *PhotoRepository) SetAltText(ctx context.Context, id, altText string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Photo{}).
		Where("id = ? AND (alt_text IS NULL OR alt_text = '')", id).
		Updates(map[string]interface{}{"alt_text": altText, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetDetectedObjects stores the detection result and its timestamp.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: photo ID.
//   - objects: merged detection result.
//   - at: time of the detection run.
//
// Returns:
//   - error: non-nil if the update fails.
func (r *PhotoRepository) SetDetectedObjects(ctx context.Context, id string, objects domain.DetectedObjects, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Photo{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"detected_objects":    objects,
			"objects_detected_at": at,
			"updated_at":          time.Now(),
		}).Error
}

// GetByID retrieves a photo by its ID with its tags.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: photo ID.
//
// Returns:
//   - *domain.Photo: photo record if found.
//   - error: domain.ErrPhotoNotFound if missing.
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*domain.Photo, error) {
	var photo domain.Photo
	if err := r.db.WithContext(ctx).Preload("Tags", orderTags).First(&photo, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPhotoNotFound
		}
		return nil, err
	}
	return &photo, nil
}

// GetByMD5Hash retrieves a photo by its MD5 hash for deduplication.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - md5Hash: MD5 hash of the original file.
//
// Returns:
//   - *domain.Photo: photo record if found.
//   - error: domain.ErrPhotoNotFound if missing.
func (r *PhotoRepository) GetByMD5Hash(ctx context.Context, md5Hash string) (*domain.Photo, error) {
	var photo domain.Photo
	if err := r.db.WithContext(ctx).Preload("Tags", orderTags).First(&photo, "md5_hash = ?", md5Hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPhotoNotFound
		}
		return nil, err
	}
	return &photo, nil
}

// List retrieves photos newest first, optionally filtered by tag name.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tag: normalized tag name; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
//
// Returns:
//   - []domain.Photo: matching photos with tags.
//   - int64: total number of matching photos.
//   - error: non-nil if the query fails.
func (r *PhotoRepository) List(ctx context.Context, tag string, limit, offset int) ([]domain.Photo, int64, error) {
	base := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&domain.Photo{})
		if tag != "" {
			tagged := r.db.Table("photo_tags").
				Select("photo_tags.photo_id").
				Joins("JOIN tags ON tags.id = photo_tags.tag_id").
				Where("tags.name = ?", tag)
			query = query.Where("id IN (?)", tagged)
		}
		return query
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count photos: %w", err)
	}

	var photos []domain.Photo
	if err := base().
		Preload("Tags", orderTags).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&photos).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, total, nil
}

// GetByIDs retrieves photos by a list of IDs, preserving the order of ids.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: list of photo IDs.
//
// Returns:
//   - []domain.Photo: matching photos; unknown IDs are skipped.
//   - error: non-nil if the query fails.
func (r *PhotoRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Photo, error) {
	if len(ids) == 0 {
		return []domain.Photo{}, nil
	}
	var photos []domain.Photo
	if err := r.db.WithContext(ctx).Preload("Tags", orderTags).Where("id IN ?", ids).Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to get photos by IDs: %w", err)
	}

	byID := make(map[string]domain.Photo, len(photos))
	for _, p := range photos {
		byID[p.ID] = p
	}
	ordered := make([]domain.Photo, 0, len(photos))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// ListPendingAnalysis returns photos missing alt-text (with no description) or detection results,
// oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - needAltText: include photos that still need alt-text.
//   - needDetection: include photos never run through object detection.
//   - limit: maximum number of records to return.
//
// Returns:
//   - []domain.Photo: photos to process.
//   - error: non-nil if the query fails.
func (r *PhotoRepository) ListPendingAnalysis(ctx context.Context, needAltText, needDetection bool, limit int) ([]domain.Photo, error) {
	if !needAltText && !needDetection {
		return []domain.Photo{}, nil
	}

	query := r.db.WithContext(ctx).Model(&domain.Photo{})
	altCond := "(description = '' AND (alt_text IS NULL OR alt_text = ''))"
	detCond := "objects_detected_at IS NULL"
	switch {
	case needAltText && needDetection:
		query = query.Where(altCond + " OR " + detCond)
	case needAltText:
		query = query.Where(altCond)
	default:
		query = query.Where(detCond)
	}

	var photos []domain.Photo
	if err := query.Preload("Tags", orderTags).Order("created_at ASC").Limit(limit).Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending photos: %w", err)
	}
	return photos, nil
}

// Count returns the total number of photos.
func (r *PhotoRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Photo{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a photo and its tag links. Tag rows are kept.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: photo ID to delete.
//
// Returns:
//   - error: domain.ErrPhotoNotFound if no row matched.
func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("photo_id = ?", id).Delete(&domain.PhotoTag{}).Error; err != nil {
			return fmt.Errorf("failed to delete photo tags: %w", err)
		}
		res := tx.Delete(&domain.Photo{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrPhotoNotFound
		}
		return nil
	})
}

func orderTags(db *gorm.DB) *gorm.DB {
	return db.Order("tags.name ASC")
}
