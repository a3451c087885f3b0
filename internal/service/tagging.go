package service

import (
	"context"
	"fmt"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
)

// DetectionStore persists detection results.
type DetectionStore interface {
	SetDetectedObjects(ctx context.Context, id string, objects domain.DetectedObjects, at time.Time) error
}

// TaggingService turns detected objects into photo tags.
type TaggingService struct {
	detector ObjectDetector
	photos   DetectionStore
	tags     *TagService
	enabled  bool
}

// NewTaggingService creates a TaggingService. When enabled is false TagPhoto is a no-op
// returning domain.ErrDetectionUnavailable.
func NewTaggingService(detector ObjectDetector, photos DetectionStore, tags *TagService, enabled bool) *TaggingService {
	return &TaggingService{detector: detector, photos: photos, tags: tags, enabled: enabled}
}

// Available reports whether detection is enabled and the detector has credentials.
func (s *TaggingService) Available() bool {
	return s.enabled && s.detector != nil && s.detector.Available()
}

// TaggingResult summarizes one detection run.
type TaggingResult struct {
	Objects   domain.DetectedObjects `json:"objects"`
	AddedTags int                    `json:"added_tags"`
}

// TagPhoto detects objects in image, stores the merged result on the photo and adds one
// detection tag per label. Existing tags are never removed and duplicates are not created.
// photo is updated in place.
func (s *TaggingService) TagPhoto(ctx context.Context, photo *domain.Photo, image []byte) (*TaggingResult, error) {
	if !s.Available() {
		return nil, domain.ErrDetectionUnavailable
	}

	objects, err := s.detector.DetectObjects(ctx, image)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	merged := mergeObjects(photo.DetectedObjects, objects)
	if err := s.photos.SetDetectedObjects(ctx, photo.ID, merged, now); err != nil {
		return nil, fmt.Errorf("failed to store detected objects: %w", err)
	}
	photo.DetectedObjects = merged
	photo.ObjectsDetectedAt = &now

	added, err := s.tags.Attach(ctx, photo.ID, objects.Names(), domain.TagSourceDetection)
	if err != nil {
		return nil, err
	}

	if len(objects) == 0 {
		logger.CtxInfo(ctx, "No objects detected with sufficient confidence")
	} else {
		logger.With(logger.Fields{"tags_added": added}).WithCount(len(objects)).
			Info(ctx, "Photo tagged from detected objects")
	}
	return &TaggingResult{Objects: objects, AddedTags: added}, nil
}
