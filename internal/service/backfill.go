package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/storage"
)

const defaultBackfillLimit = 50

// BackfillService analyzes photos uploaded while detection or alt-text was unavailable.
type BackfillService struct {
	photos  PhotoStore
	storage storage.ObjectStorage
	tagging *TaggingService
	altText *AltTextService
	indexer func(ctx context.Context, photo *domain.Photo)

	// running guards against overlapping runs from the scheduler and the admin endpoint.
	mu      sync.Mutex
	running bool
}

// NewBackfillService creates a BackfillService. The photo service is used to reindex
// photos after analysis.
func NewBackfillService(photos PhotoStore, objectStorage storage.ObjectStorage, tagging *TaggingService, altText *AltTextService, photoService *PhotoService) *BackfillService {
	s := &BackfillService{
		photos:  photos,
		storage: objectStorage,
		tagging: tagging,
		altText: altText,
	}
	if photoService != nil {
		s.indexer = photoService.indexPhoto
	}
	return s
}

// BackfillOptions controls one run.
type BackfillOptions struct {
	Limit  int
	DryRun bool
}

// BackfillStats holds statistics for a backfill run
type BackfillStats struct {
	TotalItems       int       `json:"total"`
	ProcessedItems   int       `json:"processed"`
	AltTextGenerated int       `json:"alt_text_generated"`
	PhotosTagged     int       `json:"photos_tagged"`
	TagsAdded        int       `json:"tags_added"`
	FailedItems      int       `json:"failed"`
	PendingIDs       []string  `json:"pending_ids,omitempty"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
}

// ErrBackfillRunning is returned when a run is already in progress.
var ErrBackfillRunning = fmt.Errorf("backfill already running")

// Running reports whether a run is in progress, whoever started it.
func (s *BackfillService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run processes up to opts.Limit photos that lack alt-text or have never been through
// detection. Photos are handled one at a time; a failure on one photo is logged and the
// run continues. With DryRun only the pending photo ids are reported.
func (s *BackfillService) Run(ctx context.Context, opts *BackfillOptions) (*BackfillStats, error) {
	if opts == nil {
		opts = &BackfillOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultBackfillLimit
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBackfillRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx = logger.SetComponent(ctx, "backfill")
	stats := &BackfillStats{StartTime: time.Now()}

	needAltText := s.altText != nil && s.altText.Available()
	needDetection := s.tagging != nil && s.tagging.Available()
	if !needAltText && !needDetection && !opts.DryRun {
		logger.CtxWarn(ctx, "Neither object detection nor alt text generation is available, nothing to do")
		stats.EndTime = time.Now()
		return stats, nil
	}
	if opts.DryRun {
		needAltText, needDetection = true, true
	}

	photos, err := s.photos.ListPendingAnalysis(ctx, needAltText, needDetection, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending photos: %w", err)
	}
	stats.TotalItems = len(photos)

	logger.FromContext(ctx).WithFields(logger.Fields{
		"pending":   len(photos),
		"limit":     limit,
		"dry_run":   opts.DryRun,
		"alt_text":  needAltText,
		"detection": needDetection,
	}).Info("Starting backfill")

	for i := range photos {
		if ctx.Err() != nil {
			break
		}
		photo := &photos[i]
		if opts.DryRun {
			stats.PendingIDs = append(stats.PendingIDs, photo.ID)
			continue
		}
		s.processPhoto(logger.SetPhotoID(ctx, photo.ID), photo, needAltText, needDetection, stats)
	}

	stats.EndTime = time.Now()
	logger.FromContext(ctx).WithFields(logger.Fields{
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"alt_text":  stats.AltTextGenerated,
		"tagged":    stats.PhotosTagged,
		"failed":    stats.FailedItems,
		"duration":  stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Backfill completed")

	return stats, nil
}

func (s *BackfillService) processPhoto(ctx context.Context, photo *domain.Photo, needAltText, needDetection bool, stats *BackfillStats) {
	image, err := storage.ReadAll(ctx, s.storage, photo.Filename)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to download from storage")
		stats.FailedItems++
		return
	}

	failed, written := false, false
	if needDetection && photo.ObjectsDetectedAt == nil {
		result, err := s.tagging.TagPhoto(ctx, photo, image)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Object detection failed")
			failed = true
		} else {
			stats.PhotosTagged++
			stats.TagsAdded += result.AddedTags
			written = true
		}
	}

	if needAltText && photo.NeedsAltText() {
		generated, err := s.altText.EnsureAltText(ctx, photo, image)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Alt text generation failed")
			failed = true
		} else if generated {
			stats.AltTextGenerated++
			written = true
		}
	}

	if failed {
		stats.FailedItems++
	} else {
		stats.ProcessedItems++
	}

	// A partial result is still searchable.
	if written && s.indexer != nil {
		stored, err := s.photos.GetByID(ctx, photo.ID)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to reload photo for indexing")
			return
		}
		s.indexer(ctx, stored)
	}
}
