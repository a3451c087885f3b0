package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/imaging"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/repository"
	"github.com/momentsapp/moments/internal/search"
	"github.com/momentsapp/moments/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PhotoStore is the photo persistence used by PhotoService.
type PhotoStore interface {
	AltTextStore
	DetectionStore
	Create(ctx context.Context, photo *domain.Photo) error
	GetByID(ctx context.Context, id string) (*domain.Photo, error)
	GetByMD5Hash(ctx context.Context, md5Hash string) (*domain.Photo, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Photo, error)
	List(ctx context.Context, tag string, limit, offset int) ([]domain.Photo, int64, error)
	ListPendingAnalysis(ctx context.Context, needAltText, needDetection bool, limit int) ([]domain.Photo, error)
	Count(ctx context.Context) (int64, error)
	UpdateDescription(ctx context.Context, id, description string) error
	Delete(ctx context.Context, id string) error
}

// TextIndex is the full-text photo index.
type TextIndex interface {
	IndexPhoto(ctx context.Context, doc *search.PhotoDocument) error
	IndexPhotos(ctx context.Context, docs []*search.PhotoDocument) error
	DocumentCount() (uint64, error)
	DeletePhoto(ctx context.Context, id string) error
	Search(ctx context.Context, q string, limit, offset int) (*search.Result, error)
}

// VectorIndex stores photo embeddings for similarity queries.
type VectorIndex interface {
	Upsert(ctx context.Context, vector []float32, payload *repository.PhotoPayload) error
	Similar(ctx context.Context, photoID string, limit int) ([]repository.SimilarResult, error)
	Delete(ctx context.Context, photoID string) error
}

// PhotoConfig holds upload limits and rendition sizes.
type PhotoConfig struct {
	MaxSize int64
	// MaxPixels bounds width*height; zero means imaging.DefaultMaxPixels.
	MaxPixels  int
	SmallSize  int
	MediumSize int
	// Deduplicate returns the existing photo when the same bytes are uploaded again.
	Deduplicate bool
}

// PhotoService runs the upload pipeline and the photo lifecycle.
type PhotoService struct {
	photos   PhotoStore
	storage  storage.ObjectStorage
	tags     *TagService
	tagging  *TaggingService
	altText  *AltTextService
	index    TextIndex
	vectors  VectorIndex
	embedder Embedder
	cfg      PhotoConfig
}

// PhotoServiceDeps groups the collaborators of PhotoService. Vectors and Embedder are
// optional; similarity is disabled when either is nil.
type PhotoServiceDeps struct {
	Photos   PhotoStore
	Storage  storage.ObjectStorage
	Tags     *TagService
	Tagging  *TaggingService
	AltText  *AltTextService
	Index    TextIndex
	Vectors  VectorIndex
	Embedder Embedder
}

// NewPhotoService creates a PhotoService.
func NewPhotoService(deps PhotoServiceDeps, cfg PhotoConfig) *PhotoService {
	if cfg.SmallSize <= 0 {
		cfg.SmallSize = 400
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = 800
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 3 << 20
	}
	return &PhotoService{
		photos:   deps.Photos,
		storage:  deps.Storage,
		tags:     deps.Tags,
		tagging:  deps.Tagging,
		altText:  deps.AltText,
		index:    deps.Index,
		vectors:  deps.Vectors,
		embedder: deps.Embedder,
		cfg:      cfg,
	}
}

// SimilarityEnabled reports whether similar photo queries are served.
func (s *PhotoService) SimilarityEnabled() bool {
	return s.vectors != nil && s.embedder != nil
}

// UploadInput is one photo upload.
type UploadInput struct {
	Data        []byte
	Description string
	Tags        []string
	AuthorID    string
}

// UploadResult is returned by Upload.
type UploadResult struct {
	Photo *domain.Photo
	// Duplicate is set when an identical image already existed and was returned instead.
	Duplicate bool
	// Analysis reports what the vision integrations did. Failures are recorded here and
	// never fail the upload.
	Analysis *AnalysisResult
}

// AnalysisResult summarizes detection and alt-text generation for one photo.
type AnalysisResult struct {
	Objects          domain.DetectedObjects `json:"objects,omitempty"`
	TagsAdded        int                    `json:"tags_added"`
	AltTextGenerated bool                   `json:"alt_text_generated"`
	DetectionError   string                 `json:"detection_error,omitempty"`
	AltTextError     string                 `json:"alt_text_error,omitempty"`
}

// Upload validates an image, stores it with its renditions, attaches user tags, runs
// object detection and alt-text generation, and indexes the result.
//
// Parameters:
//   - ctx: request context, bounds every external call
//   - in: image bytes plus optional description, tags and author
//
// Returns:
//   - *UploadResult: the stored photo with tags loaded
//   - error: domain.ErrImageTooLarge, domain.ErrInvalidImage, domain.ErrInvalidDescription,
//     or a storage/database failure
func (s *PhotoService) Upload(ctx context.Context, in *UploadInput) (*UploadResult, error) {
	start := time.Now()

	if int64(len(in.Data)) > s.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrImageTooLarge, len(in.Data), s.cfg.MaxSize)
	}
	if utf8.RuneCountInString(in.Description) > domain.MaxDescriptionLength {
		return nil, domain.ErrInvalidDescription
	}

	info, err := imaging.Inspect(in.Data, s.cfg.MaxPixels)
	if err != nil {
		return nil, err
	}

	if s.cfg.Deduplicate {
		existing, err := s.photos.GetByMD5Hash(ctx, info.MD5)
		if err == nil {
			logger.With(logger.Fields{logger.FieldPhotoID: existing.ID}).Info(ctx, "Duplicate upload, returning existing photo")
			return &UploadResult{Photo: existing, Duplicate: true, Analysis: &AnalysisResult{}}, nil
		}
		if !errors.Is(err, domain.ErrPhotoNotFound) {
			return nil, fmt.Errorf("failed to check duplicate: %w", err)
		}
	}

	img, err := imaging.Decode(in.Data)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	ctx = logger.SetPhotoID(ctx, id)

	blurHash, err := imaging.BlurHash(img)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to compute blurhash: %v", err)
	}

	photo := &domain.Photo{
		ID:          id,
		AuthorID:    in.AuthorID,
		Filename:    id + "." + imaging.Extension(info.Format),
		Description: in.Description,
		Format:      info.Format,
		Width:       info.Width,
		Height:      info.Height,
		FileSize:    info.Size,
		MD5Hash:     info.MD5,
		BlurHash:    blurHash,
	}

	uploaded, err := s.storeFiles(ctx, photo, in.Data, info.ContentType, img)
	if err != nil {
		s.rollbackFiles(ctx, uploaded)
		return nil, err
	}

	if err := s.photos.Create(ctx, photo); err != nil {
		s.rollbackFiles(ctx, uploaded)
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}

	if _, err := s.tags.Attach(ctx, photo.ID, in.Tags, domain.TagSourceUser); err != nil {
		if delErr := s.photos.Delete(ctx, photo.ID); delErr != nil {
			logger.FromContext(ctx).WithError(delErr).Error("Failed to rollback photo row")
		}
		s.rollbackFiles(ctx, uploaded)
		return nil, err
	}

	analysis := s.analyze(ctx, photo, in.Data)

	stored, err := s.photos.GetByID(ctx, photo.ID)
	if err != nil {
		return nil, err
	}
	s.indexPhoto(ctx, stored)

	logger.With(logger.Fields{
		"format":         stored.Format,
		"tags":           len(stored.Tags),
		"alt_text":       stored.HasAltText(),
		logger.FieldSize: stored.FileSize,
	}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "Photo uploaded")

	return &UploadResult{Photo: stored, Analysis: analysis}, nil
}

// storeFiles uploads the original and both renditions. It returns the keys written so far
// so a failed upload can be rolled back.
func (s *PhotoService) storeFiles(ctx context.Context, photo *domain.Photo, data []byte, contentType string, img image.Image) ([]string, error) {
	var uploaded []string

	if err := s.storage.Upload(ctx, photo.Filename, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return uploaded, fmt.Errorf("failed to upload original: %w", err)
	}
	uploaded = append(uploaded, photo.Filename)

	for _, r := range []struct {
		suffix string
		size   int
		target *string
	}{
		{"_s", s.cfg.SmallSize, &photo.FilenameS},
		{"_m", s.cfg.MediumSize, &photo.FilenameM},
	} {
		rendition, err := imaging.Render(img, photo.Format, r.size)
		if err != nil {
			return uploaded, err
		}
		key := photo.ID + r.suffix + "." + rendition.Extension
		if err := s.storage.Upload(ctx, key, bytes.NewReader(rendition.Data), int64(len(rendition.Data)), rendition.ContentType); err != nil {
			return uploaded, fmt.Errorf("failed to upload rendition: %w", err)
		}
		uploaded = append(uploaded, key)
		*r.target = key
	}
	return uploaded, nil
}

func (s *PhotoService) rollbackFiles(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			logger.FromContext(ctx).WithField("storage_key", key).WithError(err).Error("Failed to rollback storage upload")
		}
	}
}

// analyze runs detection first so detected labels can guide alt-text generation.
// Failures are logged and recorded in the result only.
func (s *PhotoService) analyze(ctx context.Context, photo *domain.Photo, image []byte) *AnalysisResult {
	result := &AnalysisResult{}

	if s.tagging != nil && s.tagging.Available() {
		tagged, err := s.tagging.TagPhoto(ctx, photo, image)
		if err != nil {
			logger.CtxWarn(ctx, "Object detection failed for photo %s: %v", photo.ID, err)
			result.DetectionError = err.Error()
		} else {
			result.Objects = tagged.Objects
			result.TagsAdded = tagged.AddedTags
		}
	} else {
		logger.CtxDebug(ctx, "Object detection not available, skipping")
	}

	if photo.NeedsAltText() {
		if s.altText != nil && s.altText.Available() {
			generated, err := s.altText.EnsureAltText(ctx, photo, image)
			if err != nil {
				logger.CtxWarn(ctx, "Alt text generation failed for photo %s: %v", photo.ID, err)
				result.AltTextError = err.Error()
			}
			result.AltTextGenerated = generated
		} else {
			logger.CtxDebug(ctx, "Alt text generation not available, skipping")
		}
	}
	return result
}

// indexPhoto updates the full-text and vector indexes. Failures are logged.
func (s *PhotoService) indexPhoto(ctx context.Context, photo *domain.Photo) {
	if s.index != nil {
		if err := s.index.IndexPhoto(ctx, search.NewPhotoDocument(photo)); err != nil {
			logger.CtxError(ctx, "Failed to index photo %s: %v", photo.ID, err)
		}
	}

	if !s.SimilarityEnabled() {
		return
	}
	text := PhotoEmbeddingText(photo)
	if text == "" {
		return
	}
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to embed photo %s: %v", photo.ID, err)
		return
	}
	payload := &repository.PhotoPayload{
		PhotoID:     photo.ID,
		Description: photo.EffectiveDescription(),
		Tags:        photo.TagNames(),
		Objects:     photo.DetectedObjects.Names(),
	}
	if err := s.vectors.Upsert(ctx, vector, payload); err != nil {
		logger.CtxWarn(ctx, "Failed to upsert photo vector %s: %v", photo.ID, err)
	}
}

// RebuildSearchIndex reindexes every photo when the full-text index holds fewer
// documents than the database, which happens after the index is recreated for a new
// mapping. It returns the number of photos indexed.
func (s *PhotoService) RebuildSearchIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	total, err := s.photos.Count(ctx)
	if err != nil {
		return 0, err
	}
	indexed, err := s.index.DocumentCount()
	if err != nil {
		return 0, err
	}
	if int64(indexed) >= total {
		return 0, nil
	}

	start := time.Now()
	const pageSize = 200
	count := 0
	for offset := 0; int64(offset) < total; offset += pageSize {
		photos, _, err := s.photos.List(ctx, "", pageSize, offset)
		if err != nil {
			return count, err
		}
		if len(photos) == 0 {
			break
		}
		docs := make([]*search.PhotoDocument, 0, len(photos))
		for i := range photos {
			docs = append(docs, search.NewPhotoDocument(&photos[i]))
		}
		if err := s.index.IndexPhotos(ctx, docs); err != nil {
			return count, err
		}
		count += len(docs)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).WithCount(count).Info(ctx, "Rebuilt search index")
	return count, nil
}

// Get returns one photo with its tags.
func (s *PhotoService) Get(ctx context.Context, id string) (*domain.Photo, error) {
	return s.photos.GetByID(ctx, id)
}

// PhotoPage is a page of photos.
type PhotoPage struct {
	Photos []domain.Photo
	Total  int64
	Limit  int
	Offset int
}

// List returns photos newest first, optionally only those carrying tag.
func (s *PhotoService) List(ctx context.Context, tag string, limit, offset int) (*PhotoPage, error) {
	limit, offset = clampPage(limit, offset)
	if tag != "" {
		normalized, err := domain.NormalizeTagName(tag)
		if err != nil {
			return nil, err
		}
		tag = normalized
	}
	photos, total, err := s.photos.List(ctx, tag, limit, offset)
	if err != nil {
		return nil, err
	}
	return &PhotoPage{Photos: photos, Total: total, Limit: limit, Offset: offset}, nil
}

// UpdateDescription replaces the user description. Alt-text is left untouched.
func (s *PhotoService) UpdateDescription(ctx context.Context, id, description string) (*domain.Photo, error) {
	if utf8.RuneCountInString(description) > domain.MaxDescriptionLength {
		return nil, domain.ErrInvalidDescription
	}
	if err := s.photos.UpdateDescription(ctx, id, description); err != nil {
		return nil, err
	}
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.indexPhoto(logger.SetPhotoID(ctx, id), photo)
	return photo, nil
}

// AddTags links user tags to a photo and returns the updated photo.
func (s *PhotoService) AddTags(ctx context.Context, id string, names []string) (*domain.Photo, int, error) {
	if _, err := s.photos.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	if len(domain.UniqueTagNames(names)) == 0 {
		return nil, 0, domain.ErrInvalidTag
	}
	added, err := s.tags.Attach(ctx, id, names, domain.TagSourceUser)
	if err != nil {
		return nil, 0, err
	}
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if added > 0 {
		s.indexPhoto(logger.SetPhotoID(ctx, id), photo)
	}
	return photo, added, nil
}

// RemoveTag unlinks a tag from a photo. The tag itself is kept.
func (s *PhotoService) RemoveTag(ctx context.Context, id string, tagID uint) (*domain.Photo, error) {
	if err := s.tags.Detach(ctx, id, tagID); err != nil {
		return nil, err
	}
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.indexPhoto(logger.SetPhotoID(ctx, id), photo)
	return photo, nil
}

// Delete removes the photo row, its tag links, its files and its index entries.
func (s *PhotoService) Delete(ctx context.Context, id string) error {
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ctx = logger.SetPhotoID(ctx, id)

	if err := s.photos.Delete(ctx, id); err != nil {
		return err
	}
	s.tags.invalidate(ctx)

	for _, key := range []string{photo.Filename, photo.FilenameS, photo.FilenameM} {
		if key == "" {
			continue
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			logger.CtxWarn(ctx, "Failed to delete stored file %s: %v", key, err)
		}
	}
	if s.index != nil {
		if err := s.index.DeletePhoto(ctx, id); err != nil {
			logger.CtxWarn(ctx, "Failed to remove photo from index: %v", err)
		}
	}
	if s.vectors != nil {
		if err := s.vectors.Delete(ctx, id); err != nil {
			logger.CtxWarn(ctx, "Failed to remove photo vector: %v", err)
		}
	}

	logger.CtxInfo(ctx, "Photo deleted")
	return nil
}

// Analyze re-runs detection on a stored photo and generates alt-text if it is still
// missing. The photo is reindexed afterwards.
func (s *PhotoService) Analyze(ctx context.Context, id string) (*domain.Photo, *AnalysisResult, error) {
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ctx = logger.SetPhotoID(ctx, id)

	image, err := storage.ReadAll(ctx, s.storage, photo.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read stored image: %w", err)
	}

	result := s.analyze(ctx, photo, image)

	updated, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.indexPhoto(ctx, updated)
	return updated, result, nil
}

// SimilarPhoto is a photo with its similarity score.
type SimilarPhoto struct {
	Photo domain.Photo
	Score float32
}

// Similar returns photos whose embeddings are closest to the given photo.
func (s *PhotoService) Similar(ctx context.Context, id string, limit int) ([]SimilarPhoto, error) {
	if !s.SimilarityEnabled() {
		return nil, ErrSimilarityUnavailable
	}
	if _, err := s.photos.GetByID(ctx, id); err != nil {
		return nil, err
	}
	limit, _ = clampPage(limit, 0)

	results, err := s.vectors.Similar(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	scores := make(map[string]float32, len(results))
	for _, r := range results {
		ids = append(ids, r.PhotoID)
		scores[r.PhotoID] = r.Score
	}
	photos, err := s.photos.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]SimilarPhoto, 0, len(photos))
	for _, p := range photos {
		out = append(out, SimilarPhoto{Photo: p, Score: scores[p.ID]})
	}
	return out, nil
}

// ErrSimilarityUnavailable is returned when no vector index is configured.
var ErrSimilarityUnavailable = errors.New("similarity search not available")

// View builds the API representation of a photo.
func (s *PhotoService) View(photo *domain.Photo) *domain.PhotoView {
	return &domain.PhotoView{
		Photo:                photo,
		EffectiveDescription: photo.EffectiveDescription(),
		URL:                  s.storage.GetURL(photo.Filename),
		SmallURL:             s.storage.GetURL(photo.FilenameS),
		MediumURL:            s.storage.GetURL(photo.FilenameM),
	}
}

// Views builds views for a list of photos.
func (s *PhotoService) Views(photos []domain.Photo) []*domain.PhotoView {
	views := make([]*domain.PhotoView, 0, len(photos))
	for i := range photos {
		views = append(views, s.View(&photos[i]))
	}
	return views
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
