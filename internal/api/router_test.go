package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/momentsapp/moments/internal/api/middleware"
	"github.com/momentsapp/moments/internal/cache"
	"github.com/momentsapp/moments/internal/config"
	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/report"
	"github.com/momentsapp/moments/internal/repository"
	"github.com/momentsapp/moments/internal/search"
	"github.com/momentsapp/moments/internal/service"
	"github.com/momentsapp/moments/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	objects  domain.DetectedObjects
	err      error
	onDetect func()
}

func (s *stubDetector) DetectObjects(ctx context.Context, image []byte) (domain.DetectedObjects, error) {
	if s.onDetect != nil {
		s.onDetect()
	}
	return s.objects, s.err
}

func (s *stubDetector) Available() bool { return true }

type stubCaptioner struct{}

func (stubCaptioner) GenerateAltText(ctx context.Context, image []byte, format string, hints []string) (string, error) {
	return "A " + strings.Join(hints, " and ") + " on a table.", nil
}

func (stubCaptioner) Available() bool { return true }

func newTestRouter(t *testing.T, detector *stubDetector) *gin.Engine {
	t.Helper()
	return testRouter(newTestServices(t, detector))
}

func newTestServices(t *testing.T, detector *stubDetector) (*Services, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(dir, "moments.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store, err := storage.NewLocalStorage(filepath.Join(dir, "uploads"), "/uploads")
	require.NoError(t, err)
	index, err := search.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	photos := repository.NewPhotoRepository(db)
	tags := service.NewTagService(repository.NewTagRepository(db), cache.NewMemoryHotTags(time.Minute))
	tagging := service.NewTaggingService(detector, photos, tags, true)
	altText := service.NewAltTextService(stubCaptioner{}, photos, true)
	photoService := service.NewPhotoService(service.PhotoServiceDeps{
		Photos:  photos,
		Storage: store,
		Tags:    tags,
		Tagging: tagging,
		AltText: altText,
		Index:   index,
	}, service.PhotoConfig{MaxSize: 512 << 10})

	return &Services{
		Photos:   photoService,
		Tags:     tags,
		Search:   service.NewSearchService(photos, index, tags),
		Tagging:  tagging,
		AltText:  altText,
		Backfill: service.NewBackfillService(photos, store, tagging, altText, photoService),
		DB:       sqlDB,
	}, store.BasePath()
}

func testRouter(svc *Services, uploadsDir string) *gin.Engine {
	return SetupRouter(svc, RouterConfig{
		Mode:          "test",
		CORS:          middleware.CORSConfig{AllowAllOrigins: true},
		MaxUploadSize: 512 << 10,
		UploadsDir:    uploadsDir,
	}, logger.GetDefault())
}

func jpegBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 6), B: uint8(y * 8), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("photo", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", "user-1")
	return req
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type uploadBody struct {
	Photo struct {
		ID                   string `json:"id"`
		AuthorID             string `json:"author_id"`
		AltText              string `json:"alt_text"`
		EffectiveDescription string `json:"effective_description"`
		URL                  string `json:"url"`
		Tags                 []struct {
			ID   uint   `json:"id"`
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"photo"`
	Analysis struct {
		DetectionError string `json:"detection_error"`
	} `json:"analysis"`
}

func TestUploadAndRead(t *testing.T) {
	r := newTestRouter(t, &stubDetector{objects: domain.DetectedObjects{{Name: "cup", Confidence: 0.9}, {Name: "laptop", Confidence: 0.8}}})

	w := do(r, uploadRequest(t, jpegBytes(t, 10), map[string]string{"tags": "work, coffee"}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body uploadBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body.Photo.AuthorID)
	assert.Equal(t, "A cup and laptop on a table.", body.Photo.AltText)
	assert.Equal(t, body.Photo.AltText, body.Photo.EffectiveDescription)
	assert.Equal(t, "/uploads/"+body.Photo.ID+".jpg", body.Photo.URL)
	names := make([]string, 0, len(body.Photo.Tags))
	for _, tag := range body.Photo.Tags {
		names = append(names, tag.Name)
	}
	assert.Equal(t, []string{"coffee", "cup", "laptop", "work"}, names)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+body.Photo.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, body.Photo.URL, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/tags/hot?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"coffee"`)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/tags/Laptop/photos", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), body.Photo.ID)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=laptop", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), body.Photo.ID)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=lap&category=tag", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"laptop"`)

	patch := httptest.NewRequest(http.MethodPatch, "/api/v1/photos/"+body.Photo.ID, strings.NewReader(`{"description":"Monday desk"}`))
	patch.Header.Set("Content-Type", "application/json")
	w = do(r, patch)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"effective_description":"Monday desk"`)
	assert.Contains(t, w.Body.String(), `"alt_text":"A cup and laptop on a table."`)

	w = do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/photos/"+body.Photo.ID+"/tags/"+itoa(body.Photo.Tags[0].ID), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"name":"coffee"`)

	w = do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/photos/"+body.Photo.ID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+body.Photo.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"photo not found"}`, w.Body.String())
}

func TestUpload_DetectionFailureStillCreates(t *testing.T) {
	r := newTestRouter(t, &stubDetector{err: errors.New("azure computer vision: HTTP 401: 401: Access denied")})

	w := do(r, uploadRequest(t, jpegBytes(t, 20), map[string]string{"description": "Lunch"}))
	require.Equal(t, http.StatusCreated, w.Code)

	var body uploadBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Photo.Tags)
	assert.Empty(t, body.Photo.AltText)
	assert.Contains(t, body.Analysis.DetectionError, "Access denied")
}

func TestUpload_Rejections(t *testing.T) {
	r := newTestRouter(t, &stubDetector{})

	w := do(r, uploadRequest(t, []byte("plain text, not an image"), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, uploadRequest(t, make([]byte, 600<<10), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = do(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	r := newTestRouter(t, &stubDetector{objects: domain.DetectedObjects{{Name: "tree", Confidence: 0.7}}})

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/admin/vision/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"object_detection_available":true,"alt_text_available":true,"similarity_available":false}`, w.Body.String())

	w = do(r, uploadRequest(t, jpegBytes(t, 30), nil))
	require.Equal(t, http.StatusCreated, w.Code)
	var body uploadBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/admin/photos/"+body.Photo.ID+"/analyze", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tags_added":0`)

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/admin/backfill", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/admin/backfill/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_run_status":"success"`)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/admin/tags/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+body.Photo.ID+"/similar", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBackfillStatus_ReportsScheduledRun(t *testing.T) {
	detector := &stubDetector{err: errors.New("service unavailable")}
	svc, uploadsDir := newTestServices(t, detector)
	r := testRouter(svc, uploadsDir)

	w := do(r, uploadRequest(t, jpegBytes(t, 90), nil))
	require.Equal(t, http.StatusCreated, w.Code)

	var during backfillStatusBody
	conflict := 0
	detector.err = nil
	detector.objects = domain.DetectedObjects{{Name: "lamp", Confidence: 0.8}}
	detector.onDetect = func() {
		w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/admin/backfill/status", nil))
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &during))
		conflict = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/admin/backfill", nil)).Code
	}

	stats, err := svc.Backfill.Run(context.Background(), &service.BackfillOptions{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PhotosTagged)
	assert.True(t, during.IsRunning)
	assert.Equal(t, http.StatusConflict, conflict)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/admin/backfill/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var after backfillStatusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.False(t, after.IsRunning)
	assert.Empty(t, after.LastRunStatus)
}

type backfillStatusBody struct {
	IsRunning     bool   `json:"is_running"`
	LastRunStatus string `json:"last_run_status"`
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &stubDetector{})
	w := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
