package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/service"
)

// UserIDHeader identifies the uploading user. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

// PhotoHandler handles photo endpoints.
type PhotoHandler struct {
	photos  *service.PhotoService
	maxSize int64
}

// NewPhotoHandler creates a new photo handler.
// Parameters:
//   - photos: photo service instance.
//   - maxSize: largest accepted upload in bytes.
//
// Returns:
//   - *PhotoHandler: initialized handler.
func NewPhotoHandler(photos *service.PhotoService, maxSize int64) *PhotoHandler {
	return &PhotoHandler{photos: photos, maxSize: maxSize}
}

// UploadResponse is returned by POST /api/v1/photos.
type UploadResponse struct {
	Photo     *domain.PhotoView       `json:"photo"`
	Duplicate bool                    `json:"duplicate,omitempty"`
	Analysis  *service.AnalysisResult `json:"analysis,omitempty"`
}

// Upload handles POST /api/v1/photos (multipart: photo, description, tags).
func (h *PhotoHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, "Form field 'photo' is required")
		return
	}
	if file.Size > h.maxSize {
		respondError(c, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrImageTooLarge, file.Size, h.maxSize))
		return
	}

	f, err := file.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxSize+1))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.photos.Upload(c.Request.Context(), &service.UploadInput{
		Data:        data,
		Description: c.PostForm("description"),
		Tags:        domain.ParseTagList(c.PostForm("tags")),
		AuthorID:    c.GetHeader(UserIDHeader),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, UploadResponse{
		Photo:     h.photos.View(result.Photo),
		Duplicate: result.Duplicate,
		Analysis:  result.Analysis,
	})
}

// Get handles GET /api/v1/photos/:id.
func (h *PhotoHandler) Get(c *gin.Context) {
	photo, err := h.photos.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.photos.View(photo))
}

// List handles GET /api/v1/photos?limit=&offset=&tag=.
func (h *PhotoHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	h.list(c, c.Query("tag"), limit, offset)
}

func (h *PhotoHandler) list(c *gin.Context, tag string, limit, offset int) {
	page, err := h.photos.List(c.Request.Context(), tag, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"photos": h.photos.Views(page.Photos),
		"total":  page.Total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// UpdateRequest is the body of PATCH /api/v1/photos/:id.
type UpdateRequest struct {
	Description *string `json:"description"`
}

// Update handles PATCH /api/v1/photos/:id. Only the description can change.
func (h *PhotoHandler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if req.Description == nil {
		badRequest(c, "Field 'description' is required")
		return
	}

	photo, err := h.photos.UpdateDescription(c.Request.Context(), c.Param("id"), *req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.photos.View(photo))
}

// Delete handles DELETE /api/v1/photos/:id.
func (h *PhotoHandler) Delete(c *gin.Context) {
	if err := h.photos.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddTagsRequest is the body of POST /api/v1/photos/:id/tags. Tags may be given as a
// list or as one space or comma separated string.
type AddTagsRequest struct {
	Tags    []string `json:"tags"`
	TagList string   `json:"tag_list"`
}

// AddTags handles POST /api/v1/photos/:id/tags.
func (h *PhotoHandler) AddTags(c *gin.Context) {
	var req AddTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	names := append(req.Tags, domain.ParseTagList(req.TagList)...)

	photo, added, err := h.photos.AddTags(c.Request.Context(), c.Param("id"), names)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo": h.photos.View(photo), "added": added})
}

// RemoveTag handles DELETE /api/v1/photos/:id/tags/:tag_id.
func (h *PhotoHandler) RemoveTag(c *gin.Context) {
	tagID, err := strconv.ParseUint(c.Param("tag_id"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid tag id")
		return
	}
	photo, err := h.photos.RemoveTag(c.Request.Context(), c.Param("id"), uint(tagID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.photos.View(photo))
}

// Similar handles GET /api/v1/photos/:id/similar.
func (h *PhotoHandler) Similar(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	results, err := h.photos.Similar(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(results))
	for i := range results {
		items = append(items, gin.H{
			"photo": h.photos.View(&results[i].Photo),
			"score": results[i].Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": items, "total": len(items)})
}
