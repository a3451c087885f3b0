package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/momentsapp/moments/internal/service"
)

// TagHandler handles tag endpoints.
type TagHandler struct {
	tags   *service.TagService
	photos *PhotoHandler
}

// NewTagHandler creates a new tag handler.
func NewTagHandler(tags *service.TagService, photos *PhotoHandler) *TagHandler {
	return &TagHandler{tags: tags, photos: photos}
}

// HotTags handles GET /api/v1/tags/hot?limit=.
func (h *TagHandler) HotTags(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	tags, err := h.tags.HotTags(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags, "total": len(tags)})
}

// Photos handles GET /api/v1/tags/:name/photos.
func (h *TagHandler) Photos(c *gin.Context) {
	tag, err := h.tags.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	h.photos.list(c, tag.Name, limit, offset)
}
