package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/momentsapp/moments/internal/service"
)

// SearchHandler handles search-related endpoints.
type SearchHandler struct {
	searchService *service.SearchService
	photos        *service.PhotoService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - searchService: search service instance.
//   - photos: used to render photo views.
//
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(searchService *service.SearchService, photos *service.PhotoService) *SearchHandler {
	return &SearchHandler{searchService: searchService, photos: photos}
}

// Search handles GET /api/v1/search?q=&category=photo|tag&limit=&offset=.
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		badRequest(c, "Query parameter 'q' is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	result, err := h.searchService.Search(c.Request.Context(), &service.SearchRequest{
		Query:    query,
		Category: c.DefaultQuery("category", service.SearchCategoryPhoto),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"query":    result.Query,
		"category": result.Category,
		"total":    result.Total,
	}
	if result.Category == service.SearchCategoryTag {
		resp["tags"] = result.Tags
	} else {
		resp["photos"] = h.photos.Views(result.Photos)
	}
	c.JSON(http.StatusOK, resp)
}
