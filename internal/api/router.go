package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/momentsapp/moments/internal/api/handler"
	"github.com/momentsapp/moments/internal/api/middleware"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/service"
)

// Services holds everything the HTTP layer serves.
type Services struct {
	Photos   *service.PhotoService
	Tags     *service.TagService
	Search   *service.SearchService
	Tagging  *service.TaggingService
	AltText  *service.AltTextService
	Backfill *service.BackfillService
	DB       handler.Pinger
}

// RouterConfig holds HTTP settings.
type RouterConfig struct {
	Mode          string
	CORS          middleware.CORSConfig
	MaxUploadSize int64
	// UploadsDir, when set, is served under /uploads for local storage.
	UploadsDir string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg RouterConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadSize + 1<<20

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(svc.DB)
	photoHandler := handler.NewPhotoHandler(svc.Photos, cfg.MaxUploadSize)
	tagHandler := handler.NewTagHandler(svc.Tags, photoHandler)
	searchHandler := handler.NewSearchHandler(svc.Search, svc.Photos)
	adminHandler := handler.NewAdminHandler(handler.AdminDeps{
		Photos:   svc.Photos,
		Tags:     svc.Tags,
		Tagging:  svc.Tagging,
		AltText:  svc.AltText,
		Backfill: svc.Backfill,
	})

	r.GET("/health", healthHandler.Health)
	if cfg.UploadsDir != "" {
		r.StaticFS("/uploads", http.Dir(cfg.UploadsDir))
	}

	v1 := r.Group("/api/v1")
	{
		// Photos
		v1.POST("/photos", photoHandler.Upload)
		v1.GET("/photos", photoHandler.List)
		v1.GET("/photos/:id", photoHandler.Get)
		v1.PATCH("/photos/:id", photoHandler.Update)
		v1.DELETE("/photos/:id", photoHandler.Delete)
		v1.POST("/photos/:id/tags", photoHandler.AddTags)
		v1.DELETE("/photos/:id/tags/:tag_id", photoHandler.RemoveTag)
		v1.GET("/photos/:id/similar", photoHandler.Similar)

		// Tags
		v1.GET("/tags/hot", tagHandler.HotTags)
		v1.GET("/tags/:name/photos", tagHandler.Photos)

		// Search
		v1.GET("/search", searchHandler.Search)

		admin := v1.Group("/admin")
		{
			admin.GET("/vision/status", adminHandler.VisionStatus)
			admin.POST("/photos/:id/analyze", adminHandler.Analyze)
			admin.POST("/backfill", adminHandler.TriggerBackfill)
			admin.GET("/backfill/status", adminHandler.BackfillStatus)
			admin.GET("/tags/export", adminHandler.ExportTags)
		}
	}

	return r
}
