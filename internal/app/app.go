// Package app wires configuration into the services shared by the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/momentsapp/moments/internal/cache"
	"github.com/momentsapp/moments/internal/config"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/repository"
	"github.com/momentsapp/moments/internal/search"
	"github.com/momentsapp/moments/internal/secrets"
	"github.com/momentsapp/moments/internal/service"
	"github.com/momentsapp/moments/internal/storage"
)

// App holds the wired services and the resources that must be closed on shutdown.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Storage storage.ObjectStorage

	Photos   *service.PhotoService
	Tags     *service.TagService
	Search   *service.SearchService
	Tagging  *service.TaggingService
	AltText  *service.AltTextService
	Backfill *service.BackfillService

	Detector  *service.AzureVisionClient
	Captioner *service.VLMService

	closers []io.Closer
}

// New connects to every configured backend and builds the services.
//
// Parameters:
//   - ctx: bounds startup calls (Key Vault, Redis ping, bucket creation)
//   - cfg: loaded configuration
//
// Returns:
//   - *App: ready to serve; call Close when done
//   - error: the first backend that could not be initialized
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	a.DB = sqlDB
	a.closers = append(a.closers, sqlDB)

	a.Storage, err = storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	index, err := search.Open(cfg.Search.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	a.closers = append(a.closers, index)

	hotTags, err := a.hotTagsCache(ctx)
	if err != nil {
		return nil, err
	}

	azureKey, err := a.resolveAzureKey(ctx)
	if err != nil {
		return nil, err
	}
	az := cfg.Vision.Azure
	if cfg.Vision.ObjectDetection.Enabled && !az.HasAzureCredentials() {
		logger.GetDefault().Warn("Object detection is enabled but the Azure endpoint or key is missing, uploads will not be tagged")
	}
	a.Detector = service.NewAzureVisionClient(&service.AzureVisionConfig{
		Endpoint:          az.Endpoint,
		Key:               azureKey,
		APIVersion:        az.APIVersion,
		MinConfidence:     az.MinConfidence,
		IncludeParents:    az.IncludeParents,
		MaxImageSize:      az.MaxImageSize,
		RequestsPerMinute: az.RequestsPerMinute,
		Timeout:           az.Timeout,
	})
	a.Captioner = service.NewVLMService(&service.VLMConfig{
		Model:     cfg.AltText.Model,
		APIKey:    cfg.AltText.APIKey,
		BaseURL:   cfg.AltText.BaseURL,
		MaxTokens: cfg.AltText.MaxTokens,
		Timeout:   cfg.AltText.Timeout,
	})

	photoRepo := repository.NewPhotoRepository(db)
	a.Tags = service.NewTagService(repository.NewTagRepository(db), hotTags)
	a.Tagging = service.NewTaggingService(a.Detector, photoRepo, a.Tags, cfg.Vision.ObjectDetection.Enabled)
	a.AltText = service.NewAltTextService(a.Captioner, photoRepo, cfg.AltText.Enabled)

	deps := service.PhotoServiceDeps{
		Photos:  photoRepo,
		Storage: a.Storage,
		Tags:    a.Tags,
		Tagging: a.Tagging,
		AltText: a.AltText,
		Index:   index,
	}
	if cfg.Similarity.Enabled {
		if err := a.wireSimilarity(ctx, &deps); err != nil {
			return nil, err
		}
	}

	a.Photos = service.NewPhotoService(deps, service.PhotoConfig{
		MaxSize:     cfg.Upload.MaxSize,
		MaxPixels:   cfg.Upload.MaxPixels,
		SmallSize:   cfg.Upload.SmallSize,
		MediumSize:  cfg.Upload.MediumSize,
		Deduplicate: cfg.Upload.Deduplicate,
	})
	a.Search = service.NewSearchService(photoRepo, index, a.Tags)
	a.Backfill = service.NewBackfillService(photoRepo, a.Storage, a.Tagging, a.AltText, a.Photos)

	if _, err := a.Photos.RebuildSearchIndex(ctx); err != nil {
		logger.GetDefault().WithError(err).Warn("Failed to rebuild search index")
	}

	logger.GetDefault().WithFields(logger.Fields{
		"object_detection": a.Tagging.Available(),
		"alt_text":         a.AltText.Available(),
		"alt_text_model":   a.Captioner.GetModel(),
		"similarity":       a.Photos.SimilarityEnabled(),
		"storage":          cfg.Storage.Type,
		"database":         cfg.Database.Driver,
	}).Info("Services initialized")

	ok = true
	return a, nil
}

func (a *App) hotTagsCache(ctx context.Context) (service.HotTagsCache, error) {
	rc := a.Config.Redis
	if !rc.Enabled {
		return cache.NewMemoryHotTags(rc.HotTagsTTL), nil
	}
	client, err := cache.NewRedisClient(ctx, &cache.RedisConfig{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client)
	return cache.NewRedisHotTags(client, rc.HotTagsTTL), nil
}

// resolveAzureKey reads the Computer Vision key from Key Vault when only a vault is configured.
func (a *App) resolveAzureKey(ctx context.Context) (string, error) {
	az := a.Config.Vision.Azure
	if az.Key != "" || az.KeyVaultName == "" {
		return az.Key, nil
	}
	vault, err := secrets.NewVaultClient(&secrets.VaultConfig{VaultName: az.KeyVaultName})
	if err != nil {
		return "", fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return service.ResolveAzureKey(ctx, az.Key, vault, az.KeySecretName)
}

func (a *App) wireSimilarity(ctx context.Context, deps *service.PhotoServiceDeps) error {
	sc := a.Config.Similarity
	qdrant, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            sc.Qdrant.Host,
		Port:            sc.Qdrant.Port,
		Collection:      sc.Qdrant.Collection,
		APIKey:          sc.Qdrant.APIKey,
		UseTLS:          sc.Qdrant.UseTLS,
		VectorDimension: sc.Embedding.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Qdrant repository: %w", err)
	}
	a.closers = append(a.closers, qdrant)

	if err := qdrant.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure Qdrant collection: %w", err)
	}

	logger.GetDefault().WithField("collection", qdrant.Collection()).Info("Similarity search enabled")
	deps.Vectors = qdrant
	deps.Embedder = service.NewEmbeddingService(&service.EmbeddingConfig{
		Model:      sc.Embedding.Model,
		APIKey:     sc.Embedding.APIKey,
		BaseURL:    sc.Embedding.BaseURL,
		Dimensions: sc.Embedding.Dimensions,
	})
	return nil
}

// UploadsDir returns the directory to serve under /uploads, or "" when storage is remote.
func (a *App) UploadsDir() string {
	if local, ok := a.Storage.(*storage.LocalStorage); ok {
		return local.BasePath()
	}
	return ""
}

// Close releases every opened resource in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.GetDefault().WithError(err).Warn("Failed to close resource")
		}
	}
	a.closers = nil
}
