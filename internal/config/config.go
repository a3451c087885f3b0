package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Vision     VisionConfig     `mapstructure:"vision"`
	AltText    AltTextConfig    `mapstructure:"alt_text"`
	Search     SearchConfig     `mapstructure:"search"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// UploadConfig bounds what the upload endpoint accepts and how renditions are sized.
type UploadConfig struct {
	MaxSize    int64 `mapstructure:"max_size"`
	MaxPixels  int   `mapstructure:"max_pixels"`
	SmallSize  int   `mapstructure:"small_size"`
	MediumSize int   `mapstructure:"medium_size"`
	// Deduplicate returns the existing photo when identical bytes are uploaded again.
	Deduplicate bool `mapstructure:"deduplicate"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type  string             `mapstructure:"type"` // local, s3, r2, s3compatible, azure
	Local LocalStorageConfig `mapstructure:"local"`
	S3    S3StorageConfig    `mapstructure:"s3"`
	Azure AzureBlobConfig    `mapstructure:"azure"`
}

type LocalStorageConfig struct {
	Path      string `mapstructure:"path"`
	PublicURL string `mapstructure:"public_url"`
}

type S3StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
	PublicURL        string `mapstructure:"public_url"`
}

type VisionConfig struct {
	ObjectDetection ObjectDetectionConfig `mapstructure:"object_detection"`
	Azure           AzureVisionConfig     `mapstructure:"azure"`
}

type ObjectDetectionConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AzureVisionConfig configures the Computer Vision client. Key may be left empty when
// KeyVaultName is set; it is then read from the vault at startup.
type AzureVisionConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	Key               string        `mapstructure:"key"`
	KeyVaultName      string        `mapstructure:"key_vault_name"`
	KeySecretName     string        `mapstructure:"key_secret_name"`
	APIVersion        string        `mapstructure:"api_version"`
	MinConfidence     float64       `mapstructure:"min_confidence"`
	IncludeParents    bool          `mapstructure:"include_parents"`
	MaxImageSize      int64         `mapstructure:"max_image_size"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type AltTextConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	IndexPath string `mapstructure:"index_path"`
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	HotTagsTTL time.Duration `mapstructure:"hot_tags_ttl"`
}

type SimilarityConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

type SchedulerConfig struct {
	Backfill BackfillConfig `mapstructure:"backfill"`
}

type BackfillConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

// Load reads configuration from an optional YAML file, .env and the environment.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("upload.max_size", 3*1024*1024)
	v.SetDefault("upload.small_size", 400)
	v.SetDefault("upload.medium_size", 800)
	v.SetDefault("upload.max_pixels", 50_000_000)
	v.SetDefault("upload.deduplicate", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/moments.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local.path", "./data/uploads")
	v.SetDefault("storage.local.public_url", "/uploads")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.s3.bucket", "moments")
	v.SetDefault("storage.azure.container", "moments")

	v.SetDefault("vision.object_detection.enabled", false)
	v.SetDefault("vision.azure.key_secret_name", "computer-vision-key")
	v.SetDefault("vision.azure.api_version", "v3.2")
	v.SetDefault("vision.azure.min_confidence", 0.5)
	v.SetDefault("vision.azure.include_parents", false)
	v.SetDefault("vision.azure.max_image_size", 4*1024*1024)
	v.SetDefault("vision.azure.requests_per_minute", 20)
	v.SetDefault("vision.azure.timeout", 30*time.Second)

	v.SetDefault("alt_text.enabled", true)
	v.SetDefault("alt_text.model", "gpt-4o-mini")
	v.SetDefault("alt_text.base_url", "https://api.openai.com/v1")
	v.SetDefault("alt_text.max_tokens", 60)
	v.SetDefault("alt_text.timeout", 60*time.Second)

	v.SetDefault("search.index_path", "./data/search")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.hot_tags_ttl", 5*time.Minute)

	v.SetDefault("similarity.enabled", false)
	v.SetDefault("similarity.qdrant.host", "localhost")
	v.SetDefault("similarity.qdrant.port", 6334)
	v.SetDefault("similarity.qdrant.collection", "photos")
	v.SetDefault("similarity.embedding.model", "text-embedding-3-small")
	v.SetDefault("similarity.embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("similarity.embedding.dimensions", 1536)

	v.SetDefault("scheduler.backfill.enabled", false)
	v.SetDefault("scheduler.backfill.schedule", "*/30 * * * *")
	v.SetDefault("scheduler.backfill.batch_size", 20)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("vision.azure.endpoint", "AZURE_COMPUTER_VISION_ENDPOINT")
	v.BindEnv("vision.azure.key", "AZURE_COMPUTER_VISION_KEY")
	v.BindEnv("vision.object_detection.enabled", "AZURE_OBJECT_DETECTION_ENABLED")
	v.BindEnv("vision.azure.key_vault_name", "AZURE_KEY_VAULT_NAME")

	v.BindEnv("alt_text.enabled", "ALT_TEXT_ENABLED")
	v.BindEnv("alt_text.api_key", "OPENAI_API_KEY")
	v.BindEnv("alt_text.base_url", "OPENAI_BASE_URL")
	v.BindEnv("alt_text.model", "VLM_MODEL")

	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.s3.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.s3.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.s3.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.s3.bucket", "STORAGE_BUCKET")
	v.BindEnv("storage.s3.public_url", "STORAGE_PUBLIC_URL")
	v.BindEnv("storage.azure.connection_string", "AZURE_STORAGE_CONNECTION_STRING")

	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	v.BindEnv("similarity.qdrant.host", "QDRANT_HOST")
	v.BindEnv("similarity.qdrant.port", "QDRANT_PORT")
	v.BindEnv("similarity.qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("similarity.embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("similarity.embedding.base_url", "EMBEDDING_BASE_URL")
}

// Validate checks values that would otherwise fail late at request time.
func (c *Config) Validate() error {
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}
	if c.Upload.MaxPixels < 0 {
		return fmt.Errorf("upload.max_pixels must not be negative")
	}
	if c.Upload.SmallSize <= 0 || c.Upload.MediumSize <= 0 {
		return fmt.Errorf("upload.small_size and upload.medium_size must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if c.Vision.Azure.MinConfidence < 0 || c.Vision.Azure.MinConfidence >= 1 {
		return fmt.Errorf("vision.azure.min_confidence must be in [0, 1)")
	}
	if c.Vision.Azure.RequestsPerMinute < 0 {
		return fmt.Errorf("vision.azure.requests_per_minute must not be negative")
	}
	if c.Similarity.Enabled && c.Similarity.Embedding.Dimensions <= 0 {
		return fmt.Errorf("similarity.embedding.dimensions must be positive")
	}
	return nil
}

// HasAzureCredentials reports whether endpoint and key (or a vault to fetch it from) are set.
func (c *AzureVisionConfig) HasAzureCredentials() bool {
	return c.Endpoint != "" && (c.Key != "" || c.KeyVaultName != "")
}
