package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
	"golang.org/x/time/rate"
)

// ObjectDetector returns labeled objects found in an image.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, image []byte) (domain.DetectedObjects, error)
	Available() bool
}

// AzureVisionConfig holds configuration for the Azure Computer Vision client.
type AzureVisionConfig struct {
	Endpoint          string
	Key               string
	APIVersion        string
	MinConfidence     float64
	IncludeParents    bool
	MaxImageSize      int64
	RequestsPerMinute int // 0 disables client-side rate limiting
	Timeout           time.Duration
}

// AzureVisionClient calls the Computer Vision analyze endpoint with visualFeatures=Objects.
type AzureVisionClient struct {
	client         *resty.Client
	endpoint       string
	key            string
	minConfidence  float64
	includeParents bool
	maxImageSize   int64
	limiter        *rate.Limiter
}

// AzureError is a non-2xx answer from Computer Vision.
type AzureError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *AzureError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("azure computer vision: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("azure computer vision: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsAuthError reports whether the key was rejected.
func (e *AzureError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsQuotaExceeded reports whether the subscription ran out of calls.
func (e *AzureError) IsQuotaExceeded() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "429"
}

type azureAnalyzeResponse struct {
	Objects   []azureObject `json:"objects"`
	RequestID string        `json:"requestId"`
	Metadata  struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Format string `json:"format"`
	} `json:"metadata"`
	ModelVersion string `json:"modelVersion"`
}

type azureObject struct {
	Object     string       `json:"object"`
	Confidence float64      `json:"confidence"`
	Parent     *azureObject `json:"parent,omitempty"`
	Rectangle  struct {
		X int `json:"x"`
		Y int `json:"y"`
		W int `json:"w"`
		H int `json:"h"`
	} `json:"rectangle"`
}

// azureErrorBody covers both {"error":{"code","message"}} and {"code","message"}.
type azureErrorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewAzureVisionClient creates the detector. Without endpoint or key the client reports
// itself unavailable and every call returns domain.ErrDetectionUnavailable.
func NewAzureVisionClient(cfg *AzureVisionConfig) *AzureVisionClient {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v3.2"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxSize := cfg.MaxImageSize
	if maxSize <= 0 {
		maxSize = 4 * 1024 * 1024
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	c := &AzureVisionClient{
		client:         resty.New().SetTimeout(timeout),
		key:            cfg.Key,
		minConfidence:  cfg.MinConfidence,
		includeParents: cfg.IncludeParents,
		maxImageSize:   maxSize,
		limiter:        limiter,
	}
	if cfg.Endpoint != "" {
		c.endpoint = strings.TrimSuffix(cfg.Endpoint, "/") + "/vision/" + apiVersion + "/analyze"
	}

	if !c.Available() {
		logger.Warn("Azure credentials not found in environment variables")
	} else {
		logger.With(logger.Fields{"endpoint": cfg.Endpoint, "api_version": apiVersion}).
			Info(context.Background(), "Azure Computer Vision client initialized successfully")
	}
	return c
}

// Available reports whether endpoint and key are configured.
func (c *AzureVisionClient) Available() bool {
	return c.endpoint != "" && c.key != ""
}

// DetectObjects sends image to Azure and returns labels above the confidence threshold,
// deduplicated and sorted by confidence.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - image: raw image bytes (JPEG, PNG, GIF or BMP; at most 4MB).
//
// Returns:
//   - domain.DetectedObjects: labels, possibly empty.
//   - error: domain.ErrDetectionUnavailable, domain.ErrImageTooLarge, *AzureError or a transport error.
func (c *AzureVisionClient) DetectObjects(ctx context.Context, image []byte) (domain.DetectedObjects, error) {
	if !c.Available() {
		return nil, domain.ErrDetectionUnavailable
	}
	if int64(len(image)) > c.maxImageSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte analysis limit", domain.ErrImageTooLarge, len(image), c.maxImageSize)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidImage)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	var result azureAnalyzeResponse
	var errBody azureErrorBody
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Ocp-Apim-Subscription-Key", c.key).
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("visualFeatures", "Objects").
		SetBody(image).
		SetResult(&result).
		SetError(&errBody).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call Azure Computer Vision: %w", err)
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		azErr := &AzureError{StatusCode: resp.StatusCode()}
		if errBody.Error != nil {
			azErr.Code, azErr.Message = errBody.Error.Code, errBody.Error.Message
		} else {
			azErr.Code, azErr.Message = errBody.Code, errBody.Message
		}
		return nil, azErr
	}

	raw := make([]domain.DetectedObject, 0, len(result.Objects))
	for _, obj := range result.Objects {
		raw = append(raw, domain.DetectedObject{Name: obj.Object, Confidence: obj.Confidence})
		if !c.includeParents {
			continue
		}
		for p := obj.Parent; p != nil; p = p.Parent {
			raw = append(raw, domain.DetectedObject{Name: p.Object, Confidence: p.Confidence})
		}
	}
	objects := normalizeObjects(raw, c.minConfidence)

	logger.With(logger.Fields{
		"request_id":    result.RequestID,
		"model_version": result.ModelVersion,
		"raw_count":     len(result.Objects),
	}).WithCount(len(objects)).WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Detected objects: %v", objects.Names())

	return objects, nil
}

// AsAzureError unwraps an *AzureError from err.
func AsAzureError(err error) (*AzureError, bool) {
	var azErr *AzureError
	if errors.As(err, &azErr) {
		return azErr, true
	}
	return nil, false
}

// SecretGetter reads a secret by name.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ResolveAzureKey returns the configured key, or reads secretName from the vault when no
// key is configured. A nil vault with no key returns "".
func ResolveAzureKey(ctx context.Context, key string, vault SecretGetter, secretName string) (string, error) {
	if key != "" || vault == nil {
		return key, nil
	}
	value, err := vault.GetSecret(ctx, secretName)
	if err != nil {
		return "", fmt.Errorf("failed to read Computer Vision key from Key Vault: %w", err)
	}
	return value, nil
}
