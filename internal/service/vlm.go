package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/prompts"
)

// Captioner produces alt-text for an image.
type Captioner interface {
	GenerateAltText(ctx context.Context, image []byte, format string, hints []string) (string, error)
	Available() bool
}

// VLMService generates alt-text with an OpenAI-compatible vision language model.
type VLMService struct {
	client    *resty.Client
	model     string
	apiKey    string
	endpoint  string
	maxTokens int
}

// VLMConfig holds configuration for VLM service.
type VLMConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// NewVLMService creates a new VLM service.
// Parameters:
//   - cfg: VLM configuration including model, API key and endpoint.
//
// Returns:
//   - *VLMService: initialized VLM client wrapper.
func NewVLMService(cfg *VLMConfig) *VLMService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 60
	}

	return &VLMService{
		client:    client,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: maxTokens,
	}
}

// GetModel returns the model name being used.
func (s *VLMService) GetModel() string {
	return s.model
}

// Available reports whether a model and API key are configured.
func (s *VLMService) Available() bool {
	return s.model != "" && s.apiKey != ""
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GenerateAltText asks the model for a one-sentence description of the image.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageData: raw image bytes.
//   - format: image format (jpeg, png, gif, webp).
//   - hints: optional detected object labels passed to the model.
//
// Returns:
//   - string: cleaned alt-text, at most domain.MaxAltTextLength runes.
//   - error: domain.ErrCaptionUnavailable when unconfigured, otherwise API errors.
func (s *VLMService) GenerateAltText(ctx context.Context, imageData []byte, format string, hints []string) (string, error) {
	if !s.Available() {
		return "", domain.ErrCaptionUnavailable
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", getMIMEType(format), base64.StdEncoding.EncodeToString(imageData))

	userPrompt := prompts.AltTextUserPrompt
	if len(hints) > 0 {
		userPrompt = fmt.Sprintf(prompts.AltTextPromptWithTags, strings.Join(hints, ", "))
	}

	req := openAIRequest{
		Model: s.model,
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: prompts.AltTextSystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{Type: "text", Text: userPrompt},
					openAIImageContent{
						Type:     "image_url",
						ImageURL: openAIImageURL{URL: dataURL, Detail: "low"},
					},
				},
			},
		},
		MaxTokens: s.maxTokens,
	}

	var resp openAIResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call VLM API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != nil {
			return "", fmt.Errorf("VLM API returned error: HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("VLM API returned error: HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}

	if resp.Error != nil {
		return "", fmt.Errorf("VLM API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from VLM API: no choices in response (status: %d)", httpResp.StatusCode())
	}

	altText := CleanAltText(resp.Choices[0].Message.Content)
	if altText == "" {
		return "", fmt.Errorf("VLM API returned an empty caption")
	}
	return altText, nil
}

var altTextPrefix = regexp.MustCompile(`(?i)^(alt[- ]?text|caption|description)\s*:\s*`)

// CleanAltText keeps the first non-empty line of model output, strips labels and quotes,
// collapses whitespace and truncates to domain.MaxAltTextLength runes on a word boundary.
func CleanAltText(raw string) string {
	text := ""
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			text = line
			break
		}
	}

	text = altTextPrefix.ReplaceAllString(text, "")
	text = strings.Trim(text, "\"'`*“”‘’ ")
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) <= domain.MaxAltTextLength {
		return text
	}
	runes := []rune(text)[:domain.MaxAltTextLength]
	cut := string(runes)
	if idx := strings.LastIndex(cut, " "); idx > domain.MaxAltTextLength/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:-")
}

func getMIMEType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
