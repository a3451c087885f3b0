package service

import (
	"context"
	"fmt"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
)

// AltTextStore persists generated alt-text.
type AltTextStore interface {
	SetAltText(ctx context.Context, id, altText string) (bool, error)
}

// AltTextService generates alt-text for photos without a description.
type AltTextService struct {
	captioner Captioner
	photos    AltTextStore
	enabled   bool
}

// NewAltTextService creates an AltTextService.
func NewAltTextService(captioner Captioner, photos AltTextStore, enabled bool) *AltTextService {
	return &AltTextService{captioner: captioner, photos: photos, enabled: enabled}
}

// Available reports whether generation is enabled and configured.
func (s *AltTextService) Available() bool {
	return s.enabled && s.captioner != nil && s.captioner.Available()
}

// EnsureAltText generates and stores alt-text when the photo has neither a description nor
// alt-text. Stored alt-text is never replaced. photo is updated in place.
// Returns true when new alt-text was stored.
func (s *AltTextService) EnsureAltText(ctx context.Context, photo *domain.Photo, image []byte) (bool, error) {
	if !photo.NeedsAltText() {
		return false, nil
	}
	if !s.Available() {
		return false, domain.ErrCaptionUnavailable
	}

	start := time.Now()
	altText, err := s.captioner.GenerateAltText(ctx, image, photo.Format, photo.DetectedObjects.Names())
	if err != nil {
		return false, fmt.Errorf("failed to generate alt text: %w", err)
	}

	written, err := s.photos.SetAltText(ctx, photo.ID, altText)
	if err != nil {
		return false, fmt.Errorf("failed to store alt text: %w", err)
	}
	if !written {
		return false, nil
	}
	photo.AltText = &altText

	logger.With(logger.Fields{"alt_text": altText}).WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Generated alt text")
	return true, nil
}
