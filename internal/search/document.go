// Package search provides full-text photo search using Bleve.
package search

import (
	"time"

	"github.com/momentsapp/moments/internal/domain"
)

// PhotoDocument is the indexed form of a photo.
type PhotoDocument struct {
	ID          string
	Description string
	AltText     string
	Tags        []string
	Objects     []string
	AuthorID    string
	CreatedAt   time.Time
}

// NewPhotoDocument builds the document for a photo with its tags loaded.
func NewPhotoDocument(photo *domain.Photo) *PhotoDocument {
	doc := &PhotoDocument{
		ID:          photo.ID,
		Description: photo.Description,
		Tags:        photo.TagNames(),
		Objects:     photo.DetectedObjects.Names(),
		AuthorID:    photo.AuthorID,
		CreatedAt:   photo.CreatedAt,
	}
	if photo.AltText != nil {
		doc.AltText = *photo.AltText
	}
	return doc
}

// ToMap converts the document to the field names used by the mapping.
func (d *PhotoDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"type":        "photo",
		"description": d.Description,
		"alt_text":    d.AltText,
		"tags":        d.Tags,
		"objects":     d.Objects,
		"author_id":   d.AuthorID,
	}
	if !d.CreatedAt.IsZero() {
		m["created_at"] = d.CreatedAt
	}
	return m
}
