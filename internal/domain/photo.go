package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MaxAltTextLength matches the alt_text VARCHAR(500) column.
const MaxAltTextLength = 500

// MaxDescriptionLength bounds user supplied descriptions.
const MaxDescriptionLength = 500

// DetectedObject is one label returned by object detection.
type DetectedObject struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// DetectedObjects is stored as a JSON array in a TEXT column.
type DetectedObjects []DetectedObject

// Value implements driver.Valuer.
func (o DetectedObjects) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (o *DetectedObjects) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to scan DetectedObjects")
	}
	if len(raw) == 0 {
		*o = nil
		return nil
	}
	return json.Unmarshal(raw, o)
}

// Names returns the object labels in stored order.
func (o DetectedObjects) Names() []string {
	names := make([]string, 0, len(o))
	for _, obj := range o {
		names = append(names, obj.Name)
	}
	return names
}

// Photo is an uploaded image with its renditions and vision metadata.
type Photo struct {
	ID                string          `gorm:"type:text;primaryKey" json:"id"`
	AuthorID          string          `gorm:"type:text;index" json:"author_id,omitempty"`
	Filename          string          `gorm:"type:text;not null" json:"filename"`
	FilenameS         string          `gorm:"column:filename_s;type:text;not null" json:"filename_s"`
	FilenameM         string          `gorm:"column:filename_m;type:text;not null" json:"filename_m"`
	Description       string          `gorm:"type:text" json:"description"`
	AltText           *string         `gorm:"type:varchar(500)" json:"alt_text,omitempty"`
	DetectedObjects   DetectedObjects `gorm:"type:text" json:"detected_objects,omitempty"`
	ObjectsDetectedAt *time.Time      `json:"objects_detected_at,omitempty"`
	Format            string          `gorm:"type:text" json:"format"`
	Width             int             `json:"width"`
	Height            int             `json:"height"`
	FileSize          int64           `json:"file_size"`
	MD5Hash           string          `gorm:"type:text;index" json:"md5_hash"`
	BlurHash          string          `gorm:"type:text" json:"blur_hash,omitempty"`
	Tags              []Tag           `gorm:"many2many:photo_tags;" json:"tags"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName returns the table name for Photo.
func (Photo) TableName() string {
	return "photos"
}

// HasAltText reports whether alt-text has already been generated.
func (p *Photo) HasAltText() bool {
	return p.AltText != nil && *p.AltText != ""
}

// NeedsAltText reports whether the photo has neither a description nor alt-text.
func (p *Photo) NeedsAltText() bool {
	return p.Description == "" && !p.HasAltText()
}

// EffectiveDescription prefers the user description and falls back to alt-text.
func (p *Photo) EffectiveDescription() string {
	if p.Description != "" {
		return p.Description
	}
	if p.AltText != nil {
		return *p.AltText
	}
	return ""
}

// TagNames returns the names of the loaded tags.
func (p *Photo) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return names
}

// PhotoView is the API representation of a photo.
type PhotoView struct {
	*Photo
	EffectiveDescription string `json:"effective_description"`
	URL                  string `json:"url"`
	SmallURL             string `json:"small_url"`
	MediumURL            string `json:"medium_url"`
}
