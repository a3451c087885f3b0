package domain

import "time"

// MaxTagLength matches the tags.name column.
const MaxTagLength = 64

// TagSource records how a tag was attached to a photo.
type TagSource string

const (
	TagSourceUser      TagSource = "user"
	TagSourceDetection TagSource = "detection"
)

// Tag is a keyword shared by any number of photos.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for Tag.
func (Tag) TableName() string {
	return "tags"
}

// PhotoTag links a photo to a tag. The pair is unique.
type PhotoTag struct {
	PhotoID   string    `gorm:"type:text;primaryKey" json:"photo_id"`
	TagID     uint      `gorm:"primaryKey;autoIncrement:false" json:"tag_id"`
	Source    TagSource `gorm:"type:text;default:user" json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the join table name.
func (PhotoTag) TableName() string {
	return "photo_tags"
}

// TagCount is a tag with the number of photos carrying it.
type TagCount struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	PhotoCount int64  `json:"photo_count"`
}
