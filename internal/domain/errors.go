package domain

import "errors"

var (
	ErrPhotoNotFound        = errors.New("photo not found")
	ErrTagNotFound          = errors.New("tag not found")
	ErrInvalidImage         = errors.New("invalid image")
	ErrImageTooLarge        = errors.New("image too large")
	ErrInvalidTag           = errors.New("invalid tag")
	ErrInvalidDescription   = errors.New("description too long")
	ErrDetectionUnavailable = errors.New("object detection not available")
	ErrCaptionUnavailable   = errors.New("alt-text generation not available")
)
