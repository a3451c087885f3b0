// Package imaging validates uploaded images and builds renditions and placeholders.
package imaging

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/bbrks/go-blurhash"
	"github.com/gabriel-vasile/mimetype"
	"github.com/momentsapp/moments/internal/domain"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// blurHashSize is the thumbnail edge BlurHash is computed from.
const blurHashSize = 64

// jpegQuality is used for JPEG renditions.
const jpegQuality = 85

// DefaultMaxPixels bounds width*height of an upload. Decoding allocates up to
// four bytes per pixel, so a small compressed file can otherwise expand to gigabytes.
const DefaultMaxPixels = 50_000_000

var supportedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Info describes a validated upload.
type Info struct {
	Format      string
	ContentType string
	Width       int
	Height      int
	Size        int64
	MD5         string
}

// Inspect sniffs the content type from magic bytes and reads the image header.
// Unsupported or undecodable data returns domain.ErrInvalidImage. Images with more than
// maxPixels pixels return domain.ErrImageTooLarge before anything is decoded; zero
// means DefaultMaxPixels.
func Inspect(data []byte, maxPixels int) (*Info, error) {
	mime := mimetype.Detect(data)
	format, ok := supportedTypes[mime.String()]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content type %s", domain.ErrInvalidImage, mime.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	sum := md5.Sum(data)
	return &Info{
		Format:      format,
		ContentType: mime.String(),
		Width:       cfg.Width,
		Height:      cfg.Height,
		Size:        int64(len(data)),
		MD5:         hex.EncodeToString(sum[:]),
	}, nil
}

// Decode decodes any supported image format.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	return img, nil
}

// Fit scales img down so that neither side exceeds maxSize. Smaller images are returned as is.
func Fit(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSize && h <= maxSize {
		return img
	}

	var dw, dh int
	if w >= h {
		dw = maxSize
		dh = max(1, h*maxSize/w)
	} else {
		dh = maxSize
		dw = max(1, w*maxSize/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Rendition is an encoded resized copy of an upload.
type Rendition struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Render resizes img to maxSize and encodes it. PNG sources stay PNG to keep transparency,
// everything else becomes JPEG.
func Render(img image.Image, format string, maxSize int) (*Rendition, error) {
	scaled := Fit(img, maxSize)

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, scaled); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return &Rendition{Data: buf.Bytes(), ContentType: "image/png", Extension: "png"}, nil
	}

	if err := jpeg.Encode(&buf, flatten(scaled), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &Rendition{Data: buf.Bytes(), ContentType: "image/jpeg", Extension: "jpg"}, nil
}

// flatten draws img over white so transparent GIF/WebP pixels do not turn black in JPEG.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// BlurHash computes a 4x3 component BlurHash from a small thumbnail of img.
func BlurHash(img image.Image) (string, error) {
	hash, err := blurhash.Encode(4, 3, Fit(img, blurHashSize))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// Extension returns the file extension stored for a format.
func Extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
