package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	data := testPNG(t, 120, 80)

	info, err := Inspect(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, 120, info.Width)
	assert.Equal(t, 80, info.Height)
	assert.EqualValues(t, len(data), info.Size)
	assert.Len(t, info.MD5, 32)
}

func TestInspect_RejectsNonImages(t *testing.T) {
	_, err := Inspect([]byte("%PDF-1.4 not an image"), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, err = Inspect([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
}

// resizedHeader returns a 1x1 grayscale PNG whose header claims w x h pixels.
func resizedHeader(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()

	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc
	binary.BigEndian.PutUint32(data[16:], w)
	binary.BigEndian.PutUint32(data[20:], h)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestInspect_PixelLimit(t *testing.T) {
	data := resizedHeader(t, 12000, 12000)
	assert.Less(t, len(data), 1024)

	_, err := Inspect(data, 0)
	assert.ErrorIs(t, err, domain.ErrImageTooLarge)

	_, err = Inspect(testPNG(t, 120, 80), 120*80-1)
	assert.ErrorIs(t, err, domain.ErrImageTooLarge)

	info, err := Inspect(testPNG(t, 120, 80), 120*80)
	require.NoError(t, err)
	assert.Equal(t, 120, info.Width)

	info, err = Inspect(resizedHeader(t, 5000, 4000), 0)
	require.NoError(t, err)
	assert.Equal(t, 5000, info.Width)
	assert.Equal(t, 4000, info.Height)
}

func TestFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 500))

	scaled := Fit(img, 400)
	assert.Equal(t, 400, scaled.Bounds().Dx())
	assert.Equal(t, 200, scaled.Bounds().Dy())

	tall := Fit(image.NewRGBA(image.Rect(0, 0, 300, 900)), 400)
	assert.Equal(t, 133, tall.Bounds().Dx())
	assert.Equal(t, 400, tall.Bounds().Dy())

	small := image.NewRGBA(image.Rect(0, 0, 100, 50))
	assert.Same(t, small, Fit(small, 400))
}

func TestRender(t *testing.T) {
	img, err := Decode(testPNG(t, 900, 600))
	require.NoError(t, err)

	r, err := Render(img, "png", 400)
	require.NoError(t, err)
	assert.Equal(t, "image/png", r.ContentType)
	info, err := Inspect(r.Data, 0)
	require.NoError(t, err)
	assert.Equal(t, 400, info.Width)

	r, err = Render(img, "webp", 800)
	require.NoError(t, err)
	assert.Equal(t, "jpg", r.Extension)
	info, err = Inspect(r.Data, 0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", info.Format)
	assert.Equal(t, 800, info.Width)
}

func TestBlurHash(t *testing.T) {
	img, err := Decode(testPNG(t, 200, 100))
	require.NoError(t, err)

	hash, err := BlurHash(img)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	again, err := BlurHash(img)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}
