package utils

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, alpha})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestConvertPngToJpeg(t *testing.T) {
	jpegBytes, err := ConvertPngToJpeg(testPNG(t, 32, 32, 255), 90)
	require.NoError(t, err)

	out, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	require.NoError(t, err)
	assert.Equal(t, 32, out.Bounds().Dx())
	assert.Equal(t, 32, out.Bounds().Dy())
}

func TestConvertPngToJpeg_TransparentBecomesWhite(t *testing.T) {
	jpegBytes, err := ConvertPngToJpeg(testPNG(t, 8, 8, 0), 0)
	require.NoError(t, err)

	out, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	require.NoError(t, err)

	r, g, b, _ := out.At(4, 4).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestConvertPngToJpeg_InvalidInput(t *testing.T) {
	_, err := ConvertPngToJpeg([]byte("not a png"), 50)
	assert.Error(t, err)
}

func TestDecodeBase64Image(t *testing.T) {
	raw := testPNG(t, 4, 4, 255)
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name  string
		input string
	}{
		{"plain", encoded},
		{"data url", "data:image/png;base64," + encoded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeBase64Image(tt.input)
			require.NoError(t, err)
			assert.Equal(t, raw, decoded)
		})
	}

	_, err := DecodeBase64Image("data:image/png;base64")
	assert.Error(t, err)
}

func TestImageSize(t *testing.T) {
	w, h, err := ImageSize(testPNG(t, 12, 7, 255))
	require.NoError(t, err)
	assert.Equal(t, 12, w)
	assert.Equal(t, 7, h)
}
