package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"
)

// DefaultJPEGQuality is used when callers ask for a compressed screenshot without a quality.
const DefaultJPEGQuality = 50

// ConvertPngToJpeg re-encodes a PNG as JPEG, flattening transparency onto white.
func ConvertPngToJpeg(pngBytes []byte, quality int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, err
	}

	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	flat := image.NewRGBA(img.Bounds())
	draw.Draw(flat, flat.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, img.Bounds().Min, draw.Over)

	var jpegBytes bytes.Buffer
	if err := jpeg.Encode(&jpegBytes, flat, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}

	return jpegBytes.Bytes(), nil
}

// DecodeBase64Image accepts plain base64 or a data URL and returns the image bytes.
func DecodeBase64Image(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:image") {
		idx := strings.Index(data, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data url")
		}
		data = data[idx+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return decoded, nil
}

// ImageSize returns the pixel dimensions of an encoded PNG or JPEG.
func ImageSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
