package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/utils"
)

// ScreenshotRequest represents the parameters for taking a screenshot
type ScreenshotRequest struct {
	DeviceID   string `json:"deviceId"`
	Format     string `json:"format,omitempty"`     // "png" or "jpeg"
	Quality    int    `json:"quality,omitempty"`    // 1-100, only used for JPEG
	OutputPath string `json:"outputPath,omitempty"` // file path, "-" for stdout, or empty for default naming
}

// ScreenshotResponse represents the response for a screenshot command
type ScreenshotResponse struct {
	Format   string `json:"format"`
	Data     string `json:"data,omitempty"`     // base64 encoded image data
	FilePath string `json:"filePath,omitempty"` // path where file was saved
}

// ScreenshotCommand takes a screenshot of the specified device
func ScreenshotCommand(ctx context.Context, c *controller.Controller, req ScreenshotRequest) *CommandResponse {
	if req.Format == "" {
		req.Format = "png"
	}

	req.Format = strings.ToLower(req.Format)
	if req.Format == "jpg" {
		req.Format = "jpeg"
	}
	if req.Format != "png" && req.Format != "jpeg" {
		return NewErrorResponse(fmt.Errorf("invalid format '%s'. Supported formats are 'png' and 'jpeg'", req.Format))
	}

	if req.Format == "jpeg" && (req.Quality < 1 || req.Quality > 100) {
		req.Quality = utils.DefaultJPEGQuality
	}

	r := c.Screenshot(ctx, req.DeviceID)
	if !r.OK {
		return fromResult(r)
	}
	imageBytes, _ := r.Data.([]byte)

	// simulators and WDA already return PNG; only convert real PNGs
	if req.Format == "jpeg" && !isJPEG(imageBytes) {
		convertedBytes, err := utils.ConvertPngToJpeg(imageBytes, req.Quality)
		if err != nil {
			return NewErrorResponse(fmt.Errorf("error converting to JPEG: %v", err))
		}
		imageBytes = convertedBytes
	}

	response := ScreenshotResponse{
		Format: req.Format,
	}

	if req.OutputPath == "-" {
		response.Data = base64.StdEncoding.EncodeToString(imageBytes)
		return NewSuccessResponse(response)
	}

	finalPath, err := screenshotPath(req)
	if err != nil {
		return NewErrorResponse(err)
	}

	if err := os.WriteFile(finalPath, imageBytes, 0o600); err != nil {
		return NewErrorResponse(fmt.Errorf("error writing file: %v", err))
	}

	response.FilePath = finalPath
	return NewSuccessResponse(response)
}

func screenshotPath(req ScreenshotRequest) (string, error) {
	if req.OutputPath != "" {
		path, err := filepath.Abs(req.OutputPath)
		if err != nil {
			return "", fmt.Errorf("invalid output path: %v", err)
		}
		return path, nil
	}

	timestamp := time.Now().Format("20060102150405")
	safeDeviceID := strings.ReplaceAll(req.DeviceID, ":", "_")
	if safeDeviceID == "" {
		safeDeviceID = "device"
	}
	extension := "png"
	if req.Format == "jpeg" {
		extension = "jpg"
	}
	fileName := fmt.Sprintf("screenshot-%s-%s.%s", safeDeviceID, timestamp, extension)
	path, err := filepath.Abs("./" + fileName)
	if err != nil {
		return "", fmt.Errorf("error creating default path: %v", err)
	}
	return path, nil
}

func isJPEG(data []byte) bool {
	return len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8
}

// CompressedScreenshotRequest asks for a base64 JPEG suitable for transport
type CompressedScreenshotRequest struct {
	DeviceID string `json:"deviceId"`
	Quality  int    `json:"quality,omitempty"`
}

func CompressedScreenshotCommand(ctx context.Context, c *controller.Controller, req CompressedScreenshotRequest) *CommandResponse {
	if req.Quality < 0 || req.Quality > 100 {
		return NewErrorResponse(fmt.Errorf("quality must be between 1 and 100, got %d", req.Quality))
	}
	r := c.CompressedScreenshot(ctx, req.DeviceID, req.Quality)
	if !r.OK {
		return fromResult(r)
	}
	return NewSuccessResponse(ScreenshotResponse{Format: "jpeg", Data: r.Data.(string)})
}
