package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/spf13/cobra"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Take a screenshot of a connected device",
	Long: `Takes a screenshot of a specified device (using its ID) and saves it locally as a PNG or JPEG file.
With --compressed the image is re-encoded as a JPEG at the given quality before it is written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, c *controller.Controller) error {
			var response *commands.CommandResponse
			if screenshotCompressed {
				response = commands.CompressedScreenshotCommand(ctx, c, commands.CompressedScreenshotRequest{
					DeviceID: deviceId,
					Quality:  screenshotJpegQuality,
				})
				if response.Status == "ok" && screenshotOutputPath != "" && screenshotOutputPath != "-" {
					response = saveScreenshot(response, screenshotOutputPath)
				}
			} else {
				response = commands.ScreenshotCommand(ctx, c, commands.ScreenshotRequest{
					DeviceID:   deviceId,
					Format:     screenshotFormat,
					Quality:    screenshotJpegQuality,
					OutputPath: screenshotOutputPath,
				})
			}

			// binary data goes to stdout as is
			if screenshotOutputPath == "-" && response.Status == "ok" {
				if screenshotResp, ok := response.Data.(commands.ScreenshotResponse); ok && screenshotResp.Data != "" {
					imageBytes, err := base64.StdEncoding.DecodeString(screenshotResp.Data)
					if err != nil {
						return fmt.Errorf("failed to decode image data: %v", err)
					}
					if _, err := os.Stdout.Write(imageBytes); err != nil {
						return fmt.Errorf("failed to write to stdout: %v", err)
					}
					return nil
				}
			}

			printJson(response)
			return responseError(response)
		})
	},
}

// saveScreenshot writes the base64 image of response to path.
func saveScreenshot(response *commands.CommandResponse, path string) *commands.CommandResponse {
	screenshotResp, ok := response.Data.(commands.ScreenshotResponse)
	if !ok {
		return response
	}

	imageBytes, err := base64.StdEncoding.DecodeString(screenshotResp.Data)
	if err != nil {
		return commands.NewErrorResponse(fmt.Errorf("failed to decode image data: %v", err))
	}
	if err := os.WriteFile(path, imageBytes, 0o644); err != nil {
		return commands.NewErrorResponse(fmt.Errorf("failed to write screenshot to %s: %v", path, err))
	}
	return commands.NewSuccessResponse(commands.ScreenshotResponse{Format: screenshotResp.Format, FilePath: path})
}

func init() {
	rootCmd.AddCommand(screenshotCmd)

	screenshotCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to take screenshot from")
	screenshotCmd.Flags().StringVarP(&screenshotOutputPath, "output", "o", "", "Output file path for screenshot (e.g., screen.png, or '-' for stdout)")
	screenshotCmd.Flags().StringVarP(&screenshotFormat, "format", "f", "png", "Output format for screenshot (png or jpeg)")
	screenshotCmd.Flags().IntVarP(&screenshotJpegQuality, "quality", "q", 90, "JPEG quality (1-100, only applies if format is jpeg)")
	screenshotCmd.Flags().BoolVar(&screenshotCompressed, "compressed", false, "re-encode as JPEG at the given quality")
}
