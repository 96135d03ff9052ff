package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/config"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/recording"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the screen of a device",
	Long: `Records the screen of a device until interrupted with Ctrl-C or until the maximum duration is reached,
then finalizes the video and prints where it was written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordMaxDuration < 0 {
			return printError(fmt.Errorf("max duration must be non-negative, got %d", recordMaxDuration))
		}

		return withSession(cmd, func(ctx context.Context, cfg *config.Config, c *controller.Controller) error {
			start := commands.RecordStartCommand(ctx, c, commands.RecordStartRequest{
				DeviceID:           deviceId,
				MaxDurationSeconds: recordMaxDuration,
			})
			if start.Status == "error" {
				printJson(start)
				return responseError(start)
			}

			limit := time.Duration(recordMaxDuration) * time.Second
			if limit == 0 {
				limit = cfg.Recording.MaxDuration
			}
			if limit <= 0 {
				limit = recording.DefaultMaxDuration
			}

			fmt.Fprintf(os.Stderr, "Recording for up to %s, press Ctrl-C to stop\n", limit)
			timer := time.NewTimer(limit)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
			timer.Stop()

			// finalizing must outlive the interrupt that ended the recording
			stop := commands.RecordStopCommand(context.WithoutCancel(ctx), c, commands.RecordStopRequest{DeviceID: deviceId})
			if stop.Status == "ok" && recordOutputPath != "" {
				stop = moveRecording(stop, recordOutputPath)
			}

			printJson(stop)
			return responseError(stop)
		})
	},
}

// moveRecording moves the finished video to path and updates the response.
func moveRecording(response *commands.CommandResponse, path string) *commands.CommandResponse {
	result, ok := response.Data.(*recording.Result)
	if !ok || result.Path == "" {
		return response
	}

	if err := os.Rename(result.Path, path); err != nil {
		return commands.NewErrorResponse(fmt.Errorf("recording kept at %s, failed to move it to %s: %v", result.Path, path, err))
	}

	moved := *result
	moved.Path = path
	return commands.NewSuccessResponse(&moved)
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to record")
	recordCmd.Flags().IntVar(&recordMaxDuration, "max-duration", 0, "maximum recording length in seconds (default from configuration, 900)")
	recordCmd.Flags().StringVarP(&recordOutputPath, "output", "o", "", "where to write the finished video (e.g., session.mp4)")
}
