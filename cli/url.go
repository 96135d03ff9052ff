package cli

import (
	"context"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/spf13/cobra"
)

var urlCmd = &cobra.Command{
	Use:   "url [url]",
	Short: "Open a URL on a device",
	Long:  `Opens a URL or deep link on the specified device`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.URLRequest{
			DeviceID: deviceId,
			URL:      args[0],
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.URLCommand(ctx, c, req)
		})
	},
}

func init() {
	rootCmd.AddCommand(urlCmd)

	urlCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to open URL on")
}
