package cli

import (
	"context"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Device information commands",
}

var deviceInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Get device info",
	Long:  `Get information about a device, such as its platform, type and screen size.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.InfoCommand(ctx, c, commands.DeviceRequest{DeviceID: deviceId})
		})
	},
}

func init() {
	rootCmd.AddCommand(deviceCmd)

	deviceCmd.AddCommand(deviceInfoCmd)

	deviceInfoCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to get info from")
}
