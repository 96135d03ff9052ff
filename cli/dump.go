package cli

import (
	"context"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump operations with devices",
	Long:  `Extract the UI element tree or a combined screen snapshot from a device.`,
}

var dumpUICmd = &cobra.Command{
	Use:   "ui",
	Short: "Dump the UI element tree of a device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.DumpUICommand(ctx, c, commands.DumpUIRequest{DeviceID: deviceId})
		})
	},
}

var dumpScreenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Dump a screenshot together with the UI element tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.ScreenDataCommand(ctx, c, commands.DeviceRequest{DeviceID: deviceId})
		})
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.AddCommand(dumpUICmd)
	dumpCmd.AddCommand(dumpScreenCmd)

	dumpUICmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to dump the UI tree from")
	dumpScreenCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to dump the screen from")
}
