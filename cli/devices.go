package cli

import (
	"context"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected devices",
	Long:  `Lists Android devices known to adb and iOS simulators and devices known to xcrun, with their platform and type.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.DevicesCommand(ctx, c)
		})
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [device-id]",
	Short: "Report whether an iOS device id is a simulator or a physical device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.ClassifyCommand(ctx, c, commands.DeviceRequest{DeviceID: args[0]})
		})
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to a device and report the backend that serves it",
	Long: `Creates and initializes the adapter for a device, prints its identity and releases it again.
Use it to check that a device is reachable with the current configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.AttachCommand(ctx, c, commands.AttachRequest{
				DeviceID: deviceId,
				Platform: platformOverride,
				Backend:  backendOverride,
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(attachCmd)

	attachCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to attach")
}
