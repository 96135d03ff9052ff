package cli

import (
	"context"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/spf13/cobra"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage applications on devices",
	Long:  `Launch and terminate applications, or find out which one is in the foreground.`,
}

var appsLaunchCmd = &cobra.Command{
	Use:   "launch [bundle_id]",
	Short: "Launch an app on a device",
	Long:  `Launches an app on the specified device using its bundle ID or package name (e.g., "com.example.app").`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.AppRequest{
			DeviceID: deviceId,
			BundleID: args[0],
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.LaunchAppCommand(ctx, c, req)
		})
	},
}

var appsTerminateCmd = &cobra.Command{
	Use:   "terminate [bundle_id]",
	Short: "Terminate an app on a device",
	Long:  `Terminates an app on the specified device. Without a bundle ID the foreground app is terminated.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.AppRequest{DeviceID: deviceId}
		if len(args) == 1 {
			req.BundleID = args[0]
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.TerminateAppCommand(ctx, c, req)
		})
	},
}

var appsForegroundCmd = &cobra.Command{
	Use:   "foreground",
	Short: "Show the app currently in the foreground",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.ForegroundAppCommand(ctx, c, commands.DeviceRequest{DeviceID: deviceId})
		})
	},
}

func init() {
	rootCmd.AddCommand(appsCmd)

	appsCmd.AddCommand(appsLaunchCmd)
	appsCmd.AddCommand(appsTerminateCmd)
	appsCmd.AddCommand(appsForegroundCmd)

	appsLaunchCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to launch app on")
	appsTerminateCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to terminate app on")
	appsForegroundCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to inspect")
}
