package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/config"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/spf13/cobra"
)

var bridgeConnect bool

var bridgeCmd = &cobra.Command{
	Use:   "bridge [websocket-url]",
	Short: "Expose a remote ADB endpoint on a local TCP port",
	Long: `Opens a local TCP listener that tunnels every connection to a WebSocket ADB endpoint,
such as the one a cloud Android instance offers. Runs until interrupted with Ctrl-C.
Without an argument the cloud adb_url from the configuration is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, cfg *config.Config, c *controller.Controller) error {
			req := commands.TunnelStartRequest{
				RemoteURL: cfg.Cloud.ADBURL,
				Token:     bridgeToken,
			}
			if len(args) == 1 {
				req.RemoteURL = args[0]
			}
			if req.Token == "" {
				req.Token = cfg.Cloud.Token
			}
			if req.RemoteURL == "" {
				return printError(fmt.Errorf("a websocket url is required, pass one or set adb_url in the [cloud] section"))
			}

			response := commands.TunnelStartCommand(ctx, c, req)
			printJson(response)
			if response.Status == "error" {
				return responseError(response)
			}

			if bridgeConnect {
				addr := response.Data.(map[string]string)["address"]
				if err := adb.NewClient(cfg.ADB.Path, nil).Connect(ctx, addr); err != nil {
					return printError(fmt.Errorf("tunnel is up on %s but adb connect failed: %w", addr, err))
				}
				fmt.Fprintf(os.Stderr, "adb connected to %s\n", addr)
			}

			fmt.Fprintln(os.Stderr, "Bridge running, press Ctrl-C to stop")
			<-ctx.Done()
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().StringVar(&bridgeToken, "token", "", "bearer token for the remote endpoint (default: the stored cloud token)")
	bridgeCmd.Flags().BoolVar(&bridgeConnect, "adb-connect", false, "run 'adb connect' against the local endpoint once it is up")
}
