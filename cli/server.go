package cli

import (
	"context"
	"fmt"

	"github.com/mobile-next/devicebridge/config"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/daemon"
	"github.com/mobile-next/devicebridge/server"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Server management commands",
	Long:  `Commands for managing the devicebridge JSON-RPC server.`,
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the devicebridge server",
	Long:  `Starts the JSON-RPC server on HTTP (/rpc) and WebSocket (/ws).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// GetBool/GetString cannot fail for defined flags
		listenAddr, _ := cmd.Flags().GetString("listen")
		enableCORS, _ := cmd.Flags().GetBool("cors")
		isDaemon, _ := cmd.Flags().GetBool("daemon")
		logFile, _ := cmd.Flags().GetString("log-file")

		if isDaemon && !daemon.IsChild() {
			child, err := daemon.Daemonize(logFile)
			if err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}
			if child != nil {
				fmt.Printf("Server daemon spawned with pid %d\n", child.Pid)
				return nil
			}
		}

		return withSession(cmd, func(ctx context.Context, cfg *config.Config, c *controller.Controller) error {
			if listenAddr == "" {
				listenAddr = cfg.Server.Listen
			}
			srv := server.New(c, server.Options{EnableCORS: enableCORS || cfg.Server.CORS})
			return srv.ListenAndServe(ctx, listenAddr)
		})
	},
}

var serverKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Stop the daemonized devicebridge server",
	Long:  `Connects to the server and sends a shutdown command via JSON-RPC.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// GetString cannot fail for defined flags
		addr, _ := cmd.Flags().GetString("listen")
		if addr == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr = cfg.Server.Listen
		}

		if err := daemon.KillServer(addr); err != nil {
			return err
		}

		fmt.Printf("Server shutdown command sent successfully\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverKillCmd)

	serverStartCmd.Flags().String("listen", "", fmt.Sprintf("Address to listen on (default: %s)", config.DefaultListen))
	serverStartCmd.Flags().Bool("cors", false, "Enable CORS support")
	serverStartCmd.Flags().BoolP("daemon", "d", false, "Run server in daemon mode (background)")
	serverStartCmd.Flags().String("log-file", "", "File that receives the daemon's output")

	serverKillCmd.Flags().String("listen", "", fmt.Sprintf("Address of server to kill (default: %s)", config.DefaultListen))
}
