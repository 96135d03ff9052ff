package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/config"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/devices"
	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/mobile-next/devicebridge/recording"
	"github.com/mobile-next/devicebridge/server"
	"github.com/mobile-next/devicebridge/utils"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "devicebridge",
	Short: "Drive Android and iOS devices, local or remote, from one place",
	Long: `devicebridge controls Android devices over adb, iOS simulators through idb,
physical iPhones through WebDriverAgent and cloud or farm hosted devices.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	Version:       server.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func initConfig() {
	utils.SetVerbose(verbose)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file (default: "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&backendOverride, "backend", "", "force a backend: cloud_rpc or device_farm")
	rootCmd.PersistentFlags().StringVar(&platformOverride, "platform", "", "platform of the forced backend: android or ios")
}

// Execute runs the root command. Cancelling ctx interrupts long running
// commands such as record and bridge.
func Execute(ctx context.Context) error {
	// enable microseconds in logs
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path, config.NewSecrets())
	if err != nil {
		return nil, err
	}

	if backendOverride != "" {
		cfg.Backend = devices.BackendKind(backendOverride)
	}
	if platformOverride != "" {
		cfg.Platform = devices.Platform(platformOverride)
		cfg.Cloud.Platform = cfg.Platform
	}
	return cfg, nil
}

// newController wires the adapters, the recorder and the configured
// defaults the way every command and the server use them.
func newController(cfg *config.Config) *controller.Controller {
	runner := utils.ExecRunner{}
	factory := devices.NewFactory(runner, adb.NewClient(cfg.ADB.Path, runner), devices.NewClassifier(runner))
	recorder := recording.NewManager(cfg.RecordingOptions(runner))
	return controller.New(factory, recorder, cfg.AdapterConfig())
}

// withSession loads the configuration and builds a controller for one
// command. Whatever the command attached is released once fn returns.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, c *controller.Controller) error) error {
	cfg, err := loadConfig()
	if err != nil {
		printJson(commands.NewErrorResponse(err))
		return err
	}

	c := newController(cfg)
	ctx := cmd.Context()
	defer c.Shutdown(context.WithoutCancel(ctx))

	return fn(ctx, cfg, c)
}

func withController(cmd *cobra.Command, fn func(ctx context.Context, c *controller.Controller) error) error {
	return withSession(cmd, func(ctx context.Context, _ *config.Config, c *controller.Controller) error {
		return fn(ctx, c)
	})
}

// runWithController runs a single command and prints its response.
func runWithController(cmd *cobra.Command, fn func(ctx context.Context, c *controller.Controller) *commands.CommandResponse) error {
	return withController(cmd, func(ctx context.Context, c *controller.Controller) error {
		response := fn(ctx, c)
		printJson(response)
		return responseError(response)
	})
}

func responseError(response *commands.CommandResponse) error {
	if response.Status == "error" {
		return fmt.Errorf("%s", response.Error)
	}
	return nil
}

// printJson is a helper function to print JSON responses
func printJson(data interface{}) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(jsonData))
}
