package cli

import (
	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/server"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run system diagnostics",
	Long:  `Reports the host tools every backend depends on and where they were found.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		response := commands.DoctorCommand(cmd.Context(), server.Version, nil)
		printJson(response)
		return responseError(response)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
