package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/config"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
	Long: `Store, inspect and remove the credentials remote backends use.
Secrets live in the system keyring. The environment variables DEVICEBRIDGE_CLOUD_TOKEN
and DEVICEBRIDGE_FARM_ACCESS_KEY take precedence over stored values.`,
}

// readSecret takes the value from args, or the first line of stdin.
func readSecret(args []string, stdin io.Reader) (string, error) {
	if len(args) > 1 {
		return strings.TrimSpace(args[1]), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

var authSetCmd = &cobra.Command{
	Use:       "set [cloud-token|farm-access-key] [value]",
	Short:     "Store a credential in the keyring",
	Long:      `Stores a credential. Without a value argument it is read from stdin, so it stays out of shell history.`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: config.SecretUsers(),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecret(args, cmd.InOrStdin())
		if err != nil {
			return printError(err)
		}
		if err := config.NewSecrets().Set(args[0], value); err != nil {
			return printError(err)
		}
		printJson(commands.NewSuccessResponse(map[string]string{"message": fmt.Sprintf("%s stored", args[0])}))
		return nil
	},
}

var authDeleteCmd = &cobra.Command{
	Use:       "delete [cloud-token|farm-access-key]",
	Short:     "Remove a credential from the keyring",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.SecretUsers(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewSecrets().Delete(args[0]); err != nil {
			return printError(err)
		}
		printJson(commands.NewSuccessResponse(map[string]string{"message": fmt.Sprintf("%s removed", args[0])}))
		return nil
	},
}

// CredentialStatus tells where a credential would be read from.
type CredentialStatus struct {
	Name   string `json:"name"`
	Stored bool   `json:"stored"`
	Source string `json:"source,omitempty"`
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials are available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secrets := config.NewSecrets()
		statuses := make([]CredentialStatus, 0, len(config.SecretUsers()))
		for _, user := range config.SecretUsers() {
			source := secrets.Source(user)
			statuses = append(statuses, CredentialStatus{Name: user, Stored: source != "", Source: source})
		}
		printJson(commands.NewSuccessResponse(map[string]interface{}{"credentials": statuses}))
		return nil
	},
}

var authTokenCmd = &cobra.Command{
	Use:       "token [cloud-token|farm-access-key]",
	Short:     "Print a stored credential",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.SecretUsers(),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.NewSecrets().Lookup(args[0])
		if err != nil {
			return printError(err)
		}
		if value == "" {
			return fmt.Errorf("no %s found", args[0])
		}
		fmt.Fprintln(os.Stdout, value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd, authDeleteCmd, authStatusCmd, authTokenCmd)
}
