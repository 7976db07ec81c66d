package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia/internal/cli/ui"
	"github.com/bluevia-go/bluevia/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print resolved configuration",
	Long: `Load and print the resolved bluevia configuration as TOML.
Shows the result of merging defaults, bluevia.toml, BLUEVIA_* environment
variables and flags. Credentials are masked.`,
	RunE: runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default bluevia.toml",
	RunE:  runConfigInit,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long: `Get a specific configuration value by dotted key path.
Examples: api.client_id, api.sandbox, server.port, forward.s3.bucket`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in bluevia.toml",
	Long: `Set a configuration value in the bluevia.toml config file.
Creates the file if it doesn't exist.
Examples:
  bluevia config set api.client_id YOUR_CLIENT_ID
  bluevia config set api.sandbox true
  bluevia config set api.allowed_countries ES,GB`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configGetCmd.Flags().Bool("reveal", false, "Print credentials in full")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

// maskSecrets blanks the credentials of a copy of cfg for display.
func maskSecrets(cfg config.Config) config.Config {
	for _, s := range []*string{
		&cfg.API.ClientSecret, &cfg.API.AccessToken, &cfg.API.CertPassword, &cfg.Store.DSN,
		&cfg.Forward.Email.Password, &cfg.Forward.S3.SecretKey, &cfg.Forward.Webhook.Secret,
	} {
		if *s != "" {
			*s = maskToken(*s)
		}
	}
	return cfg
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	masked := maskSecrets(*cfg)

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(masked)
	}

	out, err := masked.ToTOML()
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	fmt.Print(out)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile(cmd)
	if force, _ := cmd.Flags().GetBool("force"); !force {
		if _, err := os.Stat(path); err == nil {
			return errors.New(ui.FormatError(
				fmt.Sprintf("%s already exists", path),
				"bluevia config init --force",
			))
		}
	}
	if err := config.GenerateDefault(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "  %s Wrote %s\n", ui.StyleSuccess.Render(ui.SymbolCheck), path)
	fmt.Fprintf(os.Stderr, "  %s\n", ui.StyleHint.Render("Next: bluevia config set api.client_id YOUR_CLIENT_ID"))
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	key := args[0]
	value, err := config.GetValue(cfg, key)
	if err != nil {
		return err
	}
	if reveal, _ := cmd.Flags().GetBool("reveal"); !reveal && config.IsSecretKey(key) {
		if s, ok := value.(string); ok && s != "" {
			value = maskToken(s)
		}
	}

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"key": key, "value": value})
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := configFile(cmd)
	key, value := args[0], args[1]

	if !config.IsValidKey(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := config.SetValue(path, key, value); err != nil {
		return fmt.Errorf("setting config value: %w", err)
	}

	shown := value
	if config.IsSecretKey(key) {
		shown = maskToken(value)
	}
	fmt.Printf("%s = %s\n", key, shown)
	fmt.Printf("Written to %s\n", path)

	// Only warn: values are often set one at a time.
	if _, err := config.Load(path, nil); err != nil {
		fmt.Fprint(os.Stderr, ui.FormatWarning(err.Error(), "bluevia config"))
	}
	return nil
}
