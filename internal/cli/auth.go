package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/cli/ui"
	"github.com/bluevia-go/bluevia/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize bluevia to send messages for a user",
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the authorization URL for a user to visit",
	RunE:  runAuthURL,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize interactively and save the access token",
	Long: `Print the authorization URL, then read the URL the browser was redirected
to and exchange its code for an access token. The token is written to the
config file as api.access_token.

With a listener reachable by the browser, visit its /authorize page instead:
  bluevia listen`,
	RunE: runAuthLogin,
}

var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the configured access token",
	RunE:  runAuthToken,
}

func init() {
	for _, c := range []*cobra.Command{authURLCmd, authLoginCmd} {
		c.Flags().StringSlice("scope", nil, "OAuth scopes (default: api.scopes)")
		c.Flags().String("redirect-uri", "", "Redirect URI registered for the application (default: api.redirect_uri)")
	}
	authLoginCmd.Flags().String("response", "", "Redirected URL, instead of reading it from stdin")
	authTokenCmd.Flags().Bool("reveal", false, "Print the full token")

	authCmd.AddCommand(authURLCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authTokenCmd)
}

func authScopes(cmd *cobra.Command, cfg *config.Config) []string {
	if scopes, _ := cmd.Flags().GetStringSlice("scope"); len(scopes) > 0 {
		return scopes
	}
	return cfg.API.Scopes
}

func authRedirectURI(cmd *cobra.Command, cfg *config.Config) string {
	if uri, _ := cmd.Flags().GetString("redirect-uri"); uri != "" {
		return uri
	}
	return cfg.API.RedirectURI
}

func runAuthURL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg, newLogger(cfg.Logging.Level, cfg.Logging.Format), false)
	if err != nil {
		return err
	}

	state := bluevia.NewState()
	u := client.AuthorizationURL(authScopes(cmd, cfg), authRedirectURI(cmd, cfg), state)

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"url": u, "state": state})
	}
	fmt.Println(u)
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg, newLogger(cfg.Logging.Level, cfg.Logging.Format), false)
	if err != nil {
		return err
	}

	redirectURI := authRedirectURI(cmd, cfg)
	state := bluevia.NewState()
	u := client.AuthorizationURL(authScopes(cmd, cfg), redirectURI, state)

	response, _ := cmd.Flags().GetString("response")
	if response == "" {
		fmt.Fprintf(os.Stderr, "\n  Open this URL in a browser and authorize the application:\n\n    %s\n\n", ui.StyleCode.Render(u))
		fmt.Fprintf(os.Stderr, "  Then paste the URL you were redirected to: ")
		sc := bufio.NewScanner(cmd.InOrStdin())
		sc.Buffer(make([]byte, 0, 4096), 64*1024)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return fmt.Errorf("reading redirected URL: %w", err)
			}
			return errors.New("no redirected URL given")
		}
		response = strings.TrimSpace(sc.Text())
	}

	code, err := client.ParseAuthorizationResponse(response, state)
	if err != nil {
		return err
	}
	token, err := client.ExchangeCode(commandContext(cmd), code, redirectURI)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	path := configFile(cmd)
	if err := config.SetValue(path, "api.access_token", token); err != nil {
		return fmt.Errorf("saving access token: %w", err)
	}
	fmt.Fprintf(os.Stderr, "  %s Access token saved to %s\n", ui.StyleSuccess.Render(ui.SymbolCheck), path)
	return nil
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	token := cfg.API.AccessToken
	if token == "" {
		return errors.New(ui.FormatError("no access token configured", "bluevia auth login"))
	}
	if reveal, _ := cmd.Flags().GetBool("reveal"); !reveal {
		token = maskToken(token)
	}
	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"access_token": token})
	}
	fmt.Println(token)
	return nil
}

// maskToken keeps the first and last four characters of long tokens.
func maskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
