package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	blueviamcp "github.com/bluevia-go/bluevia/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP (Model Context Protocol) server",
	Long: `Start a Model Context Protocol server on stdio that exposes the BlueVia SMS
and MMS operations as tools for AI assistants.

The server uses the credentials and access token from bluevia.toml. Sent
messages ask for delivery notifications when server.public_url is set.

Configuration in Claude Desktop (claude_desktop_config.json):
  {
    "mcpServers": {
      "bluevia": {
        "command": "bluevia",
        "args": ["mcp", "--config", "/path/to/bluevia.toml"]
      }
    }
  }`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().Bool("no-callback", false, "Do not ask for delivery status notifications")
	mcpCmd.Flags().String("callback-url", "", "URL for delivery status notifications")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr.
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	client, err := newAPIClient(cfg, logger, true)
	if err != nil {
		return err
	}

	srv := blueviamcp.NewServer(client, blueviamcp.Config{
		CallbackURL:      callbackURL(cmd, cfg),
		AllowedCountries: cfg.API.AllowedCountries,
		Version:          buildVersion,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
