package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia/internal/cli/ui"
	"github.com/bluevia-go/bluevia/internal/config"
	"github.com/bluevia-go/bluevia/internal/forward"
	"github.com/bluevia-go/bluevia/internal/server"
	"github.com/bluevia-go/bluevia/internal/watch"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive delivery status and message notifications",
	Long: `Start the notification listener. BlueVia posts delivery status updates to
/delivery_status and received messages to /received_messaging; each one is
forwarded to the configured sinks.

The listener also serves /authorize, which sends a user through the OAuth
flow and saves the resulting access token.

With --tls-domain a certificate is obtained automatically and port 80 answers
ACME challenges.`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().Int("port", 0, "Listener port (default: server.port)")
	listenCmd.Flags().String("host", "", "Listener host (default: server.host)")
	listenCmd.Flags().String("tls-domain", "", "Domain for an automatic TLS certificate")
	listenCmd.Flags().String("public-url", "", "Public base URL BlueVia reaches the listener at")
	listenCmd.Flags().Bool("no-auth", false, "Do not serve the OAuth authorization routes")
	listenCmd.Flags().Bool("watch", false, "Also poll the inboxes on watch.schedule")
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if u, _ := cmd.Flags().GetString("public-url"); u != "" {
		cfg.Server.PublicURL = u
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	sinks, err := buildSinks(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	dispatcher := forward.NewDispatcher(logger, sinks...)
	defer dispatcher.Close()

	opts := server.Options{
		Address:         cfg.Address(),
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		Events:          dispatcher,
		Logger:          logger,
	}

	noAuth, _ := cmd.Flags().GetBool("no-auth")
	watchInbox, _ := cmd.Flags().GetBool("watch")
	if !noAuth || watchInbox {
		client, err := newAPIClient(cfg, logger, false)
		if err != nil {
			return err
		}
		if !noAuth {
			path := configFile(cmd)
			opts.Auth = client
			opts.Scopes = cfg.API.Scopes
			opts.RedirectURI = cfg.RedirectURL()
			opts.OnToken = func(token string) error {
				if err := config.SetValue(path, "api.access_token", token); err != nil {
					return err
				}
				client.SetAccessToken(token)
				logger.Info("access token saved", "config", path)
				return nil
			}
		}
		if watchInbox {
			w, err := watch.New(client, dispatcher, cfg.Watch.Schedule, logger)
			if err != nil {
				return err
			}
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Error("inbox watcher stopped", "error", err)
				}
			}()
		}
	}

	if cfg.Server.TLSDomain != "" {
		tlsCfg, err := buildTLSConfig(ctx, cfg, logger)
		if err != nil {
			return err
		}
		opts.TLSConfig = tlsCfg
	}

	srv := server.New(opts)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		errCh <- srv.StartWithReady(ready)
	}()

	select {
	case <-ready:
		printListenBanner(cfg, opts.Auth != nil)
	case err := <-errCh:
		return portError(cfg.Server.Port, err)
	}

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		fmt.Fprintf(os.Stderr, "\n  Shutting down... (press Ctrl-C again to force)\n")
		signal.Stop(sigCh)

		cancel()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		return nil
	}
}

// buildTLSConfig obtains a certificate for server.tls_domain and serves
// HTTP-01 challenges on port 80, redirecting everything else to https.
func buildTLSConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tls.Config, error) {
	certDir := cfg.Server.TLSCertDir
	if certDir == "" {
		certDir = "./bluevia_certs"
	}
	if cfg.Server.TLSEmail != "" {
		certmagic.DefaultACME.Email = cfg.Server.TLSEmail
	}

	magic := certmagic.NewDefault()
	magic.Storage = &certmagic.FileStorage{Path: certDir}

	logger.Info("obtaining TLS certificate", "domain", cfg.Server.TLSDomain)
	if err := magic.ManageSync(ctx, []string{cfg.Server.TLSDomain}); err != nil {
		return nil, fmt.Errorf("obtaining TLS certificate for %s: %w", cfg.Server.TLSDomain, err)
	}

	go func() {
		base := cfg.PublicBaseURL()
		handler := certmagic.DefaultACME.HTTPChallengeHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, base+r.RequestURI, http.StatusMovedPermanently)
		}))
		srv := &http.Server{
			Addr:              ":80",
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			logger.Warn("HTTP redirect listener error", "error", err)
		}
	}()

	return magic.TLSConfig(), nil
}

// portError wraps common listen errors with actionable suggestions.
func portError(port int, err error) error {
	if strings.Contains(err.Error(), "address already in use") {
		return fmt.Errorf("%s", ui.FormatError(
			fmt.Sprintf("port %d is already in use", port),
			fmt.Sprintf("bluevia listen --port %d   # use a different port", port+1),
		))
	}
	return err
}

func printListenBanner(cfg *config.Config, auth bool) {
	useColor := colorEnabled()
	base := cfg.PublicBaseURL()
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "  %s %s\n", ui.BrandEmoji, boldCyan("BlueVia listener v"+bannerVersion(buildVersion), useColor))
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Delivery:", cyan(base+"/delivery_status", useColor))
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Messages:", cyan(base+"/received_messaging", useColor))
	if auth {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", "Authorize:", cyan(base+"/authorize", useColor))
	}
	fmt.Fprintf(os.Stderr, "\n  %s\n\n", dim("Press Ctrl-C to stop", useColor))
}

// bannerVersion trims the leading "v" so the banner does not print "vv0.1.0".
func bannerVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}
