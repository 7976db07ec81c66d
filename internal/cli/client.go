package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/pkcs12"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/cli/ui"
	"github.com/bluevia-go/bluevia/internal/config"
	"github.com/bluevia-go/bluevia/internal/store"
)

// loadConfig resolves the configuration for a command: the --config file,
// BLUEVIA_* variables and the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	flags := map[string]string{}
	for _, name := range []string{"access-token", "port", "host", "tls-domain", "log-level"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			flags[name] = f.Value.String()
		}
	}
	if sandbox, _ := cmd.Flags().GetBool("sandbox"); sandbox {
		flags["sandbox"] = strconv.FormatBool(sandbox)
	}

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// configFile returns the file `config set` and `auth login` write to.
func configFile(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultPath
	}
	return path
}

// newAPIClient builds a BlueVia client from configuration. needToken makes a
// missing access token an error for commands that call bearer endpoints.
func newAPIClient(cfg *config.Config, logger *slog.Logger, needToken bool) (*bluevia.Client, error) {
	if cfg.API.ClientID == "" || cfg.API.ClientSecret == "" {
		return nil, errors.New(ui.FormatError(
			"api.client_id and api.client_secret are not configured",
			"bluevia config set api.client_id YOUR_CLIENT_ID",
			"bluevia config set api.client_secret YOUR_CLIENT_SECRET",
		))
	}

	cert, err := loadCertificate(cfg.API)
	if err != nil {
		return nil, err
	}
	if needToken && cfg.API.AccessToken == "" && cert == nil {
		return nil, errors.New(ui.FormatError(
			"no access token configured",
			"bluevia auth login",
			"export BLUEVIA_API_ACCESS_TOKEN=...",
		))
	}

	return bluevia.NewClient(bluevia.Config{
		ClientID:     cfg.API.ClientID,
		ClientSecret: cfg.API.ClientSecret,
		AccessToken:  cfg.API.AccessToken,
		Sandbox:      cfg.API.Sandbox,
		BaseURL:      cfg.API.BaseURL,
		AuthBaseURL:  cfg.API.AuthBaseURL,
		Certificate:  cert,
		HTTPClient:   apiHTTPClient(time.Duration(cfg.API.Timeout)*time.Second, cert),
		Logger:       logger,
	})
}

func apiHTTPClient(timeout time.Duration, cert *tls.Certificate) *http.Client {
	if cert == nil {
		return &http.Client{Timeout: timeout}
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// loadCertificate reads the partner certificate, either a PEM cert/key pair
// or a PKCS#12 bundle. It returns nil when no certificate is configured.
func loadCertificate(api config.APIConfig) (*tls.Certificate, error) {
	if api.CertFile == "" {
		return nil, nil
	}
	if config.IsPKCS12(api.CertFile) && api.KeyFile == "" {
		data, err := os.ReadFile(api.CertFile)
		if err != nil {
			return nil, fmt.Errorf("reading partner certificate: %w", err)
		}
		key, leaf, err := pkcs12.Decode(data, api.CertPassword)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", api.CertFile, err)
		}
		return &tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		}, nil
	}
	cert, err := tls.LoadX509KeyPair(api.CertFile, api.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading partner certificate: %w", err)
	}
	return &cert, nil
}

// openStore opens the message store, or returns nil when it is disabled.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	source := cfg.Store.Path
	if cfg.Store.Driver == store.DriverPostgres {
		source = cfg.Store.DSN
	}
	st, err := store.Open(ctx, cfg.Store.Driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening message store: %w", err)
	}
	return st, nil
}

// commandContext returns the command's context, or a background one when the
// command runs outside Execute (as in tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
