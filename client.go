// Package bluevia is a client for the BlueVia messaging API: OAuth 2.0
// authorization, sending SMS and MMS, delivery status and received
// messages, and parsing of the notifications BlueVia posts back.
//
//	c, err := bluevia.NewClient(bluevia.Config{
//		ClientID:     id,
//		ClientSecret: secret,
//		AccessToken:  token,
//	})
//	id, err := c.SendSMS(ctx, bluevia.OutboundSMS{To: "34600000000", Message: "Hello"})
package bluevia

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Base URLs.
const (
	LiveBaseURL    = "https://live-api.bluevia.com/"
	SandboxBaseURL = "https://sandbox-api.bluevia.com/"
	AuthBaseURL    = "https://id.tu.com/"
)

// OAuth scopes.
const (
	ScopeSMS = "sms.send"
	ScopeMMS = "mms.send"
)

const (
	pathAccessToken = "oauth2/token"
	pathSMSOutbound = "sms/v2/smsoutbound"
	pathSMSInbound  = "sms/v2/smsinbound"
	pathMMSOutbound = "mms/v2/mmsoutbound"
	pathMMSInbound  = "mms/v2/mmsinbound"
)

const defaultTimeout = 30 * time.Second

// Shared by every client without its own HTTPClient. Credentials are set per
// request so the pool carries no per-client state.
var defaultHTTPClient = &http.Client{Timeout: defaultTimeout}

// Config configures a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	// AccessToken authorizes bearer calls. It can also be set later with
	// SetAccessToken or obtained with ExchangeCode.
	AccessToken string
	// Sandbox selects the sandbox API instead of the live one.
	Sandbox bool
	// BaseURL and AuthBaseURL override the API and authorization server
	// URLs. A trailing slash is added when missing.
	BaseURL     string
	AuthBaseURL string
	// Certificate enables partner mode: every call is made over mutual TLS
	// with basic authentication, and messages may carry a sender.
	Certificate *tls.Certificate
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client calls the BlueVia API with one set of credentials. It is safe for
// concurrent use, including replacing the token while calls are in flight.
type Client struct {
	clientID     string
	clientSecret string
	partner      bool

	baseURL     string
	authBaseURL string
	httpClient  *http.Client
	logger      *slog.Logger

	// mu guards accessToken, redirectURI and state.
	mu          sync.RWMutex
	accessToken string
	redirectURI string
	state       string
}

// NewClient creates a Client. ClientID and ClientSecret are required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("bluevia: client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("bluevia: client secret is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = LiveBaseURL
		if cfg.Sandbox {
			baseURL = SandboxBaseURL
		}
	}
	authBaseURL := cfg.AuthBaseURL
	if authBaseURL == "" {
		authBaseURL = AuthBaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = defaultHTTPClient
		if cfg.Certificate != nil {
			httpClient = partnerHTTPClient(*cfg.Certificate)
		}
	}

	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		accessToken:  cfg.AccessToken,
		partner:      cfg.Certificate != nil,
		baseURL:      withSlash(baseURL),
		authBaseURL:  withSlash(authBaseURL),
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

func partnerHTTPClient(cert tls.Certificate) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return &http.Client{Timeout: defaultTimeout, Transport: tr}
}

func withSlash(u string) string {
	return strings.TrimRight(u, "/") + "/"
}

// SetAccessToken sets the token used for bearer calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// AccessToken returns the current access token, if any.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Authenticated reports whether an access token is set.
func (c *Client) Authenticated() bool { return c.AccessToken() != "" }

// Partner reports whether the client runs in partner mode.
func (c *Client) Partner() bool { return c.partner }

// ClientID returns the OAuth client id.
func (c *Client) ClientID() string { return c.clientID }
