// Package server receives BlueVia notifications and completes the OAuth
// authorization flow for the bluevia listen command.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/forward"
	"github.com/bluevia-go/bluevia/internal/httputil"
)

// stateTTL bounds how long an authorization request may stay unanswered.
const stateTTL = 10 * time.Minute

// Authorizer runs the OAuth authorization code flow. *bluevia.Client
// satisfies it.
type Authorizer interface {
	AuthorizationURL(scopes []string, redirectURI, state string) string
	ParseAuthorizationResponse(rawURL, expectedState string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
}

// Events accepts parsed notifications. *forward.Dispatcher satisfies it.
type Events interface {
	Enqueue(e *forward.Event) bool
}

// Options configure a Server.
type Options struct {
	Address string
	// TLSConfig, when set, makes the listener serve HTTPS.
	TLSConfig       *tls.Config
	ShutdownTimeout time.Duration

	Events Events

	// Auth enables /authorize and /authorization_response. OnToken is
	// called with every access token obtained.
	Auth        Authorizer
	Scopes      []string
	RedirectURI string
	OnToken     func(token string) error

	Logger *slog.Logger
}

// Server is the notification and OAuth callback HTTP server.
type Server struct {
	opts   Options
	router *chi.Mux
	http   *http.Server
	logger *slog.Logger

	// authMu serializes calls into Auth, which keeps per-request state.
	authMu sync.Mutex
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

// New creates a Server with middleware and routes configured.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:   opts,
		logger: logger,
		states: make(map[string]time.Time),
		now:    time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/delivery_status", s.handleDeliveryStatus)
	r.Post("/received_messaging", s.handleReceivedMessaging)
	if opts.Auth != nil {
		r.Get("/authorize", s.handleAuthorize)
		r.Get("/authorization_response", s.handleAuthorizationResponse)
	}
	s.router = r
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	return s.StartWithReady(nil)
}

// StartWithReady begins listening. It closes ready, when non-nil, once the
// listener is bound, then blocks serving requests.
func (s *Server) StartWithReady(ready chan<- struct{}) error {
	s.http = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	scheme := "http"
	if s.opts.TLSConfig != nil {
		ln = tls.NewListener(ln, s.opts.TLSConfig)
		scheme = "https"
	}

	s.logger.Info("server starting", "address", ln.Addr().String(), "scheme", scheme)
	if ready != nil {
		close(ready)
	}

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.ReadBody(w, r)
	if !ok {
		return
	}
	ds, err := bluevia.ParseDeliveryStatus(r.Header.Get("Content-Type"), body)
	if err != nil {
		s.writeParseError(w, r, "delivery status", err)
		return
	}
	s.accept(w, forward.DeliveryStatusEvent(forward.SourceNotification, ds))
}

// handleReceivedMessaging takes both inbound SMS (a JSON or XML document) and
// inbound MMS (a multipart body) on one callback URL.
func (s *Server) handleReceivedMessaging(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.ReadBody(w, r)
	if !ok {
		return
	}
	contentType := r.Header.Get("Content-Type")

	var e *forward.Event
	switch mediaFamily(contentType) {
	case "application":
		sms, err := bluevia.ParseReceivedSMS(contentType, body)
		if err != nil {
			s.writeParseError(w, r, "received sms", err)
			return
		}
		e = forward.SMSEvent(forward.SourceNotification, sms)
	case "multipart":
		mms, err := bluevia.ParseReceivedMMS(contentType, body)
		if err != nil {
			s.writeParseError(w, r, "received mms", err)
			return
		}
		e = forward.MMSEvent(forward.SourceNotification, mms)
	default:
		httputil.WriteError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported content type %q", contentType))
		return
	}
	s.accept(w, e)
}

func (s *Server) accept(w http.ResponseWriter, e *forward.Event) {
	if s.opts.Events != nil && !s.opts.Events.Enqueue(e) {
		httputil.WriteError(w, http.StatusServiceUnavailable, "notification queue is full")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) writeParseError(w http.ResponseWriter, r *http.Request, what string, err error) {
	s.logger.Warn("rejected notification",
		"kind", what,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
	var ce *bluevia.ContentTypeError
	if errors.As(err, &ce) {
		httputil.WriteError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	httputil.WriteError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	state := bluevia.NewState()
	s.rememberState(state)

	s.authMu.Lock()
	target := s.opts.Auth.AuthorizationURL(s.opts.Scopes, s.opts.RedirectURI, state)
	s.authMu.Unlock()

	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleAuthorizationResponse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	_, failed := q["error"]
	if !s.takeState(state) && !failed {
		httputil.WriteError(w, http.StatusBadRequest, "unknown or expired authorization state")
		return
	}

	s.authMu.Lock()
	defer s.authMu.Unlock()

	code, err := s.opts.Auth.ParseAuthorizationResponse(r.URL.String(), state)
	if err != nil {
		s.logger.Warn("authorization failed", "error", err)
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := s.opts.Auth.ExchangeCode(r.Context(), code, s.opts.RedirectURI)
	if err != nil {
		s.logger.Error("exchanging authorization code failed", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "exchanging authorization code: "+err.Error())
		return
	}
	if s.opts.OnToken != nil {
		if err := s.opts.OnToken(token); err != nil {
			s.logger.Error("saving access token failed", "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "saving access token: "+err.Error())
			return
		}
	}

	s.logger.Info("application authorized")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Application authorized. You can close this window.\n"))
}

func (s *Server) rememberState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.states {
		if now.After(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(stateTTL)
}

// takeState consumes a pending state. It reports false for states never
// issued, already used, or expired.
func (s *Server) takeState(state string) bool {
	if state == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return !s.now().After(exp)
}
