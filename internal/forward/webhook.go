package forward

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	webhookIssuer   = "bluevia"
	webhookTokenTTL = 5 * time.Minute
)

// WebhookClaims are carried by the bearer token of a webhook request. BodySHA256
// binds the token to the exact request body.
type WebhookClaims struct {
	jwt.RegisteredClaims
	Kind       string `json:"kind"`
	BodySHA256 string `json:"body_sha256"`
}

// WebhookSink POSTs every event as JSON to a URL. Each request carries an
// HS256 bearer token signed with the shared secret.
type WebhookSink struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookSink creates a WebhookSink.
func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Forward(ctx context.Context, e *Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("webhook: encoding event: %w", err)
	}
	token, err := s.sign(e.Kind, payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-BlueVia-Event", e.Kind)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (s *WebhookSink) sign(kind string, payload []byte) (string, error) {
	now := s.now()
	sum := sha256.Sum256(payload)
	claims := &WebhookClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    webhookIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(webhookTokenTTL)),
		},
		Kind:       kind,
		BodySHA256: hex.EncodeToString(sum[:]),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("webhook: signing: %w", err)
	}
	return token, nil
}

// VerifyWebhook checks the Authorization header of a webhook request against
// its body. Receivers of WebhookSink requests use it to authenticate them.
func VerifyWebhook(secret, authorization string, body []byte) (*WebhookClaims, error) {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || raw == "" {
		return nil, errors.New("missing bearer token")
	}
	claims := &WebhookClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(webhookIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	sum := sha256.Sum256(body)
	if claims.BodySHA256 != hex.EncodeToString(sum[:]) {
		return nil, errors.New("body does not match token")
	}
	return claims, nil
}
