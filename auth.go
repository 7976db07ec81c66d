package bluevia

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// NewState returns a random value for correlating an authorization request
// with its response.
func NewState() string {
	return uuid.NewString()
}

// AuthorizationURL returns the URL the user must visit to authorize the
// application for scopes. redirectURI and state are optional; both are
// remembered for ParseAuthorizationResponse and ExchangeCode, replacing any
// previous request.
func (c *Client) AuthorizationURL(scopes []string, redirectURI, state string) string {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("response_type", "code")
	if redirectURI != "" {
		params.Set("redirect_uri", redirectURI)
	}
	if state != "" {
		params.Set("state", state)
	}
	c.mu.Lock()
	c.redirectURI, c.state = redirectURI, state
	c.mu.Unlock()

	u := c.authBaseURL + "authorize?" + params.Encode()
	c.logger.Debug("authorization url built", "url", u)
	return u
}

// ParseAuthorizationResponse extracts the authorization code from the URL
// the authorization server redirected the user to. The echoed state is
// checked against expectedState, or against the state remembered by
// AuthorizationURL when expectedState is empty.
func (c *Client) ParseAuthorizationResponse(rawURL, expectedState string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &AuthResponseError{Reason: "malformed URL: " + err.Error()}
	}
	q := u.Query()

	if errs, ok := q["error"]; ok {
		msg := errs[0]
		if desc := q.Get("error_description"); desc != "" {
			msg += " (" + desc + ")"
		}
		return "", &AuthResponseError{Reason: "authorization server error: " + msg}
	}

	codes, ok := q["code"]
	if !ok {
		return "", &AuthResponseError{Reason: "response does not conform to OAuth 2.0"}
	}
	if len(codes) > 1 {
		return "", &AuthResponseError{Reason: "more than one value for 'code' parameter"}
	}

	if expectedState == "" {
		c.mu.RLock()
		expectedState = c.state
		c.mu.RUnlock()
	}
	if expectedState != "" {
		states, ok := q["state"]
		switch {
		case !ok:
			return "", &AuthResponseError{Reason: "'state' parameter not found"}
		case len(states) > 1:
			return "", &AuthResponseError{Reason: "more than one value for 'state' parameter"}
		case states[0] != expectedState:
			return "", &AuthResponseError{Reason: "'state' parameters do not match"}
		}
	}
	return codes[0], nil
}

// ExchangeCode trades an authorization code for an access token and stores
// it on the client. redirectURI defaults to the one given to
// AuthorizationURL.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	if redirectURI == "" {
		c.mu.RLock()
		redirectURI = c.redirectURI
		c.mu.RUnlock()
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	res, err := c.do(ctx, pathAccessToken, formBody{Values: form}, authBasic)
	if err != nil {
		return "", err
	}
	token, ok := stringField(jsonObject(res), "access_token")
	if !ok {
		return "", &MissingFieldError{Field: "access_token"}
	}
	c.SetAccessToken(token)
	c.logger.Info("access token obtained", "client_id", c.clientID)
	return token, nil
}
