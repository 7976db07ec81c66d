package bluevia

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/bluevia-go/bluevia/internal/mmsbody"
	"github.com/bluevia-go/bluevia/internal/sms"
)

// Errors shared with the body codec.
type (
	// ContentTypeError reports a missing or unsupported content type in a
	// response, notification or attachment.
	ContentTypeError = mmsbody.ContentTypeError
	// ValueError reports a body that does not parse as its declared format.
	ValueError = mmsbody.ValueError
	// MissingFieldError reports a required field absent from a payload.
	MissingFieldError = mmsbody.MissingFieldError
)

// ErrUnprefixedAddress is returned when an address in a payload carries
// neither the tel:+ nor the alias: prefix.
var ErrUnprefixedAddress = sms.ErrUnprefixedAddress

// APIError is returned for any response status other than 200, 201 and 204.
type APIError struct {
	StatusCode int
	Reason     string
	// ID is the provider exception id, when the body carried one.
	ID      string
	Message string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("bluevia: API error: [%d %s]", e.StatusCode, e.Reason)
	if e.ID != "" {
		return msg + " " + e.ID + ": " + e.Message
	}
	if e.Message != "" {
		return msg + " " + e.Message
	}
	return msg
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	e := &APIError{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Message:    strings.TrimSpace(string(body)),
	}
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mt != "application/json" {
		return e
	}
	var content struct {
		ExceptionID   string `json:"exceptionId"`
		ExceptionText string `json:"exceptionText"`
		Error         string `json:"error"`
	}
	if json.Unmarshal(body, &content) != nil {
		return e
	}
	switch {
	case content.ExceptionID != "":
		e.ID, e.Message = content.ExceptionID, content.ExceptionText
	case content.Error != "":
		e.Message = content.Error
	}
	return e
}

// reasonPhrase returns the reason phrase the server sent, or the standard
// one for the code.
func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// AccessTokenError is returned before any I/O when a call needs a bearer
// token and none is set.
type AccessTokenError struct {
	URL string
}

func (e *AccessTokenError) Error() string {
	return "bluevia: no access token set for " + e.URL
}

// AuthResponseError reports an authorization response that carries an
// error, is malformed, or does not match the request.
type AuthResponseError struct {
	Reason string
}

func (e *AuthResponseError) Error() string {
	return "bluevia: authorization response: " + e.Reason
}
