package bluevia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/bluevia-go/bluevia/internal/mmsbody"
)

type authScheme int

const (
	authBearer authScheme = iota
	authBasic
)

// requestBody is the payload of a POST. The operation picks the variant.
type requestBody interface {
	encode() (contentType string, data []byte, err error)
}

// jsonBody is sent as application/json.
type jsonBody struct {
	Value any
}

func (b jsonBody) encode() (string, []byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b.Value); err != nil {
		return "", nil, err
	}
	return "application/json", bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// formBody is sent as application/x-www-form-urlencoded.
type formBody struct {
	Values url.Values
}

func (b formBody) encode() (string, []byte, error) {
	return "application/x-www-form-urlencoded", []byte(b.Values.Encode()), nil
}

// multipartBody is sent as multipart/mixed: JSON metadata then attachments.
type multipartBody struct {
	Metadata    any
	Attachments []Attachment
}

func (b multipartBody) encode() (string, []byte, error) {
	body, err := mmsbody.Build(b.Metadata, b.Attachments)
	if err != nil {
		return "", nil, err
	}
	return body.ContentType(), body.Bytes(), nil
}

// result is a decoded successful response. A nil *result means the response
// had no content.
type result struct {
	json        any
	metadata    map[string]any
	attachments []Part
}

// Metadata fields read from XML multipart bodies.
var mmsFields = []string{"id", "from", "to", "subject", "timestamp"}

// do calls endpoint, a path relative to the API base URL. A nil body makes
// a GET, anything else a POST.
func (c *Client) do(ctx context.Context, endpoint string, body requestBody, scheme authScheme) (*result, error) {
	u := c.baseURL + strings.TrimLeft(endpoint, "/")

	basic := scheme == authBasic || c.partner
	token := c.AccessToken()
	if !basic && token == "" {
		return nil, &AccessTokenError{URL: u}
	}

	method := http.MethodGet
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		ct, data, err := body.encode()
		if err != nil {
			return nil, fmt.Errorf("bluevia: encode body: %w", err)
		}
		method, contentType, reader = http.MethodPost, ct, bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("bluevia: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, multipart/mixed")
	if basic {
		req.SetBasicAuth(c.clientID, c.clientSecret)
	} else {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("bluevia request", "method", method, "url", u, "content_type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bluevia: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bluevia: read response: %w", err)
	}

	c.logger.Debug("bluevia response",
		"method", method,
		"url", u,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"bytes", len(respBody),
	)

	return decodeResponse(resp, respBody)
}

// decodeResponse maps a response to a result or a typed error. It does no
// I/O; body is the fully read response body.
func decodeResponse(resp *http.Response, body []byte) (*result, error) {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, newAPIError(resp, body)
	}

	if len(body) == 0 {
		return nil, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.TrimSpace(contentType) == "" {
		return nil, mmsbody.NewContentTypeError("", -1, "HTTP response does not contain a Content-Type header")
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch mt {
	case "application/json":
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, &ValueError{Format: "JSON", Err: err}
		}
		return &result{json: v}, nil
	case "multipart/mixed":
		meta, parts, err := mmsbody.Parse(contentType, body, mmsFields)
		if err != nil {
			return nil, err
		}
		return &result{metadata: meta, attachments: parts}, nil
	default:
		return nil, mmsbody.NewContentTypeError(contentType, -1,
			"unsupported Content-Type %q in HTTP response (only application/json and multipart/mixed are supported)", contentType)
	}
}
