package bluevia

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluevia-go/bluevia/internal/mmsbody"
)

func response(status int, statusLine, contentType string) *http.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if statusLine == "" {
		statusLine = http.StatusText(status)
	}
	return &http.Response{StatusCode: status, Status: statusLine, Header: h}
}

func TestJSONBodyEncode(t *testing.T) {
	ct, data, err := jsonBody{Value: map[string]any{"to": "tel:+34600000000", "message": "a<b"}}.encode()
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.JSONEq(t, `{"to":"tel:+34600000000","message":"a<b"}`, string(data))
	assert.Contains(t, string(data), "a<b")
}

func TestFormBodyEncode(t *testing.T) {
	ct, data, err := formBody{Values: url.Values{"code": {"A B"}, "grant_type": {"authorization_code"}}}.encode()
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", ct)
	assert.Equal(t, "code=A+B&grant_type=authorization_code", string(data))
}

func TestMultipartBodyEncode(t *testing.T) {
	ct, data, err := multipartBody{
		Metadata:    map[string]any{"subject": "s"},
		Attachments: []Attachment{TextAttachment("t")},
	}.encode()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ct, "multipart/mixed; boundary="), ct)

	meta, parts, err := mmsbody.Parse(ct, data, nil)
	require.NoError(t, err)
	assert.Equal(t, "s", meta["subject"])
	require.Len(t, parts, 1)
}

func TestMultipartBodyEncodeRejectsMedia(t *testing.T) {
	_, _, err := multipartBody{
		Metadata:    map[string]any{},
		Attachments: []Attachment{BinaryAttachment{ContentType: "application/zip", Data: []byte("x")}},
	}.encode()
	var ce *ContentTypeError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 0, ce.Index)
}

func TestDecodeResponseNoContent(t *testing.T) {
	res, err := decodeResponse(response(http.StatusNoContent, "", ""), nil)
	require.NoError(t, err)
	assert.Nil(t, res)

	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		res, err := decodeResponse(response(status, "", "application/json"), []byte{})
		require.NoError(t, err)
		assert.Nil(t, res)
	}
}

func TestDecodeResponseJSON(t *testing.T) {
	res, err := decodeResponse(response(http.StatusCreated, "", "application/json;charset=UTF-8"), []byte(`{"id":"abc"}`))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, map[string]any{"id": "abc"}, res.json)
}

func TestDecodeResponseMalformedJSON(t *testing.T) {
	_, err := decodeResponse(response(http.StatusOK, "", "application/json"), []byte(`{"id":`))
	var ve *ValueError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "JSON", ve.Format)
}

func TestDecodeResponseMultipart(t *testing.T) {
	body, err := mmsbody.Build(map[string]any{"id": "m1"}, []Attachment{
		BinaryAttachment{ContentType: "image/gif", Data: []byte("GIF89a")},
	})
	require.NoError(t, err)

	res, err := decodeResponse(response(http.StatusOK, "", body.ContentType()), body.Bytes())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "m1", res.metadata["id"])
	assert.Equal(t, []Part{{ContentType: "image/gif", Data: []byte("GIF89a")}}, res.attachments)
}

func TestDecodeResponseContentTypeErrors(t *testing.T) {
	for _, ct := range []string{"", "text/html", "application/xml"} {
		_, err := decodeResponse(response(http.StatusOK, "", ct), []byte("<html/>"))
		var ce *ContentTypeError
		require.True(t, errors.As(err, &ce), "content type %q: got %v", ct, err)
		assert.NotEmpty(t, ce.Error())
	}
}

func TestDecodeResponseAPIErrors(t *testing.T) {
	t.Run("exception", func(t *testing.T) {
		_, err := decodeResponse(response(http.StatusBadRequest, "400 Petición incorrecta", "application/json"),
			[]byte(`{"exceptionId":"SVC0002","exceptionText":"Invalid parameter: to"}`))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "Petición incorrecta", apiErr.Reason)
		assert.Equal(t, "SVC0002", apiErr.ID)
		assert.Equal(t, "Invalid parameter: to", apiErr.Message)
		assert.Equal(t, "bluevia: API error: [400 Petición incorrecta] SVC0002: Invalid parameter: to", apiErr.Error())
	})

	t.Run("oauth error", func(t *testing.T) {
		_, err := decodeResponse(response(http.StatusUnauthorized, "401 Unauthorized", "application/json"),
			[]byte(`{"error":"invalid_token"}`))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Empty(t, apiErr.ID)
		assert.Equal(t, "invalid_token", apiErr.Message)
		assert.Equal(t, "bluevia: API error: [401 Unauthorized] invalid_token", apiErr.Error())
	})

	t.Run("non json", func(t *testing.T) {
		_, err := decodeResponse(response(http.StatusBadGateway, "502", "text/html"), []byte("<html>Bad Gateway</html>\n"))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Bad Gateway", apiErr.Reason)
		assert.Equal(t, "<html>Bad Gateway</html>", apiErr.Message)
	})

	t.Run("success status outside the accepted set", func(t *testing.T) {
		_, err := decodeResponse(response(http.StatusAccepted, "", "application/json"), []byte(`{}`))
		var apiErr *APIError
		assert.True(t, errors.As(err, &apiErr))
	})
}

func newTestClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		AccessToken:  token,
		BaseURL:      baseURL,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return c
}

func TestDoFailsFastWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	_, err := c.do(t.Context(), pathSMSInbound, nil, authBearer)
	var tokErr *AccessTokenError
	require.True(t, errors.As(err, &tokErr))
	assert.Equal(t, srv.URL+"/"+pathSMSInbound, tokErr.URL)
}

func TestDoPostsJSONAndHandlesNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "tok")
	res, err := c.do(t.Context(), "x", jsonBody{Value: map[string]int{"a": 1}}, authBearer)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDoGetWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "tok")
	res, err := c.do(t.Context(), "/x", nil, authBearer)
	require.NoError(t, err)
	assert.Equal(t, []any{}, res.json)
}

func TestDoNetworkError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", "tok")
	_, err := c.do(t.Context(), "x", nil, authBearer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bluevia: send request:")
}

func TestDoWhileTokenChanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		assert.True(t, auth == "Bearer old" || auth == "Bearer new", auth)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "old")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.do(t.Context(), "x", nil, authBearer)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			c.SetAccessToken("new")
			c.AuthorizationURL([]string{ScopeSMS}, "http://localhost/cb", "st")
		}()
	}
	wg.Wait()
	assert.Equal(t, "new", c.AccessToken())
	assert.True(t, c.Authenticated())
}
