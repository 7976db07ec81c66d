package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBodySize is the largest notification body accepted (10 MiB). MMS
// notifications carry their attachments inline.
const MaxBodySize = 10 << 20

// ReadBody reads the request body up to MaxBodySize. On failure it writes a
// 413 or 400 error and returns false.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		WriteError(w, http.StatusBadRequest, "reading request body failed")
		return nil, false
	}
	return body, true
}

// ErrorResponse is the error envelope of every bluevia HTTP endpoint.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a standard error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{
		Code:    status,
		Message: message,
	})
}
