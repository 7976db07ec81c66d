package server

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger logs one line per request. Notification posts that BlueVia
// retries on failure are logged at warn level when they are rejected.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote", r.RemoteAddr),
			}
			if r.Method == http.MethodPost {
				attrs = append(attrs,
					slog.String("content_type", r.Header.Get("Content-Type")),
					slog.Int64("content_length", r.ContentLength),
				)
			}
			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}

// mediaFamily returns the top-level type of a Content-Type header, such as
// "multipart" for "multipart/mixed; boundary=x".
func mediaFamily(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	family, _, _ := strings.Cut(mt, "/")
	return family
}
