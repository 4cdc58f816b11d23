package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	errNoBearer = errors.New("missing authorization")
	errBadKey   = errors.New("invalid api key")
)

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", errNoBearer
	}
	return token, nil
}

// AuthMiddleware guards the extraction endpoints with the figcap API key.
// Rejections are logged with their request id.
func AuthMiddleware(apiKey string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err == nil && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				err = errBadKey
			}
			if err != nil {
				log.Warn("rejected api request",
					"request_id", middleware.GetReqID(r.Context()),
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
					"reason", err.Error(),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="figcap"`)
				jsonError(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request under its chi route pattern.
// Server errors log at warn.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			attrs := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"route", routePattern(r),
				"status", sw.status,
				"bytes_out", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := chi.URLParam(r, "jobID"); id != "" {
				attrs = append(attrs, "job_id", id)
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, "bytes_in", r.ContentLength)
			}
			log.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// routePattern returns the chi pattern that served r, or the raw path when
// no route matched.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
