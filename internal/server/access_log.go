package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/felixge/httpsnoop"
	"go.uber.org/zap"
)

// withAccessLog writes one entry per request, including websocket sessions,
// which are logged when the connection ends.
func withAccessLog(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics := httpsnoop.CaptureMetrics(next, w, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", metrics.Code),
			zap.Duration("duration", metrics.Duration),
			zap.Int64("bytes", metrics.Written),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// NewOriginChecker accepts websocket upgrades from the configured CORS origins
// and from the serving host itself. Requests without an Origin header are
// accepted.
func NewOriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[strings.ToLower(origin)]; ok {
			return true
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(parsed.Host, r.Host)
	}
}
