package server

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Defaults to ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithBasicAuth requires HTTP basic authentication with the given
// credentials on every route except the excluded paths.
func WithBasicAuth(username, password string) Option {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// WithAuthExclude replaces the paths served without authentication.
// A path ending in "/" matches every path below it.
// Defaults to "/healthz" and "/metrics".
func WithAuthExclude(paths ...string) Option {
	return func(s *Server) {
		s.authExclude = paths
	}
}

// WithCacheMaxAge sets the max-age advertised for inner file downloads.
// Use 0 to send "no-cache".
func WithCacheMaxAge(d time.Duration) Option {
	return func(s *Server) {
		s.cacheMaxAge = d
	}
}

// WithMaxUploadSize rejects uploads whose declared length exceeds n bytes.
// Use 0 to disable the check.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) {
		s.maxUploadSize = n
	}
}

// WithLogger sets the logger for requests and server lifecycle events.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the registry for HTTP metrics and the /metrics route.
// If not set, a private registry with Go and process collectors is used.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithStatus sets the non-secret settings reported by /api/status.
func WithStatus(status map[string]string) Option {
	return func(s *Server) {
		s.status = status
	}
}

// WithShutdownTimeout bounds graceful shutdown in Run. Defaults to 10s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}
