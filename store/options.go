package store

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/syedhassaanahmed/log-storage-service/cache"
)

// Option configures a Store.
type Option func(*Store)

// WithMaxArchiveSize caps the size of uploaded and downloaded archives.
// Use 0 to disable the limit.
func WithMaxArchiveSize(n int64) Option {
	return func(s *Store) {
		s.maxArchiveSize = n
	}
}

// WithCache enables caching of downloaded archives keyed by checksum.
func WithCache(c cache.Cache) Option {
	return func(s *Store) {
		s.cache = c
	}
}

// WithLogger sets the logger for store operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the time source used to stamp uploads.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMetrics registers store operation metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) {
		s.metrics = newMetrics(reg)
	}
}

// UploadOption configures a single Upload call.
type UploadOption func(*uploadConfig)

type uploadConfig struct {
	displayName string
}

// WithDisplayName records the name the archive was uploaded with.
// Defaults to the archive identifier.
func WithDisplayName(name string) UploadOption {
	return func(c *uploadConfig) {
		c.displayName = name
	}
}
