package logstorage

import (
	"log/slog"

	"github.com/syedhassaanahmed/log-storage-service/archive"
)

// Option configures a Service.
type Option func(*Service)

// WithBaseURL sets the prefix of inner file links returned by Upload and
// Index. A trailing slash is added when missing. Defaults to "/logs/".
func WithBaseURL(base string) Option {
	return func(s *Service) {
		s.baseURL = base
	}
}

// WithLogger sets the logger for the service and its resolver.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithArchiveOptions sets the options used whenever an archive is opened.
func WithArchiveOptions(opts ...archive.Option) Option {
	return func(s *Service) {
		s.archiveOpts = append(s.archiveOpts, opts...)
	}
}

// WithMaxUploadSize caps the number of bytes read from an upload.
// Use 0 to disable the limit.
func WithMaxUploadSize(n int64) Option {
	return func(s *Service) {
		s.maxUploadSize = n
	}
}
