package archive

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithMaxEntrySize limits the uncompressed size of a single extracted entry.
// Use 0 to disable the limit.
func WithMaxEntrySize(n int64) Option {
	return func(a *Archive) {
		if n < 0 {
			n = 0
		}
		a.maxEntrySize = n
	}
}

// WithMaxEntries limits the number of visible entries accepted by Open.
// Use 0 to disable the limit.
func WithMaxEntries(n int) Option {
	return func(a *Archive) {
		if n < 0 {
			n = 0
		}
		a.maxEntries = n
	}
}

// WithMaxDecoderMemory sets the memory limit for Zstandard decoders.
// Use 0 to disable the limit.
func WithMaxDecoderMemory(n uint64) Option {
	return func(a *Archive) {
		a.maxDecMemory = n
	}
}

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}
