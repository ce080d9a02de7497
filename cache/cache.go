// Package cache provides content-addressed caching for downloaded archives.
//
// Entries are keyed by the archive checksum recorded at upload time, so a
// single cached blob serves every request for the same archive content.
// Callers still verify content read back from a cache; a cache is an
// optimization and never the source of truth.
package cache

import (
	"errors"

	"github.com/opencontainers/go-digest"
)

// ErrInvalidDigest is returned when a cache key is not a valid digest.
var ErrInvalidDigest = errors.New("cache: invalid digest")

// Cache provides content-addressed storage for archive bytes.
//
// Implementations should handle their own size limits and eviction policies.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the content stored under d.
	// Returns nil, false if the content is not cached.
	Get(d digest.Digest) ([]byte, bool)

	// Put stores content under d. Implementations may silently decline
	// content that does not fit.
	Put(d digest.Digest, content []byte) error

	// Delete removes content stored under d. Missing entries are a no-op.
	Delete(d digest.Digest) error
}

// Key validates d and returns the string form used by implementations.
func Key(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", errors.Join(ErrInvalidDigest, err)
	}
	return d.String(), nil
}
