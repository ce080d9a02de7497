// Package resolve maps two-segment logical paths of the form
// "{archiveID}/{key}" to inner files of stored archives.
//
// Resolution only reads index metadata. The archive blob is downloaded and
// the entry decompressed when the caller opens the resolved File.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/syedhassaanahmed/log-storage-service/archive"
)

// ErrEntryVanished is returned by File.Open when the downloaded archive no
// longer contains the entry its index described.
var ErrEntryVanished = errors.New("resolve: entry missing from archive")

// Lookup is the subset of a store used by the resolver.
type Lookup interface {
	Exists(ctx context.Context, archiveID string) (bool, error)
	EntryMetadata(ctx context.Context, archiveID, key string) (archive.Entry, bool, error)
	Download(ctx context.Context, archiveID string) (*archive.Buffer, error)
}

// Resolver resolves logical paths against a Lookup.
// A Resolver is safe for concurrent use.
type Resolver struct {
	lookup      Lookup
	archiveOpts []archive.Option
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithArchiveOptions sets the options used to open downloaded archives.
func WithArchiveOptions(opts ...archive.Option) Option {
	return func(r *Resolver) {
		r.archiveOpts = append(r.archiveOpts, opts...)
	}
}

// WithLogger sets the logger for the resolver.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver over lookup.
func New(lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{lookup: lookup}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// ParsePath splits p into an archive identifier and an encoded entry key.
// Empty segments are ignored; ok is false unless exactly two remain.
func ParsePath(p string) (archiveID, key string, ok bool) {
	var segs [2]string
	n := 0
	for seg := range strings.SplitSeq(p, "/") {
		if seg == "" {
			continue
		}
		if n == len(segs) {
			return "", "", false
		}
		segs[n] = seg
		n++
	}
	if n != len(segs) {
		return "", "", false
	}
	return segs[0], segs[1], true
}

// Resolve looks up the inner file addressed by p.
//
// A path of the wrong shape, a missing archive and a missing entry all
// report (nil, false, nil). Errors are reserved for backend and index
// faults. Resolve never downloads the archive.
func (r *Resolver) Resolve(ctx context.Context, p string) (*File, bool, error) {
	archiveID, key, ok := ParsePath(p)
	if !ok {
		return nil, false, nil
	}

	exists, err := r.lookup.Exists(ctx, archiveID)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %q: %w", p, err)
	}
	if !exists {
		r.log().Debug("archive not found", "archive", archiveID)
		return nil, false, nil
	}

	entry, ok, err := r.lookup.EntryMetadata(ctx, archiveID, key)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %q: %w", p, err)
	}
	if !ok {
		r.log().Debug("entry not found", "archive", archiveID, "key", key)
		return nil, false, nil
	}

	return &File{
		resolver:  r,
		archiveID: archiveID,
		key:       key,
		entry:     entry,
	}, true, nil
}
