// Package store persists ZIP archives with a per-entry metadata index.
//
// Each archive is written as one blob whose metadata carries the index: one
// key per inner file, produced by EncodeKey, whose value describes the
// entry. Reserved keys record the display name, a sha256 checksum of the
// blob, the index format version and the upload time. Backends only need
// to store bytes together with a flat string map.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/syedhassaanahmed/log-storage-service/archive"
	"github.com/syedhassaanahmed/log-storage-service/cache"
)

// Store reads and writes archives through a Backend.
// A Store is safe for concurrent use.
type Store struct {
	backend        Backend
	cache          cache.Cache
	maxArchiveSize int64
	logger         *slog.Logger
	now            func() time.Time
	metrics        *metrics
	downloads      singleflight.Group
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("store: backend is nil")
	}
	s := &Store{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxArchiveSize < 0 {
		return nil, errors.New("store: max archive size must be >= 0")
	}
	return s, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Upload stores src under archiveID together with an index of entries.
//
// A previous archive under the same identifier is replaced in one backend
// write. Precondition failures are reported before any I/O.
func (s *Store) Upload(ctx context.Context, archiveID string, src archive.Source, entries []archive.Entry, opts ...UploadOption) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe("upload", start, err) }()

	if !ValidArchiveID(archiveID) {
		return fmt.Errorf("%w: %q", ErrInvalidArchiveID, archiveID)
	}
	if src == nil || src.Size() <= 0 {
		return ErrEmptyArchive
	}
	if len(entries) == 0 {
		return ErrEmptyIndex
	}
	size := src.Size()
	if s.maxArchiveSize > 0 && size > s.maxArchiveSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, s.maxArchiveSize)
	}

	cfg := uploadConfig{displayName: archiveID}
	for _, opt := range opts {
		opt(&cfg)
	}

	sum, err := digest.SHA256.FromReader(io.NewSectionReader(src, 0, size))
	if err != nil {
		return fmt.Errorf("checksum archive %q: %w", archiveID, err)
	}
	md, count, err := buildMetadata(cfg.displayName, sum, s.now(), entries)
	if err != nil {
		return err
	}

	obj := &Object{
		Name:        archiveID,
		ContentType: ContentTypeZip,
		Size:        size,
		Metadata:    md,
	}
	if err := s.backend.Put(ctx, obj, io.NewSectionReader(src, 0, size)); err != nil {
		return fmt.Errorf("put archive %q: %w", archiveID, err)
	}
	s.metrics.uploaded(size)
	s.log().Info("archive stored",
		"archive", archiveID,
		"entries", count,
		"bytes", size,
		"checksum", sum.String())
	return nil
}

// Exists reports whether an archive is stored under archiveID.
// Identifiers that are not in normalized form never exist.
func (s *Store) Exists(ctx context.Context, archiveID string) (ok bool, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("exists", start, err) }()

	if !ValidArchiveID(archiveID) {
		return false, nil
	}
	if _, err := s.backend.Stat(ctx, archiveID); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat archive %q: %w", archiveID, err)
	}
	return true, nil
}

// Index fetches and decodes the index of a stored archive.
//
// It returns ErrNotFound when no archive exists and ErrInconsistentIndex
// when the archive exists without a decodable index.
func (s *Store) Index(ctx context.Context, archiveID string) (ix *Index, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("index", start, err) }()

	obj, err := s.stat(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	return parseIndex(obj)
}

// EntryMetadata looks up one index entry by its encoded key.
//
// It reports false when the archive is absent, when the key is not
// present, or when the key is not a valid encoding. Only blob metadata is
// read; the archive bytes are never fetched.
func (s *Store) EntryMetadata(ctx context.Context, archiveID, key string) (e archive.Entry, ok bool, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("entry_metadata", start, err) }()

	name, ok := DecodeKey(key)
	if !ok {
		return archive.Entry{}, false, nil
	}
	obj, err := s.stat(ctx, archiveID)
	if err != nil {
		if isNotFound(err) {
			return archive.Entry{}, false, nil
		}
		return archive.Entry{}, false, err
	}
	value, ok := obj.Metadata[key]
	if !ok {
		return archive.Entry{}, false, nil
	}
	e, err = decodeIndexValue(name, value)
	if err != nil {
		return archive.Entry{}, false, fmt.Errorf("%w: archive %q key %q: %v", ErrInconsistentIndex, archiveID, key, err)
	}
	return e, true, nil
}

// Download fetches the bytes of a stored archive and verifies them against
// the checksum recorded at upload.
//
// It returns ErrNotFound when no archive exists and ErrCorruptArchive when
// the bytes do not match. Concurrent downloads of the same archive share one
// backend read, which is not canceled when the caller that started it goes away.
func (s *Store) Download(ctx context.Context, archiveID string) (buf *archive.Buffer, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("download", start, err) }()

	if !ValidArchiveID(archiveID) {
		return nil, fmt.Errorf("%w: archive %q", ErrNotFound, archiveID)
	}

	if s.cache != nil {
		if buf, ok := s.fromCache(ctx, archiveID); ok {
			return buf, nil
		}
	}

	// The shared fetch outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := s.downloads.DoChan(archiveID, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), archiveID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.log().Debug("archive download shared", "archive", archiveID)
		}
		return res.Val.(*archive.Buffer), nil
	}
}

// fromCache serves archiveID from the cache when the current checksum of
// the stored blob is cached. Entries that fail verification are evicted.
func (s *Store) fromCache(ctx context.Context, archiveID string) (*archive.Buffer, bool) {
	obj, err := s.stat(ctx, archiveID)
	if err != nil {
		return nil, false
	}
	sum, err := checksumOf(obj)
	if err != nil {
		return nil, false
	}
	content, ok := s.cache.Get(sum)
	if !ok {
		return nil, false
	}
	if err := verify(sum, content); err != nil {
		s.log().Warn("cached archive failed verification", "archive", archiveID, "checksum", sum.String())
		if delErr := s.cache.Delete(sum); delErr != nil {
			s.log().Warn("evict cached archive", "checksum", sum.String(), "error", delErr)
		}
		return nil, false
	}
	s.metrics.cacheHit()
	s.log().Debug("archive served from cache", "archive", archiveID, "bytes", len(content))
	return archive.BufferBytes(content), true
}

func (s *Store) fetch(ctx context.Context, archiveID string) (*archive.Buffer, error) {
	rc, obj, err := s.backend.Get(ctx, archiveID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: archive %q", ErrNotFound, archiveID)
		}
		return nil, fmt.Errorf("get archive %q: %w", archiveID, err)
	}
	defer rc.Close()

	sum, err := checksumOf(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: archive %q: %v", ErrCorruptArchive, archiveID, err)
	}

	buf, err := archive.NewBuffer(rc, s.maxArchiveSize)
	if err != nil {
		if errors.Is(err, archive.ErrTooLarge) {
			return nil, fmt.Errorf("%w: archive %q: %v", ErrTooLarge, archiveID, err)
		}
		return nil, fmt.Errorf("read archive %q: %w", archiveID, err)
	}
	s.metrics.downloaded(buf.Size())

	if err := verify(sum, buf.Bytes()); err != nil {
		s.log().Error("archive failed checksum verification",
			"archive", archiveID,
			"expected", sum.String(),
			"bytes", buf.Size())
		return nil, fmt.Errorf("%w: archive %q: %v", ErrCorruptArchive, archiveID, err)
	}

	if s.cache != nil {
		if err := s.cache.Put(sum, buf.Bytes()); err != nil {
			s.log().Warn("cache archive", "archive", archiveID, "error", err)
		}
	}
	return buf, nil
}

func (s *Store) stat(ctx context.Context, archiveID string) (*Object, error) {
	if !ValidArchiveID(archiveID) {
		return nil, fmt.Errorf("%w: archive %q", ErrNotFound, archiveID)
	}
	obj, err := s.backend.Stat(ctx, archiveID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: archive %q", ErrNotFound, archiveID)
		}
		return nil, fmt.Errorf("stat archive %q: %w", archiveID, err)
	}
	return obj, nil
}

func checksumOf(obj *Object) (digest.Digest, error) {
	raw, ok := obj.Metadata[MetaChecksum]
	if !ok || raw == "" {
		return "", errors.New("no checksum recorded")
	}
	sum, err := digest.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("recorded checksum: %w", err)
	}
	return sum, nil
}

func verify(sum digest.Digest, content []byte) error {
	if got := sum.Algorithm().FromBytes(content); got != sum {
		return fmt.Errorf("checksum %s does not match recorded %s", got, sum)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
