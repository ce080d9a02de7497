// Package archive reads ZIP archives from an in-memory byte source.
//
// An Archive validates the container once, exposes the visible entries in
// central directory order, and decompresses individual entries lazily on
// request. Directory pseudo-entries (names ending in "/") are never
// visible. An Archive never closes or mutates its Source; the caller owns
// the Source's lifetime.
package archive

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// Entry describes one inner file of an archive.
type Entry struct {
	// Name is the full entry name including any internal "/" separators.
	Name string

	// Size is the uncompressed length in bytes.
	Size int64

	// ModTime is the last-modified timestamp recorded in the archive.
	ModTime time.Time
}

// Archive is an opened, validated, read-only view over a Source.
type Archive struct {
	src          Source
	zr           *zip.Reader
	files        []*zip.File
	byName       map[string]*zip.File
	maxEntrySize int64
	maxEntries   int
	maxDecMemory uint64
	logger       *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Validate reports whether src can be opened as a ZIP container.
//
// Validate never returns an error for format problems; a nil or empty
// source is reported as invalid.
func Validate(src Source) bool {
	if src == nil || src.Size() <= 0 {
		return false
	}
	_, err := zip.NewReader(src, src.Size())
	return err == nil
}

// Open validates src and returns an Archive over its visible entries.
//
// Format problems are reported as errors wrapping ErrInvalidArchive.
func Open(src Source, opts ...Option) (*Archive, error) {
	if src == nil {
		return nil, ErrNilSource
	}

	a := &Archive{
		src:          src,
		maxDecMemory: DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(a)
	}

	zr, err := zip.NewReader(src, src.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	newDecoderPool(a.maxDecMemory).register(zr)
	a.zr = zr

	a.byName = make(map[string]*zip.File, len(zr.File))
	a.files = make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if isDirName(f.Name) {
			continue
		}
		if f.Name == "" {
			a.log().Warn("unnamed archive entry ignored")
			continue
		}
		if f.UncompressedSize64 > math.MaxInt64 {
			return nil, fmt.Errorf("%w: entry %q", ErrSizeOverflow, f.Name)
		}
		if _, dup := a.byName[f.Name]; dup {
			// First occurrence in the central directory wins.
			a.log().Warn("duplicate archive entry ignored", "name", f.Name)
			continue
		}
		a.byName[f.Name] = f
		a.files = append(a.files, f)
		if a.maxEntries > 0 && len(a.files) > a.maxEntries {
			return nil, fmt.Errorf("%w: more than %d", ErrTooManyEntries, a.maxEntries)
		}
	}

	a.log().Debug("archive opened", "entries", len(a.files), "bytes", src.Size())
	return a, nil
}

// IsEmpty reports whether the archive has no visible entries.
func (a *Archive) IsEmpty() bool {
	return len(a.files) == 0
}

// Len returns the number of visible entries.
func (a *Archive) Len() int {
	return len(a.files)
}

// Entries returns an iterator over the visible entries in central
// directory order. The iterator may be ranged over any number of times.
func (a *Archive) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, f := range a.files {
			if !yield(entryFromFile(f)) {
				return
			}
		}
	}
}

// EntryList returns the visible entries as a slice.
func (a *Archive) EntryList() []Entry {
	entries := make([]Entry, 0, len(a.files))
	for e := range a.Entries() {
		entries = append(entries, e)
	}
	return entries
}

// Entry returns the entry with the exact, case-sensitive name.
func (a *Archive) Entry(name string) (Entry, bool) {
	f, ok := a.byName[name]
	if !ok {
		return Entry{}, false
	}
	return entryFromFile(f), true
}

// Extract opens the named entry for reading.
//
// It returns (nil, false, nil) when no such entry exists. The returned
// reader yields the decompressed bytes exactly once and must be closed by
// the caller. Closing it does not close the archive's Source.
func (a *Archive) Extract(name string) (io.ReadCloser, bool, error) {
	if name == "" {
		return nil, false, ErrEmptyName
	}
	f, ok := a.byName[name]
	if !ok {
		return nil, false, nil
	}

	if a.maxEntrySize > 0 && f.UncompressedSize64 > uint64(a.maxEntrySize) {
		return nil, true, fmt.Errorf("%w: entry %q declares %d bytes", ErrTooLarge, name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, true, fmt.Errorf("open entry %q: %w", name, err)
	}
	a.log().Debug("entry extracted", "name", name, "size", f.UncompressedSize64, "method", f.Method)

	if a.maxEntrySize > 0 {
		return &limitedReadCloser{rc: rc, name: name, max: a.maxEntrySize}, true, nil
	}
	return rc, true, nil
}

// Source returns the Source the archive reads from.
func (a *Archive) Source() Source {
	return a.src
}

func entryFromFile(f *zip.File) Entry {
	return Entry{
		Name:    f.Name,
		Size:    int64(f.UncompressedSize64), //nolint:gosec // bounded by Open
		ModTime: f.Modified,
	}
}

func isDirName(name string) bool {
	return strings.HasSuffix(name, "/") || strings.HasSuffix(name, "\\")
}
