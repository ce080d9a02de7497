package resolve

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/syedhassaanahmed/log-storage-service/archive"
)

// File is a resolved inner file. Its metadata comes from the archive index;
// its content is produced by Open.
type File struct {
	resolver  *Resolver
	archiveID string
	key       string
	entry     archive.Entry
}

// Name returns the base name of the inner file.
func (f *File) Name() string {
	return path.Base(f.entry.Name)
}

// Size returns the uncompressed size recorded in the index.
func (f *File) Size() int64 {
	return f.entry.Size
}

// Mode returns read-only permissions.
func (f *File) Mode() fs.FileMode {
	return 0o444
}

// ModTime returns the modification time recorded in the index.
func (f *File) ModTime() time.Time {
	return f.entry.ModTime
}

// IsDir always returns false.
func (f *File) IsDir() bool {
	return false
}

// Sys returns the index entry.
func (f *File) Sys() any {
	return f.entry
}

// ArchiveID returns the identifier of the containing archive.
func (f *File) ArchiveID() string {
	return f.archiveID
}

// Key returns the encoded entry key.
func (f *File) Key() string {
	return f.key
}

// Path returns the full name of the entry inside the archive.
func (f *File) Path() string {
	return f.entry.Name
}

// Open downloads the archive and returns a reader of the decompressed entry.
//
// Failures are not retried. The caller must close the returned reader.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	r := f.resolver
	buf, err := r.lookup.Download(ctx, f.archiveID)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", f.archiveID, f.key, err)
	}
	a, err := archive.Open(buf, r.archiveOpts...)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", f.archiveID, f.key, err)
	}
	rc, ok, err := a.Extract(f.entry.Name)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", f.archiveID, f.key, err)
	}
	if !ok {
		r.log().Warn("indexed entry missing from archive", "archive", f.archiveID, "entry", f.entry.Name)
		return nil, fmt.Errorf("%w: %s/%s", ErrEntryVanished, f.archiveID, f.entry.Name)
	}
	return &entryReader{ReadCloser: rc}, nil
}

// entryReader closes the decompressor once. The archive holds no other
// resources since the downloaded buffer lives in memory.
type entryReader struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (e *entryReader) Close() error {
	e.once.Do(func() {
		e.err = e.ReadCloser.Close()
	})
	return e.err
}

var _ fs.FileInfo = (*File)(nil)
