package store

import (
	"context"
	"io"
	"maps"
)

// ContentTypeZip is the content type recorded for every archive blob.
const ContentTypeZip = "application/zip"

// Object describes a stored blob.
type Object struct {
	// Name is the blob name, equal to the archive identifier.
	Name string

	// ContentType is the MIME type recorded with the blob.
	ContentType string

	// Size is the blob length in bytes.
	Size int64

	// Metadata holds the blob's key/value metadata. Keys are lowercase
	// letters and digits; values are printable ASCII.
	Metadata map[string]string
}

// Clone returns a deep copy of o.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := *o
	c.Metadata = maps.Clone(o.Metadata)
	return &c
}

// Backend persists blobs together with their metadata.
//
// A Put replaces the bytes and metadata under a name in one step: readers
// observe either the previous or the new pair, never a mix. Concurrent
// writers race and the last write wins.
//
// Implementations must be safe for concurrent use and must report absent
// blobs with errors that satisfy errors.Is(err, ErrNotFound).
type Backend interface {
	// Put writes body with the object's content type and metadata under
	// obj.Name. obj.Size is the exact body length.
	Put(ctx context.Context, obj *Object, body io.ReadSeeker) error

	// Stat returns the object's attributes and metadata without its bytes.
	Stat(ctx context.Context, name string) (*Object, error)

	// Get opens the blob's bytes. The returned Object describes the same
	// version of the blob as the returned reader.
	Get(ctx context.Context, name string) (io.ReadCloser, *Object, error)
}
