package archive

import (
	"bytes"
	"fmt"
	"io"
)

// Source provides position-free random access to archive bytes.
//
// Every read supplies its own offset, so several stages (validation,
// enumeration, extraction) can share one Source without coordinating a
// read cursor.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Buffer is an in-memory Source built once from a transport stream.
//
// A Buffer is immutable after construction and safe for concurrent use.
type Buffer struct {
	data []byte
}

// NewBuffer reads r to EOF into memory.
//
// A positive limit caps the number of bytes accepted; larger streams fail
// with ErrTooLarge. Use 0 to disable the limit.
func NewBuffer(r io.Reader, limit int64) (*Buffer, error) {
	if r == nil {
		return nil, ErrNilSource
	}
	if limit < 0 {
		return nil, fmt.Errorf("archive: negative buffer limit %d", limit)
	}

	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("archive: buffer stream: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: stream exceeds %d bytes", ErrTooLarge, limit)
	}
	return &Buffer{data: data}, nil
}

// BufferBytes wraps data as a Buffer without copying.
// Callers must not modify data afterwards.
func BufferBytes(data []byte) *Buffer {
	return &Buffer{data: data}
}

// ReadAt implements io.ReaderAt.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("archive: read at %d: negative offset", off)
	}
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the number of buffered bytes.
func (b *Buffer) Size() int64 {
	return int64(len(b.data))
}

// Bytes returns the buffered bytes. The slice must be treated as read-only.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Reader returns a new reader positioned at the start of the buffer.
func (b *Buffer) Reader() *bytes.Reader {
	return bytes.NewReader(b.data)
}

var _ Source = (*Buffer)(nil)
