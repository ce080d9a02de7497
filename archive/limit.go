package archive

import (
	"fmt"
	"io"
)

// limitedReadCloser counts bytes read from an entry and fails once more
// than max bytes have been produced.
type limitedReadCloser struct {
	rc   io.ReadCloser
	name string
	max  int64
	n    int64
}

// Read implements io.Reader.
func (l *limitedReadCloser) Read(p []byte) (int, error) {
	n, err := l.rc.Read(p)
	l.n += int64(n)
	if l.max > 0 && l.n > l.max {
		return n, fmt.Errorf("%w: entry %q exceeds %d bytes", ErrTooLarge, l.name, l.max)
	}
	return n, err
}

// Close closes the underlying entry reader.
func (l *limitedReadCloser) Close() error {
	return l.rc.Close()
}
