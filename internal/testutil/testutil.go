// Package testutil provides ZIP fixtures for tests.
package testutil

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// FixtureTime is the modification time applied to fixture entries
// that do not set one.
var FixtureTime = time.Date(2016, time.December, 15, 10, 0, 1, 0, time.UTC)

// ZipFile describes one entry written by BuildZip.
type ZipFile struct {
	Name    string
	Content []byte
	Method  uint16 // zero selects Deflate; set Stored for method 0
	Stored  bool
	ModTime time.Time
}

// BuildZip writes files to an in-memory ZIP archive in the given order.
// Names ending in "/" become stored directory entries.
func BuildZip(tb testing.TB, files ...ZipFile) []byte {
	tb.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	w.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	for _, f := range files {
		method := f.Method
		switch {
		case f.Stored, strings.HasSuffix(f.Name, "/"):
			method = zip.Store
		case method == 0:
			method = zip.Deflate
		}
		modTime := f.ModTime
		if modTime.IsZero() {
			modTime = FixtureTime
		}
		fw, err := w.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   method,
			Modified: modTime,
		})
		require.NoError(tb, err, "create entry %q", f.Name)
		if len(f.Content) > 0 {
			_, err = fw.Write(f.Content)
			require.NoError(tb, err, "write entry %q", f.Name)
		}
	}
	require.NoError(tb, w.Close(), "close zip writer")
	return buf.Bytes()
}

// BuildZipMap writes files from a name to content map. Map iteration order
// is random, so use BuildZip when entry order matters.
func BuildZipMap(tb testing.TB, files map[string][]byte) []byte {
	tb.Helper()

	list := make([]ZipFile, 0, len(files))
	for name, content := range files {
		list = append(list, ZipFile{Name: name, Content: content})
	}
	return BuildZip(tb, list...)
}

// EmptyZip returns a valid archive with no entries.
func EmptyZip(tb testing.TB) []byte {
	tb.Helper()
	return BuildZip(tb)
}

// LogsZip returns the reference archive used across tests: "a.log" with
// 11 bytes and "b.log" with 5 bytes.
func LogsZip(tb testing.TB) []byte {
	tb.Helper()
	return BuildZip(tb,
		ZipFile{Name: "a.log", Content: []byte("hello world")},
		ZipFile{Name: "b.log", Content: []byte("hello")},
	)
}

// RepeatedContent returns size bytes of a repeating text pattern.
func RepeatedContent(size int) []byte {
	pattern := []byte("2016-12-15T10:00:01 INFO validation step completed. ")
	result := make([]byte, 0, size)
	for len(result) < size {
		result = append(result, pattern...)
	}
	return result[:size]
}
