package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/opencontainers/go-digest"

	"github.com/syedhassaanahmed/log-storage-service/archive"
)

// Reserved metadata keys. None of them starts with the index key prefix.
const (
	MetaArchiveName  = "archivename"
	MetaChecksum     = "checksum"
	MetaIndexVersion = "indexversion"
	MetaUploadedAt   = "uploadedat"
)

// IndexVersion is the index format written by this package.
const IndexVersion = 1

// Index is the decoded per-archive entry index.
type Index struct {
	// ArchiveID is the normalized identifier the archive is stored under.
	ArchiveID string

	// ArchiveName is the name the archive was uploaded with.
	ArchiveName string

	// Checksum is the digest of the archive bytes recorded at upload.
	Checksum digest.Digest

	// UploadedAt is when the archive was stored.
	UploadedAt time.Time

	// Size is the archive blob length in bytes.
	Size int64

	// Entries holds one item per inner file, sorted by name.
	Entries []IndexEntry
}

// IndexEntry pairs an encoded key with the entry it describes.
type IndexEntry struct {
	Key string
	archive.Entry
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	return len(ix.Entries)
}

// Lookup returns the entry stored under an encoded key.
func (ix *Index) Lookup(key string) (archive.Entry, bool) {
	name, ok := DecodeKey(key)
	if !ok {
		return archive.Entry{}, false
	}
	i, ok := slices.BinarySearchFunc(ix.Entries, name, func(e IndexEntry, n string) int {
		return strings.Compare(e.Name, n)
	})
	if !ok {
		return archive.Entry{}, false
	}
	return ix.Entries[i].Entry, true
}

// entryValue is the serialized form of an index entry.
type entryValue struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// EncodeEntry serializes e as ASCII-only JSON suitable for a metadata value.
func EncodeEntry(e archive.Entry) (string, error) {
	data, err := json.Marshal(entryValue{
		Name:     e.Name,
		Size:     e.Size,
		Modified: e.ModTime.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode entry %q: %w", e.Name, err)
	}
	return asciiJSON(data), nil
}

// DecodeEntry parses a value written by EncodeEntry.
func DecodeEntry(value string) (archive.Entry, error) {
	var v entryValue
	dec := json.NewDecoder(strings.NewReader(value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return archive.Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	if v.Size < 0 {
		return archive.Entry{}, fmt.Errorf("decode entry: negative size %d", v.Size)
	}
	return archive.Entry{Name: v.Name, Size: v.Size, ModTime: v.Modified}, nil
}

// asciiJSON rewrites every non-ASCII rune in data as a \uXXXX escape.
// Metadata values travel as HTTP headers, which only carry ASCII reliably.
func asciiJSON(data []byte) string {
	if isASCII(data) {
		return string(data)
	}
	var b strings.Builder
	b.Grow(len(data) + 16)
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r -= 0x10000
			writeEscape(&b, 0xD800+(r>>10))
			writeEscape(&b, 0xDC00+(r&0x3FF))
			continue
		}
		writeEscape(&b, r)
	}
	return b.String()
}

func writeEscape(b *strings.Builder, r rune) {
	b.WriteString(`\u`)
	s := strconv.FormatInt(int64(r), 16)
	b.WriteString(strings.Repeat("0", 4-len(s)))
	b.WriteString(s)
}

func isASCII(data []byte) bool {
	return bytes.IndexFunc(data, func(r rune) bool { return r >= utf8.RuneSelf }) < 0
}

// buildMetadata produces the metadata map persisted with an archive blob.
// Duplicate entry names keep their first occurrence.
func buildMetadata(name string, sum digest.Digest, at time.Time, entries []archive.Entry) (map[string]string, int, error) {
	md := make(map[string]string, len(entries)+4)
	md[MetaArchiveName] = asciiString(name)
	md[MetaChecksum] = sum.String()
	md[MetaIndexVersion] = strconv.Itoa(IndexVersion)
	md[MetaUploadedAt] = at.UTC().Format(time.RFC3339Nano)

	count := 0
	for _, e := range entries {
		if e.Name == "" {
			return nil, 0, fmt.Errorf("%w: entry with empty name", ErrEmptyIndex)
		}
		key := EncodeKey(e.Name)
		if _, dup := md[key]; dup {
			continue
		}
		value, err := EncodeEntry(e)
		if err != nil {
			return nil, 0, err
		}
		md[key] = value
		count++
	}
	return md, count, nil
}

// parseIndex decodes the metadata of a stored archive blob.
func parseIndex(obj *Object) (*Index, error) {
	ix := &Index{
		ArchiveID:   obj.Name,
		ArchiveName: unquoteASCII(obj.Metadata[MetaArchiveName]),
		Checksum:    digest.Digest(obj.Metadata[MetaChecksum]),
		Size:        obj.Size,
	}
	if ix.ArchiveName == "" {
		ix.ArchiveName = obj.Name
	}
	if raw := obj.Metadata[MetaUploadedAt]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ix.UploadedAt = t
		}
	}
	if raw := obj.Metadata[MetaIndexVersion]; raw != "" && raw != strconv.Itoa(IndexVersion) {
		return nil, fmt.Errorf("%w: archive %q has index version %s", ErrInconsistentIndex, obj.Name, raw)
	}

	for key, value := range obj.Metadata {
		name, ok := DecodeKey(key)
		if !ok {
			continue
		}
		e, err := decodeIndexValue(name, value)
		if err != nil {
			return nil, fmt.Errorf("%w: archive %q key %q: %v", ErrInconsistentIndex, obj.Name, key, err)
		}
		ix.Entries = append(ix.Entries, IndexEntry{Key: key, Entry: e})
	}
	if len(ix.Entries) == 0 {
		return nil, fmt.Errorf("%w: archive %q has no index entries", ErrInconsistentIndex, obj.Name)
	}
	slices.SortFunc(ix.Entries, func(a, b IndexEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ix, nil
}

// decodeIndexValue decodes value and checks it against the name carried by
// its key. The key is authoritative for names that are not valid UTF-8.
func decodeIndexValue(name, value string) (archive.Entry, error) {
	e, err := DecodeEntry(value)
	if err != nil {
		return archive.Entry{}, err
	}
	if utf8.ValidString(name) && e.Name != name {
		return archive.Entry{}, fmt.Errorf("value names %q", e.Name)
	}
	e.Name = name
	return e, nil
}

// asciiString quotes a display name so it survives ASCII-only metadata.
func asciiString(s string) string {
	quoted := strconv.QuoteToASCII(s)
	return quoted[1 : len(quoted)-1]
}

func unquoteASCII(s string) string {
	if s == "" {
		return ""
	}
	out, err := strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return s
	}
	return out
}
