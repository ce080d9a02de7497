package store

import (
	"encoding/base32"
	"strings"
)

// keyPrefix starts every encoded index key. It keeps keys starting with a
// letter and apart from the reserved metadata keys.
const keyPrefix = "entry"

// maxArchiveIDLen bounds normalized archive identifiers. It matches the OCI
// tag grammar, the strictest of the supported backends.
const maxArchiveIDLen = 128

// keyEncoding is base32 (RFC 4648) without padding. Its alphabet survives
// the case folding some backends apply to metadata keys once lowercased.
var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeKey maps an inner file name to its index key: "entry" followed by
// the lowercase, unpadded base32 form of the name's bytes. The result
// contains only lowercase letters and the digits 2-7.
func EncodeKey(name string) string {
	return keyPrefix + strings.ToLower(keyEncoding.EncodeToString([]byte(name)))
}

// DecodeKey reverses EncodeKey. It reports false for anything EncodeKey
// cannot produce, including keys with uppercase letters.
func DecodeKey(key string) (string, bool) {
	body, ok := strings.CutPrefix(key, keyPrefix)
	if !ok || body == "" {
		return "", false
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return "", false
		}
	}
	raw, err := keyEncoding.DecodeString(strings.ToUpper(body))
	if err != nil || len(raw) == 0 {
		return "", false
	}
	// Reject non-canonical encodings so each name has exactly one key.
	if EncodeKey(string(raw)) != key {
		return "", false
	}
	return string(raw), true
}

// IsEntryKey reports whether a metadata key holds an index entry.
func IsEntryKey(key string) bool {
	_, ok := DecodeKey(key)
	return ok
}

// NormalizeArchiveID maps an uploaded archive name to an identifier that is
// safe as a URL path segment and as a blob name on every backend.
//
// Letters, digits, '.', '_' and '-' are kept; every other byte becomes '_'.
// A leading '.' or '-' becomes '_'. Names that normalize to nothing or to
// more than 128 bytes are rejected with ErrInvalidArchiveID.
func NormalizeArchiveID(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidArchiveID
	}
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case isAlnum(c) || c == '_':
			b.WriteByte(c)
		case (c == '.' || c == '-') && b.Len() > 0:
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	id := b.String()
	if len(id) > maxArchiveIDLen {
		return "", ErrInvalidArchiveID
	}
	return id, nil
}

// ValidArchiveID reports whether id is already in normalized form.
func ValidArchiveID(id string) bool {
	if id == "" || len(id) > maxArchiveIDLen {
		return false
	}
	normalized, err := NormalizeArchiveID(id)
	return err == nil && normalized == id
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
