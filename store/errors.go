package store

import "errors"

// Sentinel errors returned by Store and its backends.
var (
	// ErrNotFound is returned when an archive blob does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidArchiveID is returned when an archive identifier is empty
	// or contains characters outside the normalized alphabet.
	ErrInvalidArchiveID = errors.New("store: invalid archive id")

	// ErrEmptyArchive is returned when an upload has no archive bytes.
	ErrEmptyArchive = errors.New("store: empty archive")

	// ErrEmptyIndex is returned when an upload has no index entries.
	ErrEmptyIndex = errors.New("store: empty index")

	// ErrTooLarge is returned when an archive exceeds the configured size.
	ErrTooLarge = errors.New("store: archive too large")

	// ErrMetadataTooLarge is returned by a backend when an archive's index
	// does not fit in the metadata the backend can attach to a blob.
	ErrMetadataTooLarge = errors.New("store: index exceeds backend metadata limit")

	// ErrInconsistentIndex is returned when a stored archive has a missing
	// or undecodable index. Successful uploads never produce this state.
	ErrInconsistentIndex = errors.New("store: inconsistent index")

	// ErrCorruptArchive is returned when downloaded bytes do not match the
	// checksum recorded at upload time, or when no checksum was recorded.
	ErrCorruptArchive = errors.New("store: corrupt archive")
)
