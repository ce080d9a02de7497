package logstorage

import (
	"errors"

	"github.com/syedhassaanahmed/log-storage-service/archive"
	"github.com/syedhassaanahmed/log-storage-service/resolve"
	"github.com/syedhassaanahmed/log-storage-service/store"
)

var (
	// ErrUnsupportedArchive is returned when an upload is not a ZIP archive.
	ErrUnsupportedArchive = errors.New("logstorage: unsupported archive format")

	// ErrEmptyUpload is returned when an upload carries no bytes.
	ErrEmptyUpload = errors.New("logstorage: empty upload")
)

// Errors re-exported from store.
var (
	// ErrEmptyArchive is returned when an archive has no files.
	ErrEmptyArchive = store.ErrEmptyArchive

	// ErrNotFound is returned when an archive does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrInvalidArchiveID is returned when a name cannot be used as an archive identifier.
	ErrInvalidArchiveID = store.ErrInvalidArchiveID

	// ErrCorruptArchive is returned when downloaded bytes fail checksum verification.
	ErrCorruptArchive = store.ErrCorruptArchive

	// ErrInconsistentIndex is returned when a stored index cannot be decoded.
	ErrInconsistentIndex = store.ErrInconsistentIndex

	// ErrArchiveTooLarge is returned when an archive exceeds the store's size limit.
	ErrArchiveTooLarge = store.ErrTooLarge

	// ErrMetadataTooLarge is returned when a backend cannot hold an archive's index.
	ErrMetadataTooLarge = store.ErrMetadataTooLarge
)

// Errors re-exported from archive and resolve.
var (
	// ErrTooLarge is returned when an upload or entry exceeds a size limit.
	ErrTooLarge = archive.ErrTooLarge

	// ErrEntryVanished is returned when an indexed entry is missing from its archive.
	ErrEntryVanished = resolve.ErrEntryVanished
)
