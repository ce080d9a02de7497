package archive

import "errors"

// Sentinel errors.
var (
	// ErrNilSource is returned when a nil source or reader is supplied.
	ErrNilSource = errors.New("archive: nil source")

	// ErrInvalidArchive is returned when the source is not a readable ZIP container.
	ErrInvalidArchive = errors.New("archive: invalid zip container")

	// ErrEmptyName is returned when an entry lookup is attempted with an empty name.
	ErrEmptyName = errors.New("archive: empty entry name")

	// ErrTooLarge is returned when a buffer or entry exceeds its configured size limit.
	ErrTooLarge = errors.New("archive: size limit exceeded")

	// ErrTooManyEntries is returned when the entry count exceeds the configured limit.
	ErrTooManyEntries = errors.New("archive: too many entries")

	// ErrSizeOverflow is returned when an entry declares a size that does not fit in int64.
	ErrSizeOverflow = errors.New("archive: size overflow")
)
