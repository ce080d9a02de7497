package oci

import "errors"

// Sentinel errors for registry operations. Missing tags and blobs are
// reported with store.ErrNotFound.
var (
	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("oci: unauthorized")

	// ErrForbidden is returned when access is denied.
	ErrForbidden = errors.New("oci: forbidden")

	// ErrInvalidReference is returned when a repository reference is malformed.
	ErrInvalidReference = errors.New("oci: invalid reference")

	// ErrManifestInvalid is returned when a manifest is not an archive manifest.
	ErrManifestInvalid = errors.New("oci: invalid manifest")
)
