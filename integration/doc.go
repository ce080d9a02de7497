//go:build integration

// Package integration runs the log storage service against real storage
// backends started with testcontainers: Azurite, MinIO, fake-gcs-server
// and a registry:2 OCI registry.
//
// Run with: go test -tags=integration ./integration/...
// Set SKIP_DOCKER_TESTS=1 to skip when Docker is unavailable.
package integration
