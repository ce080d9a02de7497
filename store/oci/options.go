package oci

import (
	"log/slog"

	"oras.land/oras-go/v2/registry/remote/credentials"
)

// Option configures a Backend.
type Option func(*Backend)

// WithCredentialStore sets the credential store for authentication.
func WithCredentialStore(s credentials.Store) Option {
	return func(b *Backend) {
		b.credStore = s
	}
}

// WithStaticCredentials sets a username and password for the registry.
func WithStaticCredentials(registry, username, password string) Option {
	return func(b *Backend) {
		b.credStore = StaticCredentials(registry, username, password)
	}
}

// WithStaticToken sets a bearer token for the registry.
func WithStaticToken(registry, token string) Option {
	return func(b *Backend) {
		b.credStore = StaticToken(registry, token)
	}
}

// WithDockerConfig reads credentials from the Docker config file.
// If the config cannot be loaded the backend falls back to no credentials.
func WithDockerConfig() Option {
	return func(b *Backend) {
		s, err := DockerCredentialStore()
		if err != nil {
			return
		}
		b.credStore = s
	}
}

// WithPlainHTTP enables plain HTTP (no TLS), for local registries.
func WithPlainHTTP(enabled bool) Option {
	return func(b *Backend) {
		b.plainHTTP = enabled
	}
}

// WithAnonymous disables all credential lookups.
func WithAnonymous() Option {
	return func(b *Backend) {
		b.anonymous = true
	}
}

// WithUserAgent sets the User-Agent header for requests.
func WithUserAgent(ua string) Option {
	return func(b *Backend) {
		b.userAgent = ua
	}
}

// WithLogger sets the logger for the backend.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}
