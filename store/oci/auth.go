package oci

import (
	"context"
	"errors"
	"strings"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// DockerCredentialStore returns the credential store configured in the
// Docker config file, with Docker Hub host aliases resolved.
func DockerCredentialStore() (credentials.Store, error) {
	s, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		return nil, err
	}
	return &dockerHubStore{store: s}, nil
}

// StaticCredentials returns a read-only credential store holding a
// username and password for one registry.
func StaticCredentials(registry, username, password string) credentials.Store {
	return &staticStore{
		registry: serverAddress(registry),
		cred:     auth.Credential{Username: username, Password: password},
	}
}

// StaticToken returns a read-only credential store holding a bearer token
// for one registry.
func StaticToken(registry, token string) credentials.Store {
	return &staticStore{
		registry: serverAddress(registry),
		cred:     auth.Credential{AccessToken: token},
	}
}

type staticStore struct {
	registry string
	cred     auth.Credential
}

func (s *staticStore) Get(_ context.Context, addr string) (auth.Credential, error) {
	server := serverAddress(addr)
	if server == s.registry || (isDockerHub(server) && isDockerHub(s.registry)) {
		return s.cred, nil
	}
	return auth.EmptyCredential, nil
}

func (s *staticStore) Put(context.Context, string, auth.Credential) error {
	return errors.New("oci: static credential store is read-only")
}

func (s *staticStore) Delete(context.Context, string) error {
	return errors.New("oci: static credential store is read-only")
}

// dockerHubStore retries Docker Hub lookups under the aliases the Docker
// CLI may have stored credentials with.
type dockerHubStore struct {
	store credentials.Store
}

func (s *dockerHubStore) Get(ctx context.Context, addr string) (auth.Credential, error) {
	cred, err := s.store.Get(ctx, addr)
	if err == nil && !emptyCredential(cred) {
		return cred, nil
	}
	if isDockerHub(serverAddress(addr)) {
		for _, alias := range []string{"https://index.docker.io/v1/", "index.docker.io", "registry-1.docker.io", "docker.io"} {
			if alias == addr {
				continue
			}
			if c, aliasErr := s.store.Get(ctx, alias); aliasErr == nil && !emptyCredential(c) {
				return c, nil
			}
		}
	}
	return cred, err
}

func (s *dockerHubStore) Put(ctx context.Context, addr string, cred auth.Credential) error {
	return s.store.Put(ctx, addr, cred)
}

func (s *dockerHubStore) Delete(ctx context.Context, addr string) error {
	return s.store.Delete(ctx, addr)
}

func isDockerHub(hostport string) bool {
	switch hostOnly(hostport) {
	case "docker.io", "registry-1.docker.io", "index.docker.io":
		return true
	default:
		return false
	}
}

// hostOnly strips the port from host[:port], keeping IPv6 brackets.
func hostOnly(hostport string) string {
	if strings.HasPrefix(hostport, "[") {
		if i := strings.LastIndex(hostport, "]"); i != -1 {
			return hostport[:i+1]
		}
		return hostport
	}
	if i := strings.LastIndex(hostport, ":"); i != -1 {
		return hostport[:i]
	}
	return hostport
}

// serverAddress reduces an address to host[:port].
func serverAddress(addr string) string {
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	addr, _, _ = strings.Cut(addr, "/")
	return addr
}

func emptyCredential(cred auth.Credential) bool {
	return cred.Username == "" && cred.Password == "" && cred.AccessToken == "" && cred.RefreshToken == ""
}
