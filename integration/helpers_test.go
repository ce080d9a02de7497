//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// azuriteAccountKey is the well-known Azurite development key.
const azuriteAccountKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
)

// sharedContainer starts a container once per test binary. Cleanup is
// left to the testcontainers reaper.
type sharedContainer struct {
	once sync.Once
	req  testcontainers.ContainerRequest
	port string
	addr string
	err  error
}

func (s *sharedContainer) get(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}
	s.once.Do(func() {
		s.addr, s.err = startContainer(context.Background(), s.req, s.port)
	})
	if s.err != nil {
		tb.Fatalf("start %s: %v", s.req.Image, s.err)
	}
	return s.addr
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("resolve port %s: %w", port, err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

var registry = &sharedContainer{
	req: testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	},
	port: "5000/tcp",
}

var azurite = &sharedContainer{
	req: testcontainers.ContainerRequest{
		Image:        "mcr.microsoft.com/azure-storage/azurite:latest",
		Cmd:          []string{"azurite-blob", "--blobHost", "0.0.0.0", "--skipApiVersionCheck", "--loose"},
		ExposedPorts: []string{"10000/tcp"},
		WaitingFor:   wait.ForListeningPort("10000/tcp"),
	},
	port: "10000/tcp",
}

var minio = &sharedContainer{
	req: testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		Cmd:          []string{"server", "/data"},
		Env:          map[string]string{"MINIO_ROOT_USER": minioUser, "MINIO_ROOT_PASSWORD": minioPassword},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	},
	port: "9000/tcp",
}

var fakeGCS = &sharedContainer{
	req: testcontainers.ContainerRequest{
		Image:        "fsouza/fake-gcs-server:latest",
		Cmd:          []string{"-scheme", "http", "-port", "4443", "-backend", "memory"},
		ExposedPorts: []string{"4443/tcp"},
		WaitingFor:   wait.ForHTTP("/storage/v1/b").WithPort("4443/tcp").WithStatusCodeMatcher(isOKStatus),
	},
	port: "4443/tcp",
}

func azuriteConnectionString(addr string) string {
	return "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=" + azuriteAccountKey +
		";BlobEndpoint=http://" + addr + "/devstoreaccount1;"
}
