//go:build integration

package integration

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logstorage "github.com/syedhassaanahmed/log-storage-service"
	lshttp "github.com/syedhassaanahmed/log-storage-service/http"
	"github.com/syedhassaanahmed/log-storage-service/internal/config"
	ziptest "github.com/syedhassaanahmed/log-storage-service/internal/testutil"
	"github.com/syedhassaanahmed/log-storage-service/server"
	"github.com/syedhassaanahmed/log-storage-service/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func openService(t *testing.T, cfg *config.Config) *logstorage.Service {
	t.Helper()
	require.NoError(t, cfg.Validate())
	st, closeStore, err := cfg.OpenStore(context.Background(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })
	return logstorage.New(st)
}

func azureConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendAzure
	cfg.Storage.Azure.ConnectionString = azuriteConnectionString(azurite.get(t))
	cfg.Storage.Azure.Container = "logs"
	cfg.Storage.Azure.CreateContainer = true
	return cfg
}

func s3Config(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendS3
	cfg.Storage.S3.Endpoint = "http://" + minio.get(t)
	cfg.Storage.S3.Bucket = "logs"
	cfg.Storage.S3.Prefix = "archives/"
	cfg.Storage.S3.AccessKey = minioUser
	cfg.Storage.S3.SecretKey = minioPassword
	cfg.Storage.S3.CreateBucket = true
	cfg.Cache.Type = config.CacheMemory
	cfg.Cache.MemoryMB = 16
	cfg.Storage.MaxArchiveSize = 8 << 20
	return cfg
}

func gcsConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendGCS
	cfg.Storage.GCS.Endpoint = "http://" + fakeGCS.get(t) + "/storage/v1/"
	cfg.Storage.GCS.Bucket = "logs"
	cfg.Storage.GCS.Project = "test"
	cfg.Storage.GCS.CreateBucket = true
	return cfg
}

func ociConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendOCI
	cfg.Storage.OCI.Repository = registry.get(t) + "/test/logs"
	cfg.Storage.OCI.PlainHTTP = true
	cfg.Cache.Type = config.CacheDisk
	cfg.Cache.Dir = t.TempDir()
	return cfg
}

var backends = []struct {
	name   string
	config func(*testing.T) *config.Config
}{
	{"azure", azureConfig},
	{"s3", s3Config},
	{"gcs", gcsConfig},
	{"oci", ociConfig},
}

func TestBackends_UploadResolveOpen(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			svc := openService(t, b.config(t))
			ctx := context.Background()

			res, err := svc.Upload(ctx, "run-1.zip", bytes.NewReader(ziptest.LogsZip(t)))
			require.NoError(t, err)
			assert.Equal(t, "run-1.zip", res.ArchiveID)
			require.Len(t, res.Links, 2)

			links, err := svc.Index(ctx, "run-1.zip")
			require.NoError(t, err)
			assert.ElementsMatch(t, res.Links, links)

			assertContent(t, svc, "run-1.zip", "a.log", "hello world")
			assertContent(t, svc, "run-1.zip", "b.log", "hello")

			_, ok, err := svc.Resolve(ctx, "run-1.zip/"+store.EncodeKey("missing.log"))
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = svc.Resolve(ctx, "run-2.zip/"+store.EncodeKey("a.log"))
			require.NoError(t, err)
			assert.False(t, ok)

			exists, err := svc.Exists(ctx, "run-2.zip")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestBackends_Replace(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			svc := openService(t, b.config(t))
			ctx := context.Background()

			_, err := svc.Upload(ctx, "replace.zip", bytes.NewReader(ziptest.LogsZip(t)))
			require.NoError(t, err)
			assertContent(t, svc, "replace.zip", "a.log", "hello world")

			second := ziptest.BuildZip(t, ziptest.ZipFile{Name: "a.log", Content: []byte("second upload")})
			res, err := svc.Upload(ctx, "replace.zip", bytes.NewReader(second))
			require.NoError(t, err)
			require.Len(t, res.Links, 1)

			assertContent(t, svc, "replace.zip", "a.log", "second upload")
			_, ok, err := svc.Resolve(ctx, "replace.zip/"+store.EncodeKey("b.log"))
			require.NoError(t, err)
			assert.False(t, ok, "entry of the replaced archive must be gone")
		})
	}
}

func TestBackends_NestedAndCompressedNames(t *testing.T) {
	files := []ziptest.ZipFile{
		{Name: "node-1/", Stored: true},
		{Name: "node-1/Агент.log", Content: []byte("cyrillic")},
		{Name: "node-1/deep/trace.log", Content: ziptest.RepeatedContent(256 << 10)},
		{Name: "MixedCase.LOG", Content: []byte("upper"), Method: zstd.ZipMethodWinZip},
	}
	data := ziptest.BuildZip(t, files...)

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			svc := openService(t, b.config(t))
			res, err := svc.Upload(context.Background(), "nested.zip", bytes.NewReader(data))
			require.NoError(t, err)
			assert.Len(t, res.Links, 3, "directory entries are not indexed")

			assertContent(t, svc, "nested.zip", "node-1/Агент.log", "cyrillic")
			assertContent(t, svc, "nested.zip", "node-1/deep/trace.log", string(ziptest.RepeatedContent(256<<10)))
			assertContent(t, svc, "nested.zip", "MixedCase.LOG", "upper")
		})
	}
}

func TestBackends_HTTPRoundTrip(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			svc := openService(t, b.config(t))
			ts := httptest.NewServer(server.New(svc).Handler())
			t.Cleanup(ts.Close)

			client, err := lshttp.NewClient(ts.URL)
			require.NoError(t, err)
			ctx := context.Background()

			data := ziptest.LogsZip(t)
			up, err := client.Upload(ctx, "http run.zip", bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			assert.Equal(t, "/api/logs/http_run.zip", up.Location)
			require.Len(t, up.Links, 2)

			for _, link := range up.Links {
				info, err := client.Stat(ctx, link.URL)
				require.NoError(t, err)
				assert.Equal(t, link.Size, info.Size)

				f, err := client.Open(ctx, link.URL)
				require.NoError(t, err)
				body, err := io.ReadAll(f)
				require.NoError(t, f.Close())
				require.NoError(t, err)
				assert.Len(t, body, int(link.Size))
			}

			_, err = client.Open(ctx, "/logs/http_run.zip/"+store.EncodeKey("nope"))
			require.ErrorIs(t, err, lshttp.ErrNotFound)
		})
	}
}

func assertContent(t *testing.T, svc *logstorage.Service, archiveID, name, want string) {
	t.Helper()
	ctx := context.Background()
	f, ok, err := svc.Resolve(ctx, archiveID+"/"+store.EncodeKey(name))
	require.NoError(t, err, name)
	require.True(t, ok, name)
	assert.Equal(t, int64(len(want)), f.Size(), name)

	rc, err := f.Open(ctx)
	require.NoError(t, err, name)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err, name)
	assert.Equal(t, want, string(got), "content of %s", name)
}
