package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logstorage "github.com/syedhassaanahmed/log-storage-service"
	"github.com/syedhassaanahmed/log-storage-service/internal/storetest"
	ziptest "github.com/syedhassaanahmed/log-storage-service/internal/testutil"
	"github.com/syedhassaanahmed/log-storage-service/server"
	"github.com/syedhassaanahmed/log-storage-service/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type fixture struct {
	srv     *server.Server
	backend *storetest.Backend
}

func newFixture(t *testing.T, opts ...server.Option) *fixture {
	t.Helper()
	return newStoreFixture(t, storetest.NewBackend(), nil, opts...)
}

// newStoreFixture serves backend through a store built with storeOpts.
func newStoreFixture(t *testing.T, backend *storetest.Backend, storeOpts []store.Option, opts ...server.Option) *fixture {
	t.Helper()
	st, err := store.New(backend, storeOpts...)
	require.NoError(t, err)
	svc := logstorage.New(st, logstorage.WithMaxUploadSize(1<<20))
	return &fixture{srv: server.New(svc, opts...), backend: backend}
}

func (f *fixture) do(t *testing.T, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func zipHeader() http.Header {
	return http.Header{"Content-Type": {"application/zip"}}
}

func (f *fixture) upload(t *testing.T, name string, data []byte) []logstorage.Link {
	t.Helper()
	rec := f.do(t, http.MethodPut, "/api/logs/"+name, data, zipHeader())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var links []logstorage.Link
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	return links
}

func TestUpload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/logs/logs.zip", ziptest.LogsZip(t), zipHeader())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/logs/logs.zip", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var links []logstorage.Link
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	assert.Equal(t, []logstorage.Link{
		{URL: "/logs/logs.zip/" + store.EncodeKey("a.log"), Size: 11},
		{URL: "/logs/logs.zip/" + store.EncodeKey("b.log"), Size: 5},
	}, links)
}

func TestUpload_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		body   []byte
		header http.Header
		want   int
	}{
		{name: "wrong content type", target: "/api/logs/a.zip", body: ziptest.LogsZip(t), header: http.Header{"Content-Type": {"text/plain"}}, want: http.StatusUnsupportedMediaType},
		{name: "missing content type", target: "/api/logs/a.zip", body: ziptest.LogsZip(t), want: http.StatusUnsupportedMediaType},
		{name: "empty body", target: "/api/logs/a.zip", header: zipHeader(), want: http.StatusBadRequest},
		{name: "not a zip", target: "/api/logs/a.zip", body: []byte("hello"), header: zipHeader(), want: http.StatusUnsupportedMediaType},
		{name: "empty archive", target: "/api/logs/a.zip", body: ziptest.EmptyZip(t), header: zipHeader(), want: http.StatusBadRequest},
		{name: "no name", target: "/api/logs/", body: ziptest.LogsZip(t), header: zipHeader(), want: http.StatusNotFound},
		{name: "too large", target: "/api/logs/a.zip", body: ziptest.BuildZip(t, ziptest.ZipFile{Name: "big.log", Content: ziptest.RepeatedContent(4096), Stored: true}), header: zipHeader(), want: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, server.WithMaxUploadSize(2048))
			rec := f.do(t, http.MethodPut, tt.target, tt.body, tt.header)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Zero(t, f.backend.Puts())
		})
	}
}

func TestUpload_OverStoreLimit(t *testing.T) {
	t.Parallel()

	// The service accepts 1 MiB; the store caps archives at 100 bytes.
	f := newStoreFixture(t, storetest.NewBackend(), []store.Option{store.WithMaxArchiveSize(100)})
	rec := f.do(t, http.MethodPut, "/api/logs/logs.zip", ziptest.LogsZip(t), zipHeader())

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "archive too large")
	assert.Zero(t, f.backend.Puts())
}

func TestUpload_OverBackendMetadataLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.FailPut(fmt.Errorf("azure: %w: 9000 bytes", store.ErrMetadataTooLarge))
	rec := f.do(t, http.MethodPut, "/api/logs/logs.zip", ziptest.LogsZip(t), zipHeader())

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many files")
}

func TestUpload_AcceptsLegacyContentType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/logs/a.zip", ziptest.LogsZip(t),
		http.Header{"Content-Type": {"application/x-zip-compressed"}})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUpload_BackendFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.FailPut(errors.New("storage account unreachable"))
	rec := f.do(t, http.MethodPut, "/api/logs/a.zip", ziptest.LogsZip(t), zipHeader())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unreachable")
}

func TestIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.upload(t, "logs.zip", ziptest.LogsZip(t))

	rec := f.do(t, http.MethodGet, "/api/logs/logs.zip", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var links []logstorage.Link
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	assert.Len(t, links, 2)

	rec = f.do(t, http.MethodGet, "/api/logs/missing.zip", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, server.WithCacheMaxAge(10*time.Minute))
	links := f.upload(t, "logs.zip", ziptest.LogsZip(t))

	rec := f.do(t, http.MethodGet, links[0].URL, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, "11", rec.Header().Get("Content-Length"))
	assert.Equal(t, "public,max-age=600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, ziptest.FixtureTime.Format(http.TimeFormat), rec.Header().Get("Last-Modified"))
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestDownload_Head(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	links := f.upload(t, "logs.zip", ziptest.LogsZip(t))
	f.backend.ResetCounts()

	rec := f.do(t, http.MethodHead, links[1].URL, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Zero(t, f.backend.Gets())
}

func TestDownload_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.upload(t, "logs.zip", ziptest.LogsZip(t))
	f.backend.ResetCounts()

	for _, target := range []string{
		"/logs/logs.zip",
		"/logs/logs.zip/" + store.EncodeKey("missing.log"),
		"/logs/logs.zip/a/b",
		"/logs/other.zip/" + store.EncodeKey("a.log"),
	} {
		rec := f.do(t, http.MethodGet, target, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	assert.Zero(t, f.backend.Gets())
}

func TestDownload_Corrupt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	links := f.upload(t, "logs.zip", ziptest.LogsZip(t))
	require.True(t, f.backend.Corrupt("logs.zip", ziptest.EmptyZip(t)))

	rec := f.do(t, http.MethodGet, links[0].URL, nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDownload_StoredArchiveOverLimit(t *testing.T) {
	t.Parallel()

	backend := storetest.NewBackend()
	links := newStoreFixture(t, backend, nil).upload(t, "logs.zip", ziptest.LogsZip(t))

	// Same blob, read by a store whose limit was lowered after the upload.
	f := newStoreFixture(t, backend, []store.Option{store.WithMaxArchiveSize(100)})
	rec := f.do(t, http.MethodGet, links[0].URL, nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds the size limit")

	rec = f.do(t, http.MethodHead, links[0].URL, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "metadata needs no download")
}

func TestDownload_BackendFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	links := f.upload(t, "logs.zip", ziptest.LogsZip(t))
	f.backend.FailGet(errors.New("timeout"))

	rec := f.do(t, http.MethodGet, links[0].URL, nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, server.WithBasicAuth("admin", "s3cret"))

	rec := f.do(t, http.MethodGet, "/api/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="log-storage"`, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, open := range []string{"/healthz", "/metrics"} {
		rec = f.do(t, http.MethodGet, open, nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code, open)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, server.WithStatus(map[string]string{"backend": "memory"}))
	rec := f.do(t, http.MethodGet, "/api/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "memory", status["backend"])
	assert.Equal(t, "/logs/", status["baseUrl"])
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, http.Header{"X-Request-Id": {"abc-123"}})
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	f := newFixture(t, server.WithRegistry(reg))
	f.do(t, http.MethodGet, "/healthz", nil, nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `logstorage_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestServe(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "ok"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
