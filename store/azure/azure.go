// Package azure implements a store.Backend on Azure Blob Storage.
//
// Each archive is one block blob whose blob metadata carries the index.
// Azure limits the total metadata of a blob to 8 KiB, which bounds the
// number of entries an archive can index on this backend.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

// DefaultContainer is the container used when none is configured.
const DefaultContainer = "logs"

// MaxMetadataSize is the service limit on the combined size of a blob's
// metadata names and values.
const MaxMetadataSize = 8 << 10

// blobAttrs is the subset of blob properties the backend reads.
type blobAttrs struct {
	ContentType string
	Size        int64
	Metadata    map[string]*string
}

// blobAPI is the narrow set of Blob Storage calls the backend needs.
type blobAPI interface {
	CreateContainer(ctx context.Context) error
	Upload(ctx context.Context, name string, body io.Reader, contentType string, md map[string]*string) error
	Properties(ctx context.Context, name string) (*blobAttrs, error)
	Download(ctx context.Context, name string) (io.ReadCloser, *blobAttrs, error)
}

// Backend stores archives as blobs in one container.
type Backend struct {
	api       blobAPI
	container string
	logger    *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithContainer sets the container name. Defaults to DefaultContainer.
func WithContainer(name string) Option {
	return func(b *Backend) {
		b.container = name
	}
}

// WithLogger sets the logger for the backend.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// NewFromConnectionString creates a backend from a storage account
// connection string, such as the one Azurite prints for local use.
func NewFromConnectionString(connStr string, opts ...Option) (*Backend, error) {
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: create client: %w", err)
	}
	return newBackend(client, opts...), nil
}

// NewWithSharedKey creates a backend for a service URL such as
// "https://account.blob.core.windows.net/" using an account key.
func NewWithSharedKey(serviceURL, account, key string, opts ...Option) (*Backend, error) {
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("azure: shared key: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: create client: %w", err)
	}
	return newBackend(client, opts...), nil
}

// NewWithSAS creates a backend from a service URL that carries a SAS token.
func NewWithSAS(serviceURL string, opts ...Option) (*Backend, error) {
	client, err := azblob.NewClientWithNoCredential(serviceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: create client: %w", err)
	}
	return newBackend(client, opts...), nil
}

func newBackend(client *azblob.Client, opts ...Option) *Backend {
	b := &Backend{container: DefaultContainer}
	for _, opt := range opts {
		opt(b)
	}
	b.api = &sdkAPI{client: client, container: b.container}
	return b
}

// log returns the logger, falling back to a discard logger if nil.
func (b *Backend) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// Container returns the container name.
func (b *Backend) Container() string {
	return b.container
}

// EnsureContainer creates the container if it does not exist.
func (b *Backend) EnsureContainer(ctx context.Context) error {
	if err := b.api.CreateContainer(ctx); err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return fmt.Errorf("azure: create container %q: %w", b.container, err)
	}
	b.log().Info("container created", "container", b.container)
	return nil
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, obj *store.Object, body io.ReadSeeker) error {
	md := make(map[string]*string, len(obj.Metadata))
	size := 0
	for k, v := range obj.Metadata {
		md[k] = to.Ptr(v)
		size += len(k) + len(v)
	}
	if size > MaxMetadataSize {
		return fmt.Errorf("azure: blob %q: %w: %d entries use %d bytes, limit is %d",
			obj.Name, store.ErrMetadataTooLarge, len(obj.Metadata), size, MaxMetadataSize)
	}
	if err := b.api.Upload(ctx, obj.Name, body, obj.ContentType, md); err != nil {
		return mapError(obj.Name, err)
	}
	return nil
}

// Stat implements store.Backend.
func (b *Backend) Stat(ctx context.Context, name string) (*store.Object, error) {
	attrs, err := b.api.Properties(ctx, name)
	if err != nil {
		return nil, mapError(name, err)
	}
	return attrs.object(name), nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, *store.Object, error) {
	rc, attrs, err := b.api.Download(ctx, name)
	if err != nil {
		return nil, nil, mapError(name, err)
	}
	return rc, attrs.object(name), nil
}

// object converts blob attributes. The SDK reports metadata keys as HTTP
// header names in canonical case; index keys are lowercase, so they are
// folded back.
func (a *blobAttrs) object(name string) *store.Object {
	md := make(map[string]string, len(a.Metadata))
	for k, v := range a.Metadata {
		if v == nil {
			continue
		}
		md[strings.ToLower(k)] = *v
	}
	return &store.Object{
		Name:        name,
		ContentType: a.ContentType,
		Size:        a.Size,
		Metadata:    md,
	}
}

func mapError(name string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return fmt.Errorf("azure: %q: %w: %v", name, store.ErrNotFound, err)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("azure: %q: %w: %v", name, store.ErrNotFound, err)
	}
	return fmt.Errorf("azure: %q: %w", name, err)
}

// sdkAPI implements blobAPI with the Azure SDK.
type sdkAPI struct {
	client    *azblob.Client
	container string
}

func (s *sdkAPI) CreateContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	return err
}

func (s *sdkAPI) Upload(ctx context.Context, name string, body io.Reader, contentType string, md map[string]*string) error {
	_, err := s.client.UploadStream(ctx, s.container, name, body, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
		Metadata:    md,
	})
	return err
}

func (s *sdkAPI) Properties(ctx context.Context, name string) (*blobAttrs, error) {
	resp, err := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &blobAttrs{
		ContentType: deref(resp.ContentType),
		Size:        derefInt(resp.ContentLength),
		Metadata:    resp.Metadata,
	}, nil
}

func (s *sdkAPI) Download(ctx context.Context, name string) (io.ReadCloser, *blobAttrs, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		return nil, nil, err
	}
	return resp.Body, &blobAttrs{
		ContentType: deref(resp.ContentType),
		Size:        derefInt(resp.ContentLength),
		Metadata:    resp.Metadata,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

var _ store.Backend = (*Backend)(nil)
