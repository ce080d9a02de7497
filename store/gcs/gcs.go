// Package gcs implements a store.Backend on Google Cloud Storage.
//
// Archive metadata is kept as object custom metadata. Reads pin the object
// generation reported by Attrs, so the bytes returned always belong to the
// metadata returned with them.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

// bucketHandle abstracts a GCS bucket handle for testability.
type bucketHandle interface {
	Object(name string) objectHandle
	Create(ctx context.Context, projectID string) error
}

// objectHandle abstracts a GCS object handle.
type objectHandle interface {
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	NewReader(ctx context.Context, generation int64) (io.ReadCloser, error)
	NewWriter(ctx context.Context, contentType string, metadata map[string]string) io.WriteCloser
}

type realBucketHandle struct{ bh *storage.BucketHandle }

func (r *realBucketHandle) Object(name string) objectHandle {
	return &realObjectHandle{r.bh.Object(name)}
}

func (r *realBucketHandle) Create(ctx context.Context, projectID string) error {
	return r.bh.Create(ctx, projectID, nil)
}

type realObjectHandle struct{ oh *storage.ObjectHandle }

func (r *realObjectHandle) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return r.oh.Attrs(ctx)
}

func (r *realObjectHandle) NewReader(ctx context.Context, generation int64) (io.ReadCloser, error) {
	return r.oh.Generation(generation).NewReader(ctx)
}

func (r *realObjectHandle) NewWriter(ctx context.Context, contentType string, metadata map[string]string) io.WriteCloser {
	w := r.oh.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	return w
}

// Config describes how to reach a bucket.
type Config struct {
	Bucket  string
	Project string

	// CredentialsFile is a service account JSON key. When empty the
	// application default credentials are used.
	CredentialsFile string

	// Endpoint overrides the JSON API endpoint, for fake-gcs-server.
	// Authentication is disabled when it is set.
	Endpoint string
}

// Backend stores archives as objects in one bucket.
type Backend struct {
	client  *storage.Client
	bucket  bucketHandle
	name    string
	project string
	logger  *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger for the backend.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a backend and its storage client.
func New(ctx context.Context, cfg Config, opts ...Option) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: bucket is empty")
	}
	var clientOpts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	b := newBackend(&realBucketHandle{client.Bucket(cfg.Bucket)}, cfg.Bucket, opts...)
	b.client = client
	b.project = cfg.Project
	return b, nil
}

func newBackend(bucket bucketHandle, name string, opts ...Option) *Backend {
	b := &Backend{bucket: bucket, name: name}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// log returns the logger, falling back to a discard logger if nil.
func (b *Backend) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// Close releases the storage client.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// EnsureBucket creates the bucket if it does not exist.
func (b *Backend) EnsureBucket(ctx context.Context) error {
	err := b.bucket.Create(ctx, b.project)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("gcs: create bucket %q: %w", b.name, err)
	}
	b.log().Info("bucket created", "bucket", b.name)
	return nil
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, obj *store.Object, body io.ReadSeeker) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.bucket.Object(obj.Name).NewWriter(ctx, obj.ContentType, obj.Metadata)
	if _, err := io.Copy(w, body); err != nil {
		// Cancelling before Close abandons the upload.
		cancel()
		_ = w.Close()
		return fmt.Errorf("gcs: write %q: %w", obj.Name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: write %q: %w", obj.Name, err)
	}
	b.log().Debug("object written", "bucket", b.name, "name", obj.Name, "bytes", obj.Size)
	return nil
}

// Stat implements store.Backend.
func (b *Backend) Stat(ctx context.Context, name string) (*store.Object, error) {
	attrs, err := b.bucket.Object(name).Attrs(ctx)
	if err != nil {
		return nil, mapError(name, err)
	}
	return toObject(name, attrs), nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, *store.Object, error) {
	h := b.bucket.Object(name)
	var lastErr error
	for range 2 {
		attrs, err := h.Attrs(ctx)
		if err != nil {
			return nil, nil, mapError(name, err)
		}
		rc, err := h.NewReader(ctx, attrs.Generation)
		if err == nil {
			return rc, toObject(name, attrs), nil
		}
		if !errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, mapError(name, err)
		}
		// Generation replaced between Attrs and NewReader.
		lastErr = err
	}
	return nil, nil, mapError(name, lastErr)
}

func toObject(name string, attrs *storage.ObjectAttrs) *store.Object {
	return &store.Object{
		Name:        name,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		Metadata:    attrs.Metadata,
	}
}

func mapError(name string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("gcs: %q: %w", name, store.ErrNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("gcs: %q: %w: %v", name, store.ErrNotFound, err)
	}
	return fmt.Errorf("gcs: %q: %w", name, err)
}

var _ store.Backend = (*Backend)(nil)
