// Package s3 implements a store.Backend on Amazon S3 and S3-compatible
// services such as MinIO.
//
// S3 caps user metadata at 2 KiB, too little for an entry index, so each
// archive is kept as two objects: a data object "<name>.<uuid>.data" and a
// descriptor "<name>.meta.json" holding the content type, size, metadata
// and the data object's key. Every Put writes a fresh data object and then
// replaces the descriptor in one PUT, so readers resolve either the old or
// the new pair. The data object a replaced descriptor named is deleted
// afterwards.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

const (
	metaSuffix          = ".meta.json"
	dataSuffix          = ".data"
	descriptorMediaType = "application/json"
	maxDescriptorSize   = 16 << 20
)

// API defines the S3 operations used by the backend.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// descriptor is the stored form of a blob's attributes.
type descriptor struct {
	ContentType string            `json:"contentType"`
	Size        int64             `json:"size"`
	DataKey     string            `json:"dataKey"`
	Metadata    map[string]string `json:"metadata"`
}

// Config describes how to reach a bucket.
type Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the service endpoint, for MinIO or LocalStack.
	// Path-style addressing is used when it is set.
	Endpoint string

	// AccessKey and SecretKey select static credentials. When empty the
	// default AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// Backend stores archives in one bucket under an optional key prefix.
type Backend struct {
	api    API
	bucket string
	prefix string
	region string
	logger *slog.Logger
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

// New creates a backend from cfg using the AWS SDK default configuration.
func New(ctx context.Context, cfg Config, opts ...Option) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is empty")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	b := NewWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, opts...)
	b.region = region
	return b, nil
}

// NewWithAPI creates a backend over an existing client.
func NewWithAPI(api API, bucket, prefix string, opts ...Option) *Backend {
	b := &Backend{api: api, bucket: bucket, prefix: prefix, region: "us-east-1"}
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

// Bucket returns the bucket name.
func (b *Backend) Bucket() string {
	return b.bucket
}

// EnsureBucket creates the bucket if it does not exist.
func (b *Backend) EnsureBucket(ctx context.Context) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	// us-east-1 rejects an explicit location constraint.
	if b.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}
	_, err := b.api.CreateBucket(ctx, in)
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	switch {
	case errors.As(err, &owned), errors.As(err, &exists):
		return nil
	case err != nil:
		return fmt.Errorf("s3: create bucket %q: %w", b.bucket, err)
	}
	b.log().Info("bucket created", "bucket", b.bucket)
	return nil
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, obj *store.Object, body io.ReadSeeker) error {
	dataKey := b.prefix + obj.Name + "." + uuid.NewString() + dataSuffix
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(dataKey),
		Body:          body,
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String(obj.ContentType),
	})
	if err != nil {
		return fmt.Errorf("s3: put data %q: %w", dataKey, err)
	}

	previous, err := b.readDescriptor(ctx, obj.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		b.log().Warn("read previous descriptor", "name", obj.Name, "error", err)
	}

	meta, err := json.Marshal(descriptor{
		ContentType: obj.ContentType,
		Size:        obj.Size,
		DataKey:     dataKey,
		Metadata:    obj.Metadata,
	})
	if err != nil {
		return fmt.Errorf("s3: encode descriptor: %w", err)
	}
	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.metaKey(obj.Name)),
		Body:          bytes.NewReader(meta),
		ContentLength: aws.Int64(int64(len(meta))),
		ContentType:   aws.String(descriptorMediaType),
	})
	if err != nil {
		b.deleteData(ctx, dataKey)
		return fmt.Errorf("s3: put descriptor %q: %w", obj.Name, err)
	}

	if previous != nil && previous.DataKey != dataKey {
		b.deleteData(ctx, previous.DataKey)
	}
	b.log().Debug("object written", "bucket", b.bucket, "name", obj.Name, "data", dataKey, "bytes", obj.Size)
	return nil
}

// Stat implements store.Backend.
func (b *Backend) Stat(ctx context.Context, name string) (*store.Object, error) {
	d, err := b.readDescriptor(ctx, name)
	if err != nil {
		return nil, err
	}
	return d.object(name), nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, *store.Object, error) {
	var lastErr error
	for range 2 {
		d, err := b.readDescriptor(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(d.DataKey),
		})
		if err == nil {
			return out.Body, d.object(name), nil
		}
		if !isNotFound(err) {
			return nil, nil, fmt.Errorf("s3: get data %q: %w", d.DataKey, err)
		}
		// Replaced between reading the descriptor and fetching the data.
		lastErr = err
	}
	return nil, nil, fmt.Errorf("s3: %q data missing: %w: %v", name, store.ErrNotFound, lastErr)
}

func (b *Backend) readDescriptor(ctx context.Context, name string) (*descriptor, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.metaKey(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3: %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("s3: get descriptor %q: %w", name, err)
	}
	defer out.Body.Close()

	var d descriptor
	if err := json.NewDecoder(io.LimitReader(out.Body, maxDescriptorSize)).Decode(&d); err != nil {
		return nil, fmt.Errorf("s3: decode descriptor %q: %w", name, err)
	}
	if d.DataKey == "" {
		return nil, fmt.Errorf("s3: descriptor %q names no data object", name)
	}
	return &d, nil
}

func (b *Backend) deleteData(ctx context.Context, key string) {
	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		b.log().Warn("delete data object", "bucket", b.bucket, "key", key, "error", err)
	}
}

func (b *Backend) metaKey(name string) string {
	return b.prefix + name + metaSuffix
}

func (d *descriptor) object(name string) *store.Object {
	return &store.Object{
		Name:        name,
		ContentType: d.ContentType,
		Size:        d.Size,
		Metadata:    d.Metadata,
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

var _ store.Backend = (*Backend)(nil)
