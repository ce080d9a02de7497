package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/syedhassaanahmed/log-storage-service/cache"
	diskcache "github.com/syedhassaanahmed/log-storage-service/cache/disk"
	"github.com/syedhassaanahmed/log-storage-service/store"
	"github.com/syedhassaanahmed/log-storage-service/store/azure"
	"github.com/syedhassaanahmed/log-storage-service/store/disk"
	"github.com/syedhassaanahmed/log-storage-service/store/gcs"
	"github.com/syedhassaanahmed/log-storage-service/store/memory"
	"github.com/syedhassaanahmed/log-storage-service/store/oci"
	"github.com/syedhassaanahmed/log-storage-service/store/s3"
)

// Closer releases resources acquired by Open functions.
type Closer func() error

func noopCloser() error { return nil }

// OpenBackend constructs the configured blob backend.
func (c *Config) OpenBackend(ctx context.Context, logger *slog.Logger) (store.Backend, Closer, error) {
	s := c.Storage
	switch s.Backend {
	case BackendMemory:
		return memory.New(), noopCloser, nil

	case BackendDisk:
		b, err := disk.New(s.Disk.Dir, disk.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil

	case BackendAzure:
		b, err := openAzure(s.Azure, logger)
		if err != nil {
			return nil, nil, err
		}
		if s.Azure.CreateContainer {
			if err := b.EnsureContainer(ctx); err != nil {
				return nil, nil, err
			}
		}
		return b, noopCloser, nil

	case BackendS3:
		b, err := s3.New(ctx, s3.Config{
			Bucket:    s.S3.Bucket,
			Prefix:    s.S3.Prefix,
			Region:    s.S3.Region,
			Endpoint:  s.S3.Endpoint,
			AccessKey: s.S3.AccessKey,
			SecretKey: s.S3.SecretKey,
		}, s3.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if s.S3.CreateBucket {
			if err := b.EnsureBucket(ctx); err != nil {
				return nil, nil, err
			}
		}
		return b, noopCloser, nil

	case BackendGCS:
		b, err := gcs.New(ctx, gcs.Config{
			Bucket:          s.GCS.Bucket,
			Project:         s.GCS.Project,
			CredentialsFile: s.GCS.CredentialsFile,
			Endpoint:        s.GCS.Endpoint,
		}, gcs.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if s.GCS.CreateBucket {
			if err := b.EnsureBucket(ctx); err != nil {
				_ = b.Close()
				return nil, nil, err
			}
		}
		return b, b.Close, nil

	case BackendOCI:
		opts := []oci.Option{
			oci.WithPlainHTTP(s.OCI.PlainHTTP),
			oci.WithLogger(logger),
		}
		switch {
		case s.OCI.Username != "":
			host, _, _ := strings.Cut(s.OCI.Repository, "/")
			opts = append(opts, oci.WithStaticCredentials(host, s.OCI.Username, s.OCI.Password))
		case s.OCI.DockerConfig:
			opts = append(opts, oci.WithDockerConfig())
		default:
			opts = append(opts, oci.WithAnonymous())
		}
		b, err := oci.New(s.OCI.Repository, opts...)
		if err != nil {
			return nil, nil, err
		}
		return b, noopCloser, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", s.Backend)
}

func openAzure(a AzureConfig, logger *slog.Logger) (*azure.Backend, error) {
	opts := []azure.Option{azure.WithContainer(a.Container), azure.WithLogger(logger)}
	switch {
	case a.ConnectionString != "":
		return azure.NewFromConnectionString(a.ConnectionString, opts...)
	case a.AccountKey != "":
		return azure.NewWithSharedKey(a.ServiceURL, a.AccountName, a.AccountKey, opts...)
	case a.ServiceURL != "":
		return azure.NewWithSAS(a.ServiceURL, opts...)
	}
	return nil, errors.New("azure: no credentials configured")
}

// OpenCache constructs the configured archive cache. A nil cache means
// caching is disabled.
func (c *Config) OpenCache(ctx context.Context) (cache.Cache, Closer, error) {
	switch c.Cache.Type {
	case CacheNone:
		return nil, noopCloser, nil
	case CacheMemory:
		m, err := cache.NewMemory(ctx,
			cache.WithMaxMegabytes(c.Cache.MemoryMB),
			cache.WithTTL(c.Cache.TTL),
			cache.WithMaxEntrySize(c.Storage.MaxArchiveSize),
		)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	case CacheDisk:
		d, err := diskcache.New(c.Cache.Dir, diskcache.WithMaxBytes(c.Cache.MaxBytes))
		if err != nil {
			return nil, nil, err
		}
		return d, noopCloser, nil
	}
	return nil, nil, fmt.Errorf("unknown cache type %q", c.Cache.Type)
}

// OpenStore constructs the backend, the cache and the store over them.
// Metrics are registered with reg when it is non-nil.
func (c *Config) OpenStore(ctx context.Context, logger *slog.Logger, reg prometheus.Registerer) (*store.Store, Closer, error) {
	backend, closeBackend, err := c.OpenBackend(ctx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", c.Storage.Backend, err)
	}
	ch, closeCache, err := c.OpenCache(ctx)
	if err != nil {
		_ = closeBackend()
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}

	opts := []store.Option{
		store.WithMaxArchiveSize(c.Storage.MaxArchiveSize),
		store.WithLogger(logger),
	}
	if ch != nil {
		opts = append(opts, store.WithCache(ch))
	}
	if reg != nil {
		opts = append(opts, store.WithMetrics(reg))
	}
	st, err := store.New(backend, opts...)
	if err != nil {
		_ = closeCache()
		_ = closeBackend()
		return nil, nil, err
	}
	return st, func() error {
		return errors.Join(closeCache(), closeBackend())
	}, nil
}
