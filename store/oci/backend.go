// Package oci stores archives as OCI artifacts in a registry.
//
// Every archive becomes one manifest tagged with the archive name. The
// manifest has an empty config and a single layer holding the ZIP bytes;
// blob metadata travels as manifest annotations. Pushing the manifest
// under its tag is the single atomic write, so a tag always names a
// consistent layer and annotation set.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

const (
	// ArtifactType identifies archive manifests.
	ArtifactType = "application/vnd.logstorage.archive.v1"

	// annotationPrefix namespaces blob metadata within manifest annotations.
	annotationPrefix = "io.logstorage.meta."

	// maxManifestSize bounds manifest reads.
	maxManifestSize = 4 << 20
)

// Backend implements store.Backend on one registry repository.
type Backend struct {
	ref        registry.Reference
	plainHTTP  bool
	userAgent  string
	anonymous  bool
	credStore  credentials.Store
	logger     *slog.Logger
	authClient *auth.Client
}

// New creates a backend for a repository reference such as
// "registry.example.com/team/logs". Archive names become tags.
func New(repoRef string, opts ...Option) (*Backend, error) {
	ref, err := registry.ParseReference(repoRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if ref.Reference != "" {
		return nil, fmt.Errorf("%w: %q must not include a tag or digest", ErrInvalidReference, repoRef)
	}
	b := &Backend{
		ref:       ref,
		userAgent: "logstorage/1.0",
	}
	for _, opt := range opts {
		opt(b)
	}

	b.authClient = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if b.anonymous || b.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return b.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{b.userAgent},
		},
	}
	return b, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (b *Backend) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// Repository returns the repository reference archives are tagged in.
func (b *Backend) Repository() string {
	return b.ref.String()
}

func (b *Backend) repository() (*remote.Repository, error) {
	repo, err := remote.NewRepository(b.ref.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	repo.PlainHTTP = b.plainHTTP
	repo.Client = b.authClient
	return repo, nil
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, obj *store.Object, body io.ReadSeeker) error {
	repo, err := b.repository()
	if err != nil {
		return err
	}

	sum, err := digest.SHA256.FromReader(body)
	if err != nil {
		return fmt.Errorf("oci: digest layer: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("oci: rewind layer: %w", err)
	}

	mediaType := obj.ContentType
	if mediaType == "" {
		mediaType = store.ContentTypeZip
	}
	layer := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    sum,
		Size:      obj.Size,
		Annotations: map[string]string{
			ocispec.AnnotationTitle: obj.Name,
		},
	}
	if err := pushIfMissing(ctx, repo, layer, body); err != nil {
		return fmt.Errorf("oci: push layer: %w", err)
	}
	config := ocispec.DescriptorEmptyJSON
	if err := pushIfMissing(ctx, repo, config, bytes.NewReader(config.Data)); err != nil {
		return fmt.Errorf("oci: push config: %w", err)
	}

	manifest := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: ArtifactType,
		Config:       config,
		Layers:       []ocispec.Descriptor{layer},
		Annotations:  encodeAnnotations(obj.Metadata),
	}
	manifest.Annotations[ocispec.AnnotationCreated] = time.Now().UTC().Format(time.RFC3339)

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("oci: marshal manifest: %w", err)
	}
	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageManifest,
		Digest:    digest.FromBytes(manifestJSON),
		Size:      int64(len(manifestJSON)),
	}
	if err := repo.PushReference(ctx, desc, bytes.NewReader(manifestJSON), obj.Name); err != nil {
		return mapError(err)
	}
	b.log().Debug("archive manifest pushed",
		"repository", b.ref.String(),
		"tag", obj.Name,
		"manifest", desc.Digest.String(),
		"layer", sum.String())
	return nil
}

// Stat implements store.Backend.
func (b *Backend) Stat(ctx context.Context, name string) (*store.Object, error) {
	repo, err := b.repository()
	if err != nil {
		return nil, err
	}
	_, obj, err := b.fetchManifest(ctx, repo, name)
	return obj, err
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, *store.Object, error) {
	repo, err := b.repository()
	if err != nil {
		return nil, nil, err
	}
	layer, obj, err := b.fetchManifest(ctx, repo, name)
	if err != nil {
		return nil, nil, err
	}
	rc, err := repo.Fetch(ctx, layer)
	if err != nil {
		return nil, nil, mapError(err)
	}
	return rc, obj, nil
}

// fetchManifest reads the manifest tagged name and returns its archive
// layer together with the object it describes.
func (b *Backend) fetchManifest(ctx context.Context, repo *remote.Repository, name string) (ocispec.Descriptor, *store.Object, error) {
	if err := validateTag(name); err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	desc, rc, err := repo.FetchReference(ctx, name)
	if err != nil {
		return ocispec.Descriptor{}, nil, mapError(err)
	}
	defer rc.Close()

	if desc.MediaType != "" && desc.MediaType != ocispec.MediaTypeImageManifest {
		return ocispec.Descriptor{}, nil, fmt.Errorf("%w: unsupported media type %s", ErrManifestInvalid, desc.MediaType)
	}
	limit := desc.Size
	if limit <= 0 || limit > maxManifestSize {
		limit = maxManifestSize
	}
	var manifest ocispec.Manifest
	if err := json.NewDecoder(io.LimitReader(rc, limit)).Decode(&manifest); err != nil {
		return ocispec.Descriptor{}, nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	if manifest.ArtifactType != ArtifactType || len(manifest.Layers) != 1 {
		return ocispec.Descriptor{}, nil, fmt.Errorf("%w: tag %q is not an archive", ErrManifestInvalid, name)
	}

	layer := manifest.Layers[0]
	return layer, &store.Object{
		Name:        name,
		ContentType: layer.MediaType,
		Size:        layer.Size,
		Metadata:    decodeAnnotations(manifest.Annotations),
	}, nil
}

func pushIfMissing(ctx context.Context, repo *remote.Repository, desc ocispec.Descriptor, r io.Reader) error {
	exists, err := repo.Exists(ctx, desc)
	if err != nil {
		return mapError(err)
	}
	if exists {
		return nil
	}
	if err := repo.Push(ctx, desc, r); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return mapError(err)
	}
	return nil
}

func encodeAnnotations(md map[string]string) map[string]string {
	out := make(map[string]string, len(md)+1)
	for k, v := range md {
		out[annotationPrefix+k] = v
	}
	return out
}

func decodeAnnotations(annotations map[string]string) map[string]string {
	md := make(map[string]string, len(annotations))
	for k, v := range annotations {
		if key, ok := strings.CutPrefix(k, annotationPrefix); ok {
			md[key] = v
		}
	}
	return md
}

// validateTag rejects names that are not valid tags, which the registry
// would otherwise interpret as digests or reject with a less useful error.
func validateTag(name string) error {
	ref := registry.Reference{Reference: name}
	if err := ref.ValidateReferenceAsTag(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return nil
}

// mapError maps ORAS errors to store and package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", store.ErrNotFound, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	return err
}

var _ store.Backend = (*Backend)(nil)
