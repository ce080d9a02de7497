// Package disk implements a store.Backend on the local filesystem.
//
// Each blob is kept as two files in one directory: a content-addressed data
// file "<name>.<sha256>.data" and a descriptor "<name>.meta.json" naming it.
// A Put writes the data file first and then atomically renames the
// descriptor into place, so readers see either the old or the new pair.
package disk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

const (
	metaSuffix      = ".meta.json"
	dataSuffix      = ".data"
	tempPrefix      = ".tmp-"
	defaultDirPerm  = 0o750
	defaultFilePerm = 0o640
)

// descriptor is the on-disk form of a blob's attributes.
type descriptor struct {
	ContentType string            `json:"contentType"`
	Size        int64             `json:"size"`
	Digest      digest.Digest     `json:"digest"`
	Metadata    map[string]string `json:"metadata"`
}

// Backend stores blobs under a root directory.
//
// Writes are serialized within one Backend. Separate processes sharing a
// directory must not write the same name concurrently.
type Backend struct {
	root   *os.Root
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
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

// New opens a backend rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Backend, error) {
	if dir == "" {
		return nil, errors.New("disk: directory is empty")
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("disk: create directory: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("disk: open root: %w", err)
	}
	b := &Backend{root: root, dir: dir}
	for _, opt := range opts {
		opt(b)
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

// Close releases the root directory handle.
func (b *Backend) Close() error {
	return b.root.Close()
}

// Dir returns the root directory.
func (b *Backend) Dir() string {
	return b.dir
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, obj *store.Object, body io.ReadSeeker) error {
	if err := checkName(obj.Name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Data first, under a temporary name, hashing as we go.
	digester := digest.SHA256.Digester()
	tmpData, size, err := b.writeTemp(io.TeeReader(body, digester.Hash()))
	if err != nil {
		return fmt.Errorf("disk: write data: %w", err)
	}
	sum := digester.Digest()
	dataName := dataFile(obj.Name, sum)
	if err := b.root.Rename(tmpData, dataName); err != nil {
		_ = b.root.Remove(tmpData)
		return fmt.Errorf("disk: commit data: %w", err)
	}

	previous, _ := b.readDescriptor(obj.Name)

	meta, err := json.Marshal(descriptor{
		ContentType: obj.ContentType,
		Size:        size,
		Digest:      sum,
		Metadata:    obj.Metadata,
	})
	if err != nil {
		return fmt.Errorf("disk: encode descriptor: %w", err)
	}
	tmpMeta, _, err := b.writeTemp(bytes.NewReader(meta))
	if err != nil {
		return fmt.Errorf("disk: write descriptor: %w", err)
	}
	if err := b.root.Rename(tmpMeta, obj.Name+metaSuffix); err != nil {
		_ = b.root.Remove(tmpMeta)
		return fmt.Errorf("disk: commit descriptor: %w", err)
	}

	// Readers holding the old descriptor may still need its data file for a
	// moment; they retry once on a miss.
	if previous != nil && previous.Digest != sum {
		if err := b.root.Remove(dataFile(obj.Name, previous.Digest)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.log().Warn("remove superseded data file", "name", obj.Name, "error", err)
		}
	}
	b.log().Debug("blob written", "name", obj.Name, "bytes", size, "digest", sum.String())
	return nil
}

// Stat implements store.Backend.
func (b *Backend) Stat(ctx context.Context, name string) (*store.Object, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := b.readDescriptor(name)
	if err != nil {
		return nil, err
	}
	return d.object(name), nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, *store.Object, error) {
	if err := checkName(name); err != nil {
		return nil, nil, err
	}
	var lastErr error
	for range 2 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		d, err := b.readDescriptor(name)
		if err != nil {
			return nil, nil, err
		}
		f, err := b.root.Open(dataFile(name, d.Digest))
		if err == nil {
			return f, d.object(name), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("disk: open data: %w", err)
		}
		// Overwritten between reading the descriptor and opening the data.
		lastErr = err
	}
	return nil, nil, fmt.Errorf("disk: %q data file missing: %w: %v", name, store.ErrNotFound, lastErr)
}

func (b *Backend) readDescriptor(name string) (*descriptor, error) {
	data, err := b.root.ReadFile(name + metaSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("disk: %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("disk: read descriptor: %w", err)
	}
	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("disk: decode descriptor %q: %w", name, err)
	}
	if err := d.Digest.Validate(); err != nil {
		return nil, fmt.Errorf("disk: descriptor %q: %w", name, err)
	}
	return &d, nil
}

// writeTemp copies r into a new temporary file and returns its name.
func (b *Backend) writeTemp(r io.Reader) (string, int64, error) {
	name := tempPrefix + uuid.NewString()
	f, err := b.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePerm)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		_ = b.root.Remove(name)
		return "", 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = b.root.Remove(name)
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		_ = b.root.Remove(name)
		return "", 0, err
	}
	return name, n, nil
}

func (d *descriptor) object(name string) *store.Object {
	return &store.Object{
		Name:        name,
		ContentType: d.ContentType,
		Size:        d.Size,
		Metadata:    d.Metadata,
	}
}

func dataFile(name string, sum digest.Digest) string {
	return name + "." + sum.Encoded() + dataSuffix
}

// checkName rejects names that would escape or collide with the layout.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, tempPrefix) {
		return fmt.Errorf("disk: invalid blob name %q", name)
	}
	return nil
}

var _ store.Backend = (*Backend)(nil)
