// Package memory implements an in-process store.Backend.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

type blob struct {
	obj  *store.Object
	data []byte
}

// Backend keeps blobs in memory. The zero value is not usable; use New.
type Backend struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{blobs: make(map[string]blob)}
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, obj *store.Object, body io.ReadSeeker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("memory: read body: %w", err)
	}
	stored := obj.Clone()
	stored.Size = int64(len(data))

	b.mu.Lock()
	b.blobs[obj.Name] = blob{obj: stored, data: data}
	b.mu.Unlock()
	return nil
}

// Stat implements store.Backend.
func (b *Backend) Stat(ctx context.Context, name string) (*store.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bl, ok := b.lookup(name)
	if !ok {
		return nil, fmt.Errorf("memory: %q: %w", name, store.ErrNotFound)
	}
	return bl.obj.Clone(), nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, *store.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	bl, ok := b.lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("memory: %q: %w", name, store.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(bl.data)), bl.obj.Clone(), nil
}

// Names returns the stored blob names in sorted order.
func (b *Backend) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.blobs))
	for name := range b.blobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Corrupt replaces the stored bytes of name without touching its metadata.
// It reports false if no such blob exists.
func (b *Backend) Corrupt(name string, data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bl, ok := b.blobs[name]
	if !ok {
		return false
	}
	bl.data = slices.Clone(data)
	b.blobs[name] = bl
	return true
}

// SetMetadata replaces the stored metadata of name without touching its
// bytes. It reports false if no such blob exists.
func (b *Backend) SetMetadata(name string, md map[string]string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bl, ok := b.blobs[name]
	if !ok {
		return false
	}
	obj := bl.obj.Clone()
	obj.Metadata = md
	bl.obj = obj
	b.blobs[name] = bl
	return true
}

func (b *Backend) lookup(name string) (blob, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bl, ok := b.blobs[name]
	return bl, ok
}

var _ store.Backend = (*Backend)(nil)
