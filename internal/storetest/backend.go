// Package storetest provides an instrumented store.Backend for tests.
package storetest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/syedhassaanahmed/log-storage-service/store"
	"github.com/syedhassaanahmed/log-storage-service/store/memory"
)

// Backend wraps an in-memory backend, counts calls, and injects faults.
type Backend struct {
	*memory.Backend

	mu      sync.Mutex
	putErr  error
	statErr error
	getErr  error
	getGate <-chan struct{}

	puts  atomic.Int64
	stats atomic.Int64
	gets  atomic.Int64
}

// NewBackend returns an empty instrumented backend.
func NewBackend() *Backend {
	return &Backend{Backend: memory.New()}
}

// FailPut makes subsequent Put calls return err. A nil err clears the fault.
func (b *Backend) FailPut(err error) {
	b.mu.Lock()
	b.putErr = err
	b.mu.Unlock()
}

// FailStat makes subsequent Stat calls return err.
func (b *Backend) FailStat(err error) {
	b.mu.Lock()
	b.statErr = err
	b.mu.Unlock()
}

// FailGet makes subsequent Get calls return err.
func (b *Backend) FailGet(err error) {
	b.mu.Lock()
	b.getErr = err
	b.mu.Unlock()
}

// Puts returns the number of Put calls.
func (b *Backend) Puts() int64 { return b.puts.Load() }

// Stats returns the number of Stat calls.
func (b *Backend) Stats() int64 { return b.stats.Load() }

// Gets returns the number of Get calls.
func (b *Backend) Gets() int64 { return b.gets.Load() }

// Calls returns the total number of backend calls.
func (b *Backend) Calls() int64 { return b.Puts() + b.Stats() + b.Gets() }

// ResetCounts zeroes the call counters.
func (b *Backend) ResetCounts() {
	b.puts.Store(0)
	b.stats.Store(0)
	b.gets.Store(0)
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, obj *store.Object, body io.ReadSeeker) error {
	b.puts.Add(1)
	if err := b.fault(&b.putErr); err != nil {
		return err
	}
	return b.Backend.Put(ctx, obj, body)
}

// Stat implements store.Backend.
func (b *Backend) Stat(ctx context.Context, name string) (*store.Object, error) {
	b.stats.Add(1)
	if err := b.fault(&b.statErr); err != nil {
		return nil, err
	}
	return b.Backend.Stat(ctx, name)
}

// HoldGet makes subsequent Get calls block until release is closed or
// their context ends. A nil release clears the hold.
func (b *Backend) HoldGet(release <-chan struct{}) {
	b.mu.Lock()
	b.getGate = release
	b.mu.Unlock()
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, name string) (io.ReadCloser, *store.Object, error) {
	b.gets.Add(1)
	b.mu.Lock()
	gate := b.getGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if err := b.fault(&b.getErr); err != nil {
		return nil, nil, err
	}
	return b.Backend.Get(ctx, name)
}

func (b *Backend) fault(slot *error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *slot
}

var _ store.Backend = (*Backend)(nil)
