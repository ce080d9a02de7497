package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/opencontainers/go-digest"
)

const (
	maxMemoryShards  = 64
	defaultMemoryTTL = 10 * time.Minute

	// shardSlack covers bigcache entry headers and the initial queue
	// allocation a shard must grow past before it takes a large entry.
	shardSlack = 1 << 20
)

// Memory is an in-process Cache backed by bigcache.
type Memory struct {
	bc *bigcache.BigCache
}

type memoryConfig struct {
	bc       bigcache.Config
	maxEntry int64
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*memoryConfig)

// WithMaxMegabytes caps the total cache size in megabytes.
// Use 0 to disable the limit.
func WithMaxMegabytes(mb int) MemoryOption {
	return func(c *memoryConfig) {
		c.bc.HardMaxCacheSize = mb
	}
}

// WithTTL sets how long entries stay cached after insertion.
func WithTTL(d time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		c.bc.LifeWindow = d
		c.bc.CleanWindow = d / 2
	}
}

// WithMaxEntrySize sets the largest archive the cache must be able to hold.
// The shard count is lowered until one shard fits an entry of n bytes.
func WithMaxEntrySize(n int64) MemoryOption {
	return func(c *memoryConfig) {
		c.maxEntry = n
	}
}

// MemoryShards returns the shard count for a cache capped at maxMegabytes
// that must hold entries of up to maxEntry bytes. bigcache splits the cap
// evenly across shards and rejects entries larger than one shard, so the
// count is halved from 64 until a shard fits maxEntry. It fails when even
// a single shard is too small. A zero cap or entry size keeps 64 shards.
func MemoryShards(maxMegabytes int, maxEntry int64) (int, error) {
	if maxMegabytes <= 0 || maxEntry <= 0 {
		return maxMemoryShards, nil
	}
	total := int64(maxMegabytes) << 20
	need := maxEntry + shardSlack
	for shards := maxMemoryShards; shards >= 1; shards /= 2 {
		if total/int64(shards) >= need {
			return shards, nil
		}
	}
	return 0, fmt.Errorf("cache: %d MB cannot hold a %d byte archive; need at least %d MB",
		maxMegabytes, maxEntry, (need+(1<<20)-1)>>20)
}

// NewMemory creates an in-process cache. Stop the cache with Close.
func NewMemory(ctx context.Context, opts ...MemoryOption) (*Memory, error) {
	cfg := memoryConfig{bc: bigcache.DefaultConfig(defaultMemoryTTL)}
	cfg.bc.CleanWindow = defaultMemoryTTL / 2
	cfg.bc.Verbose = false
	// Archives are few and large: start shards small and let them grow.
	cfg.bc.MaxEntriesInWindow = 1024
	cfg.bc.MaxEntrySize = 4 << 10
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bc.HardMaxCacheSize < 0 {
		return nil, errors.New("cache: max megabytes must be >= 0")
	}
	shards, err := MemoryShards(cfg.bc.HardMaxCacheSize, cfg.maxEntry)
	if err != nil {
		return nil, err
	}
	cfg.bc.Shards = shards

	bc, err := bigcache.New(ctx, cfg.bc)
	if err != nil {
		return nil, fmt.Errorf("cache: create memory cache: %w", err)
	}
	return &Memory{bc: bc}, nil
}

// Get implements Cache.
func (m *Memory) Get(d digest.Digest) ([]byte, bool) {
	key, err := Key(d)
	if err != nil {
		return nil, false
	}
	content, err := m.bc.Get(key)
	if err != nil {
		return nil, false
	}
	return content, true
}

// Put implements Cache.
func (m *Memory) Put(d digest.Digest, content []byte) error {
	key, err := Key(d)
	if err != nil {
		return err
	}
	return m.bc.Set(key, content)
}

// Delete implements Cache.
func (m *Memory) Delete(d digest.Digest) error {
	key, err := Key(d)
	if err != nil {
		return err
	}
	if err := m.bc.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	return m.bc.Len()
}

// Close stops background cleanup and releases cached memory.
func (m *Memory) Close() error {
	return m.bc.Close()
}

var _ Cache = (*Memory)(nil)
