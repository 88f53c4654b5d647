package kvmem

import (
	"context"
	"slices"
	"sync"

	"github.com/alekseev-bro/sagas/pkg/store"
)

type entry struct {
	value    []byte
	revision uint64
}

// Bucket is an in-process revisioned map. Revisions count writes per key
// starting at one.
type Bucket struct {
	mu      sync.RWMutex
	entries map[string]entry
	puts    int
}

func New() *Bucket {
	return &Bucket{entries: make(map[string]entry)}
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, 0, store.ErrNotFound
	}
	return slices.Clone(e.value), e.revision, nil
}

func (b *Bucket) Put(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur := b.entries[key].revision; cur != revision {
		return 0, store.ErrRevisionMismatch
	}
	next := revision + 1
	b.entries[key] = entry{value: slices.Clone(value), revision: next}
	b.puts++
	return next, nil
}

// Puts is the number of successful writes.
func (b *Bucket) Puts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.puts
}
