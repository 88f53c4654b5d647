// Package memstore is an in-process saga store for tests and single-node
// setups.
package memstore

import (
	"github.com/alekseev-bro/sagas/internal/driver/kv/kvmem"
	"github.com/alekseev-bro/sagas/pkg/store"
)

type Store struct {
	*store.SagaStore
	bucket *kvmem.Bucket
}

func New(opts ...store.Option) *Store {
	b := kvmem.New()
	return &Store{SagaStore: store.New(b, opts...), bucket: b}
}

// Writes is the number of instances persisted so far.
func (s *Store) Writes() int {
	return s.bucket.Puts()
}
