package kvnats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/alekseev-bro/sagas/pkg/store"
)

type StoreType jetstream.StorageType

const (
	Disk StoreType = iota
	Memory
)

type Config struct {
	StoreType StoreType
	Replicas  int
	History   uint8
}

// Bucket stores values in a JetStream key/value bucket and uses the entry
// revision for compare-and-set.
type Bucket struct {
	kv jetstream.KeyValue
}

func NewBucket(ctx context.Context, js jetstream.JetStream, name string, cfg Config) (*Bucket, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   name,
		Storage:  jetstream.StorageType(cfg.StoreType),
		Replicas: cfg.Replicas,
		History:  cfg.History,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	return &Bucket{kv: kv}, nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	e, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, store.ErrNotFound
		}
		return nil, 0, err
	}
	return e.Value(), e.Revision(), nil
}

func (b *Bucket) Put(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	var (
		rev uint64
		err error
	)
	if revision == 0 {
		rev, err = b.kv.Create(ctx, key, value)
	} else {
		rev, err = b.kv.Update(ctx, key, value, revision)
	}
	if err != nil {
		if isWrongSequence(err) {
			return 0, store.ErrRevisionMismatch
		}
		return 0, err
	}
	return rev, nil
}

func isWrongSequence(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
