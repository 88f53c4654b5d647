package kvredis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alekseev-bro/sagas/pkg/store"
)

const (
	fieldRevision = "rev"
	fieldData     = "data"
)

// Bucket keeps each value in a Redis hash next to its revision and guards
// writes with WATCH/MULTI.
type Bucket struct {
	rc     redis.UniversalClient
	prefix string
}

func NewBucket(rc redis.UniversalClient, prefix string) *Bucket {
	return &Bucket{rc: rc, prefix: prefix}
}

func (b *Bucket) key(k string) string {
	return b.prefix + k
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	vals, err := b.rc.HGetAll(ctx, b.key(key)).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(vals) == 0 {
		return nil, 0, store.ErrNotFound
	}
	rev, err := strconv.ParseUint(vals[fieldRevision], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("parse revision of %s: %w", key, err)
	}
	return []byte(vals[fieldData]), rev, nil
}

func (b *Bucket) Put(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	k := b.key(key)
	var next uint64
	err := b.rc.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, k, fieldRevision).Uint64()
		switch {
		case errors.Is(err, redis.Nil):
			cur = 0
		case err != nil:
			return err
		}
		if cur != revision {
			return store.ErrRevisionMismatch
		}
		next = cur + 1
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, k, fieldRevision, next, fieldData, value)
			return nil
		})
		return err
	}, k)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return 0, store.ErrRevisionMismatch
		}
		return 0, err
	}
	return next, nil
}
