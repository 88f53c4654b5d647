package redisstore

import (
	"github.com/redis/go-redis/v9"

	"github.com/alekseev-bro/sagas/internal/driver/kv/kvredis"
	"github.com/alekseev-bro/sagas/pkg/codec"
	"github.com/alekseev-bro/sagas/pkg/store"
)

const defaultPrefix = "saga:"

type options struct {
	prefix    string
	storeOpts []store.Option
}

type option func(*options)

// WithPrefix sets the prefix of every Redis key. Default is "saga:".
func WithPrefix(p string) option {
	return func(o *options) {
		o.prefix = p
	}
}

func WithCodec(c codec.Codec) option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, store.WithCodec(c))
	}
}

// New returns a saga store backed by Redis hashes.
func New(rc redis.UniversalClient, opts ...option) *store.SagaStore {
	cfg := &options{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(cfg)
	}
	return store.New(kvredis.NewBucket(rc, cfg.prefix), cfg.storeOpts...)
}
