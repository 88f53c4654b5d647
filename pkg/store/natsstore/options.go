package natsstore

import (
	"github.com/alekseev-bro/sagas/internal/driver/kv/kvnats"
	"github.com/alekseev-bro/sagas/pkg/codec"
	"github.com/alekseev-bro/sagas/pkg/store"
)

type options struct {
	bucket    string
	kv        kvnats.Config
	storeOpts []store.Option
}

type Option func(*options)

func WithBucket(name string) Option {
	return func(o *options) {
		o.bucket = name
	}
}

func WithInMemory() Option {
	return func(o *options) {
		o.kv.StoreType = kvnats.Memory
	}
}

func WithReplicas(n int) Option {
	return func(o *options) {
		o.kv.Replicas = n
	}
}

func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, store.WithCodec(c))
	}
}
