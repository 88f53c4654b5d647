package natsstore

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/alekseev-bro/sagas/internal/driver/kv/kvnats"
	"github.com/alekseev-bro/sagas/pkg/store"
)

const defaultBucket = "sagas"

// New returns a saga store backed by a JetStream key/value bucket, creating
// the bucket when needed.
func New(ctx context.Context, js jetstream.JetStream, opts ...Option) (*store.SagaStore, error) {
	cfg := &options{bucket: defaultBucket}
	for _, opt := range opts {
		opt(cfg)
	}
	b, err := kvnats.NewBucket(ctx, js, cfg.bucket, cfg.kv)
	if err != nil {
		return nil, err
	}
	return store.New(b, cfg.storeOpts...), nil
}
