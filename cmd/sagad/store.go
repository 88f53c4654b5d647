package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/alekseev-bro/sagas/internal/config"
	"github.com/alekseev-bro/sagas/pkg/saga"
	"github.com/alekseev-bro/sagas/pkg/store/memstore"
	"github.com/alekseev-bro/sagas/pkg/store/natsstore"
	"github.com/alekseev-bro/sagas/pkg/store/redisstore"
)

func openStore(ctx context.Context, cfg config.Config, js jetstream.JetStream) (saga.Store, func(), error) {
	nop := func() {}
	switch cfg.Backend {
	case config.BackendMemory:
		return memstore.New(), nop, nil
	case config.BackendRedis:
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rc.Ping(ctx).Err(); err != nil {
			rc.Close()
			return nil, nop, fmt.Errorf("connect redis: %w", err)
		}
		return redisstore.New(rc), func() { rc.Close() }, nil
	default:
		opts := []natsstore.Option{natsstore.WithBucket(cfg.Bucket)}
		if cfg.InMemory {
			opts = append(opts, natsstore.WithInMemory())
		}
		st, err := natsstore.New(ctx, js, opts...)
		if err != nil {
			return nil, nop, err
		}
		return st, nop, nil
	}
}
