// Command sagad runs the order fulfillment saga against NATS event streams.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/alekseev-bro/sagas/internal/config"
	"github.com/alekseev-bro/sagas/internal/fulfillment"
	"github.com/alekseev-bro/sagas/pkg/bus/natsbus"
	"github.com/alekseev-bro/sagas/pkg/feed/natsfeed"
	"github.com/alekseev-bro/sagas/pkg/observe"
	"github.com/alekseev-bro/sagas/pkg/saga"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("sagad stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("sagad"))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	st, closeStore, err := openStore(ctx, cfg, js)
	if err != nil {
		return err
	}
	defer closeStore()

	busOpts := []natsbus.Option{natsbus.WithStream(cfg.CommandStream)}
	if cfg.InMemory {
		busOpts = append(busOpts, natsbus.WithInMemory())
	}
	bus, err := natsbus.New(ctx, js, busOpts...)
	if err != nil {
		return err
	}

	reg := saga.NewRegistry()
	if err := reg.Add(fulfillment.New().Definition()); err != nil {
		return err
	}
	d := saga.NewDispatcher(reg, st, bus,
		saga.WithRetryPolicy(cfg.RetryPolicy()),
		saga.WithOrdering(cfg.Ordering()),
		saga.WithObserver(observe.Multi(observe.Log(slog.Default()), observe.Trace())),
		saga.WithErrorHandler(saga.ErrorHandlerFunc(dropLogicErrors)),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, stream := range cfg.EventStreams {
		f := natsfeed.New(js, stream, d,
			natsfeed.WithAggregate(stream, "uuid"),
			natsfeed.WithDurable(cfg.Durable+"-"+stream),
			natsfeed.WithBatch(cfg.Batch, 0),
			natsfeed.WithOrdering(cfg.Ordering()),
		)
		g.Go(func() error {
			return f.Run(gctx)
		})
	}
	slog.Info("sagad running", "streams", cfg.EventStreams, "store", cfg.Backend)
	return g.Wait()
}

// dropLogicErrors acknowledges events whose saga logic rejected them, since
// redelivery would fail the same way. Everything else is redelivered.
func dropLogicErrors(_ context.Context, id saga.ID, def *saga.Definition, err error) bool {
	var le *saga.LogicError
	if errors.As(err, &le) {
		slog.Error("saga logic rejected event", "saga", def.Kind, "id", id, "error", err)
		return true
	}
	return false
}
