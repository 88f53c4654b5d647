// Package natsfeed reads domain events from a JetStream stream and hands them
// to a saga dispatcher.
package natsfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/synadia-io/orbit.go/jetstreamext"

	"github.com/alekseev-bro/sagas/pkg/qos"
	"github.com/alekseev-bro/sagas/pkg/saga"
)

const maxAckPending = 1000

// Dispatcher is the part of saga.Dispatcher the feed needs.
type Dispatcher interface {
	DispatchEvent(ctx context.Context, ev *saga.Event) error
}

// Feed consumes one event stream laid out as <stream>.<aggregate id>.<kind>.
type Feed struct {
	js     jetstream.JetStream
	stream string
	d      Dispatcher
	cfg    config
}

func New(js jetstream.JetStream, stream string, d Dispatcher, opts ...Option) *Feed {
	cfg := config{
		aggregateKind: stream,
		idKind:        defaultIDKind,
		durable:       "sagas-" + stream,
		batch:         defaultBatch,
		maxWait:       defaultMaxWait,
		ordering:      qos.Ordered,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Feed{js: js, stream: stream, d: d, cfg: cfg}
}

func (f *Feed) filter() []string {
	if len(f.cfg.kinds) == 0 {
		return []string{fmt.Sprintf("%s.*.*", f.stream)}
	}
	filter := make([]string, len(f.cfg.kinds))
	for i, kind := range f.cfg.kinds {
		filter[i] = fmt.Sprintf("%s.*.%s", f.stream, kind)
	}
	return filter
}

func (f *Feed) consumer(ctx context.Context) (jetstream.Consumer, error) {
	maxpend := maxAckPending
	if f.cfg.ordering == qos.Ordered {
		maxpend = f.cfg.batch
	}
	cons, err := f.js.CreateOrUpdateConsumer(ctx, f.stream, jetstream.ConsumerConfig{
		Durable:        f.cfg.durable,
		FilterSubjects: f.filter(),
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		AckPolicy:      jetstream.AckExplicitPolicy,
		MaxAckPending:  maxpend,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", f.cfg.durable, err)
	}
	return cons, nil
}

// Run fetches event batches until ctx is done. Every event is acked after it
// was dispatched. On the first failure the event and the rest of its batch
// are NAKed for redelivery so later events never overtake it.
func (f *Feed) Run(ctx context.Context) error {
	cons, err := f.consumer(ctx)
	if err != nil {
		return err
	}
	slog.Info("feed started", "stream", f.stream, "durable", f.cfg.durable)
	for {
		if ctx.Err() != nil {
			return nil
		}
		batch, err := cons.Fetch(f.cfg.batch, jetstream.FetchMaxWait(f.cfg.maxWait))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("feed fetch", "error", err, "stream", f.stream)
			continue
		}
		f.handleBatch(ctx, batch)
		if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) && !errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("feed batch", "error", err, "stream", f.stream)
		}
	}
}

func (f *Feed) handleBatch(ctx context.Context, batch jetstream.MessageBatch) {
	failed := false
	for msg := range batch.Messages() {
		if failed {
			msg.Nak()
			continue
		}
		ev, err := f.eventFromMsg(natsJSMsgAdapter{msg})
		if err != nil {
			slog.Error("feed malformed event", "error", err, "subject", msg.Subject())
			msg.Term()
			continue
		}
		if err := f.d.DispatchEvent(ctx, ev); err != nil {
			slog.Warn("redelivering", "error", err, "event", ev.ID, "kind", ev.Kind)
			msg.Nak()
			failed = true
			continue
		}
		msg.Ack()
	}
}

// Replay dispatches the stored events of one aggregate starting at stream
// sequence fromSeq. Saga skip rules make already applied events no-ops.
func (f *Feed) Replay(ctx context.Context, aggregateID string, fromSeq uint64) (int, error) {
	msgs, err := jetstreamext.GetBatch(ctx,
		f.js, f.stream, math.MaxInt, jetstreamext.GetBatchSubject(fmt.Sprintf("%s.%s.*", f.stream, aggregateID)),
		jetstreamext.GetBatchSeq(max(fromSeq, 1)))
	if err != nil {
		return 0, fmt.Errorf("replay %s: %w", aggregateID, err)
	}
	n := 0
	for msg, err := range msgs {
		if err != nil {
			if errors.Is(err, jetstreamext.ErrNoMessages) {
				return n, nil
			}
			return n, fmt.Errorf("replay %s: %w", aggregateID, err)
		}
		ev, err := f.eventFromMsg(jsRawMsgAdapter{msg})
		if err != nil {
			return n, fmt.Errorf("replay %s: %w", aggregateID, err)
		}
		if err := f.d.DispatchEvent(ctx, ev); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
