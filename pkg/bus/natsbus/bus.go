package natsbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/synadia-io/orbit.go/jetstreamext"

	"github.com/alekseev-bro/sagas/pkg/saga"
)

const (
	defaultStream        = "commands"
	defaultDeduplication = time.Minute * 2

	// HeaderKind carries the command kind.
	HeaderKind = "Saga-Command-Kind"
	// HeaderAggregateKind carries the target aggregate kind.
	HeaderAggregateKind = "Saga-Aggregate-Kind"
)

type StoreType jetstream.StorageType

const (
	Disk StoreType = iota
	Memory
)

// Bus publishes saga commands into a JetStream stream. Each command is
// written to <stream>.<aggregate kind>.<aggregate id>.<kind> with its ID as
// Nats-Msg-Id, so republished commands are dropped by the server.
type Bus struct {
	js   jetstream.JetStream
	name string
	cfg  config
}

func New(ctx context.Context, js jetstream.JetStream, opts ...Option) (*Bus, error) {
	cfg := config{stream: defaultStream, dedupe: defaultDeduplication, ackTimeout: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &Bus{js: js, name: cfg.stream, cfg: cfg}
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:               b.name,
		Subjects:           []string{b.allSubjects()},
		Storage:            jetstream.StorageType(cfg.storeType),
		Duplicates:         cfg.dedupe,
		AllowDirect:        true,
		AllowAtomicPublish: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create command stream %s: %w", b.name, err)
	}
	return b, nil
}

func (b *Bus) allSubjects() string {
	return fmt.Sprintf("%s.>", b.name)
}

// Subject is the subject a command is published on.
func (b *Bus) Subject(cmd saga.Command) string {
	return fmt.Sprintf("%s.%s.%s.%s", b.name, cmd.AggregateKind, cmd.AggregateID, cmd.Kind)
}

func (b *Bus) message(cmd saga.Command) *nats.Msg {
	msg := nats.NewMsg(b.Subject(cmd))
	msg.Data = cmd.Payload
	msg.Header.Set(jetstream.MsgIDHeader, cmd.ID.String())
	msg.Header.Set(HeaderKind, cmd.Kind)
	msg.Header.Set(HeaderAggregateKind, cmd.AggregateKind)
	return msg
}

// Publish writes cmds in order. Several commands go out as one atomic batch.
func (b *Bus) Publish(ctx context.Context, cmds []saga.Command) error {
	if len(cmds) == 0 {
		return nil
	}
	for _, cmd := range cmds {
		if !validToken(cmd.AggregateKind) || !validToken(cmd.AggregateID) || !validToken(cmd.Kind) {
			return fmt.Errorf("publish command %s: invalid subject %q", cmd.ID, b.Subject(cmd))
		}
	}
	msgs := make([]*nats.Msg, len(cmds))
	for i, cmd := range cmds {
		msgs[i] = b.message(cmd)
	}

	if len(msgs) == 1 {
		ack, err := b.js.PublishMsg(ctx, msgs[0])
		if err != nil {
			return fmt.Errorf("publish command: %w", err)
		}
		if ack.Duplicate {
			slog.Warn("duplicate command not stored", "kind", cmds[0].Kind, "id", cmds[0].ID, "stream", b.name)
			return nil
		}
		slog.Info("command published", "kind", cmds[0].Kind, "subject", msgs[0].Subject, "stream", b.name)
		return nil
	}

	_, err := jetstreamext.PublishMsgBatch(ctx, b.js, msgs, jetstreamext.BatchFlowControl{AckEvery: 1, AckTimeout: b.cfg.ackTimeout})
	if err != nil {
		var apiErr *jetstream.APIError
		if errors.As(err, &apiErr) {
			slog.Warn("command batch rejected", "code", apiErr.ErrorCode, "stream", b.name)
		}
		return fmt.Errorf("publish %d commands: %w", len(msgs), err)
	}
	for _, msg := range msgs {
		slog.Info("command published", "kind", msg.Header.Get(HeaderKind), "subject", msg.Subject, "stream", b.name)
	}
	return nil
}

func validToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ". *>\t\r\n")
}
