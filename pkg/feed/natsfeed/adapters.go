package natsfeed

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/alekseev-bro/sagas/pkg/saga"
)

type natsMessage interface {
	Headers() nats.Header
	Data() []byte
	Subject() string
	Seq() (uint64, error)
	Timestamp() (time.Time, error)
}

type jsRawMsgAdapter struct {
	*jetstream.RawStreamMsg
}

func (j jsRawMsgAdapter) Headers() nats.Header {
	return j.RawStreamMsg.Header
}

func (j jsRawMsgAdapter) Timestamp() (time.Time, error) {
	return j.RawStreamMsg.Time, nil
}

func (j jsRawMsgAdapter) Data() []byte {
	return j.RawStreamMsg.Data
}

func (j jsRawMsgAdapter) Subject() string {
	return j.RawStreamMsg.Subject
}

func (j jsRawMsgAdapter) Seq() (uint64, error) {
	return j.RawStreamMsg.Sequence, nil
}

type natsJSMsgAdapter struct {
	jetstream.Msg
}

func (n natsJSMsgAdapter) Timestamp() (time.Time, error) {
	mt, err := n.Msg.Metadata()
	if err != nil {
		return time.Time{}, err
	}
	return mt.Timestamp, nil
}

func (n natsJSMsgAdapter) Seq() (uint64, error) {
	mt, err := n.Msg.Metadata()
	if err != nil {
		return 0, err
	}
	return mt.Sequence.Stream, nil
}

// eventFromMsg decodes a message published on <stream>.<aggregate id>.<kind>
// with the event ID in Nats-Msg-Id.
func (f *Feed) eventFromMsg(msg natsMessage) (*saga.Event, error) {
	id, err := uuid.Parse(msg.Headers().Get(jetstream.MsgIDHeader))
	if err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	parts := strings.Split(strings.TrimPrefix(msg.Subject(), f.stream+"."), ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("unexpected subject %q", msg.Subject())
	}
	seq, err := msg.Seq()
	if err != nil {
		return nil, fmt.Errorf("sequence: %w", err)
	}
	ts, err := msg.Timestamp()
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	return &saga.Event{
		ID:            id,
		Kind:          parts[1],
		AggregateKind: f.cfg.aggregateKind,
		IDKind:        f.cfg.idKind,
		AggregateID:   parts[0],
		Sequence:      seq,
		Timestamp:     ts,
		Payload:       msg.Data(),
	}, nil
}
