package saga

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a kind of domain event together with the aggregate
// type and aggregate identity type that produce it.
type EventType struct {
	Kind          string
	AggregateKind string
	IDKind        string
}

func (t EventType) String() string {
	return fmt.Sprintf("%s(%s):%s", t.AggregateKind, t.IDKind, t.Kind)
}

// Event is an immutable domain event as delivered to the dispatcher.
// Payload is opaque to the core and decoded by saga logic.
type Event struct {
	ID            uuid.UUID
	Kind          string
	AggregateKind string
	IDKind        string
	AggregateID   string
	Sequence      uint64
	Timestamp     time.Time
	Payload       []byte
}

func (e *Event) Type() EventType {
	return EventType{Kind: e.Kind, AggregateKind: e.AggregateKind, IDKind: e.IDKind}
}
