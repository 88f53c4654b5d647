package saga

import (
	"context"
	"fmt"

	"github.com/alekseev-bro/sagas/internal/typereg"
	"github.com/alekseev-bro/sagas/pkg/codec"
)

// LocateFunc computes a saga identity from a decoded event.
type LocateFunc[E any] func(ctx context.Context, ev *E) (ID, error)

// HandlerFunc is saga logic for one event type. It reads and mutates
// s.Data and sends commands through s. Returning an error leaves the instance
// untouched.
type HandlerFunc[E any, D any] func(ctx context.Context, s *Scope[D], ev *E) error

// Address names the aggregate a command is sent to.
type Address struct {
	AggregateKind string
	AggregateID   string
}

// Scope is the view saga logic gets of the instance being invoked.
type Scope[D any] struct {
	Data *D

	inst     *Instance
	event    *Event
	codec    codec.Codec
	commands []Command
	done     bool
}

func (s *Scope[D]) ID() ID {
	return s.inst.ID
}

func (s *Scope[D]) Event() *Event {
	return s.event
}

// State is the lifecycle state before this invocation.
func (s *Scope[D]) State() State {
	return s.inst.State
}

// Send queues cmd for the addressed aggregate. The command kind is taken from
// a Kind() method when cmd has one, otherwise from its struct type name. Any
// other value fails with ErrUnknownCommandKind.
func (s *Scope[D]) Send(to Address, cmd any) error {
	kind, err := typereg.TypeNameFrom(cmd)
	if err != nil {
		return fmt.Errorf("send %T: %w", cmd, ErrUnknownCommandKind)
	}
	if kind == "" {
		return ErrUnknownCommandKind
	}
	b, err := s.codec.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	s.commands = append(s.commands, Command{
		Kind:          kind,
		AggregateKind: to.AggregateKind,
		AggregateID:   to.AggregateID,
		Payload:       b,
	})
	return nil
}

// Complete moves the saga to its terminal state once the handler returns.
func (s *Scope[D]) Complete() {
	s.done = true
}

// Saga builds the definition of a saga kind whose data has type D.
type Saga[D any] struct {
	def      *Definition
	codec    codec.Codec
	locators map[EventType]func(ctx context.Context, ev *Event) (ID, error)
}

type Option func(*options)

type options struct {
	codec codec.Codec
}

// WithCodec sets the codec for saga data, event payloads and commands.
// Default is JSON.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// NewSaga starts a saga definition. An empty kind defaults to the name of D.
func NewSaga[D any](kind string, opts ...Option) *Saga[D] {
	o := options{codec: codec.JSON}
	for _, opt := range opts {
		opt(&o)
	}
	if kind == "" {
		kind = typereg.TypeNameFor[D](typereg.WithDelimiter("-"))
	}
	s := &Saga[D]{
		codec:    o.codec,
		locators: make(map[EventType]func(ctx context.Context, ev *Event) (ID, error)),
	}
	s.def = NewDefinition(kind, LocatorFunc(s.locate))
	return s
}

func (s *Saga[D]) Kind() string {
	return s.def.Kind
}

func (s *Saga[D]) Definition() *Definition {
	return s.def
}

func (s *Saga[D]) locate(ctx context.Context, ev *Event) (ID, error) {
	loc, ok := s.locators[ev.Type()]
	if !ok {
		return "", &ResolutionError{Saga: s.def.Kind, Event: ev.Type(), Reason: "no locator for event type"}
	}
	return loc(ctx, ev)
}

type stepOptions struct {
	starts bool
}

type StepOption func(*stepOptions)

// Starts marks the event as able to create a new saga instance.
func Starts() StepOption {
	return func(o *stepOptions) {
		o.starts = true
	}
}

// On binds typed locate and handle functions for an event type. It panics
// once the saga's definition has been added to a registry.
func On[E any, D any](s *Saga[D], et EventType, locate LocateFunc[E], handle HandlerFunc[E, D], opts ...StepOption) {
	s.def.mustBeOpen()
	var o stepOptions
	for _, opt := range opts {
		opt(&o)
	}
	s.locators[et] = func(ctx context.Context, ev *Event) (ID, error) {
		e := new(E)
		if err := s.codec.Unmarshal(ev.Payload, e); err != nil {
			return "", fmt.Errorf("decode %s: %w", ev.Kind, err)
		}
		return locate(ctx, e)
	}
	s.def.Handle(et, &typedInvoker[E, D]{handle: handle, codec: s.codec}, o.starts)
}

type typedInvoker[E any, D any] struct {
	handle HandlerFunc[E, D]
	codec  codec.Codec
}

func (t *typedInvoker[E, D]) Invoke(ctx context.Context, inst *Instance, ev *Event) (Result, error) {
	e := new(E)
	if err := t.codec.Unmarshal(ev.Payload, e); err != nil {
		return Result{Outcome: Failed}, fmt.Errorf("decode %s: %w", ev.Kind, err)
	}
	data := new(D)
	if err := t.codec.Unmarshal(inst.Data, data); err != nil {
		return Result{Outcome: Failed}, fmt.Errorf("decode saga data: %w", err)
	}

	scope := &Scope[D]{Data: data, inst: inst, event: ev, codec: t.codec}
	if err := t.handle(ctx, scope, e); err != nil {
		return Result{Outcome: Failed}, err
	}

	b, err := t.codec.Marshal(data)
	if err != nil {
		return Result{Outcome: Failed}, fmt.Errorf("encode saga data: %w", err)
	}
	inst.Data = b
	inst.Enqueue(scope.commands...)
	if scope.done {
		inst.State = Completed
	}
	return Result{Outcome: Applied}, nil
}
