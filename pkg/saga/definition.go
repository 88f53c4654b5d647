package saga

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
)

// Locator computes the identity of the saga instance an event targets.
type Locator interface {
	Locate(ctx context.Context, ev *Event) (ID, error)
}

type LocatorFunc func(ctx context.Context, ev *Event) (ID, error)

func (f LocatorFunc) Locate(ctx context.Context, ev *Event) (ID, error) {
	return f(ctx, ev)
}

type binding struct {
	event   EventType
	invoker Invoker
	starts  bool
}

// Definition is the static description of a saga kind: its locator, the
// events it handles and which of them may start a new instance.
type Definition struct {
	Kind    string
	Locator Locator

	bindings   []binding
	starting   map[string]struct{}
	registered atomic.Bool
}

func NewDefinition(kind string, loc Locator) *Definition {
	return &Definition{Kind: kind, Locator: loc, starting: make(map[string]struct{})}
}

// Handle binds an invoker for the event type. When starts is true the event
// kind may create a new instance. Handle panics once the definition has been
// added to a registry.
func (d *Definition) Handle(et EventType, inv Invoker, starts bool) *Definition {
	d.mustBeOpen()
	d.bindings = append(d.bindings, binding{event: et, invoker: inv, starts: starts})
	if starts {
		d.starting[et.Kind] = struct{}{}
	}
	return d
}

// IsStarting reports whether kind may create a new instance of this saga.
func (d *Definition) IsStarting(kind string) bool {
	_, ok := d.starting[kind]
	return ok
}

func (d *Definition) StartingEvents() []string {
	kinds := make([]string, 0, len(d.starting))
	for k := range d.starting {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (d *Definition) Events() []EventType {
	out := make([]EventType, len(d.bindings))
	for i, b := range d.bindings {
		out[i] = b.event
	}
	return out
}

func (d *Definition) mustBeOpen() {
	if d.registered.Load() {
		panic(fmt.Sprintf("saga: definition %q is already registered", d.Kind))
	}
}
