package saga

import (
	"fmt"
	"log/slog"
	"slices"
)

type invokerKey struct {
	aggregateKind string
	idKind        string
	eventKind     string
	sagaKind      string
}

func keyFor(et EventType, sagaKind string) invokerKey {
	return invokerKey{
		aggregateKind: et.AggregateKind,
		idKind:        et.IDKind,
		eventKind:     et.Kind,
		sagaKind:      sagaKind,
	}
}

// Registry maps event kinds to the sagas interested in them and holds the
// dispatch table of invokers keyed by (aggregate kind, id kind, event kind,
// saga kind). It is filled at startup and read without locking once sealed.
type Registry struct {
	sealed   bool
	kinds    map[string]*Definition
	byEvent  map[string][]*Definition
	invokers map[invokerKey]Invoker
}

func NewRegistry() *Registry {
	return &Registry{
		kinds:    make(map[string]*Definition),
		byEvent:  make(map[string][]*Definition),
		invokers: make(map[invokerKey]Invoker),
	}
}

// Add registers saga definitions. Definitions are returned by
// DefinitionsFor in the order they were added.
func (r *Registry) Add(defs ...*Definition) error {
	if r.sealed {
		return ErrRegistrySealed
	}
	for _, def := range defs {
		if err := r.add(def); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(def *Definition) error {
	if def == nil || def.Kind == "" {
		return fmt.Errorf("registry: saga definition without kind")
	}
	if _, ok := r.kinds[def.Kind]; ok {
		return fmt.Errorf("registry: saga %q is already registered", def.Kind)
	}
	if len(def.bindings) == 0 {
		return fmt.Errorf("registry: saga %q handles no events", def.Kind)
	}
	if len(def.starting) == 0 {
		return fmt.Errorf("registry: saga %q has no starting event", def.Kind)
	}

	keys := make(map[invokerKey]struct{}, len(def.bindings))
	for _, b := range def.bindings {
		if b.invoker == nil {
			return fmt.Errorf("registry: saga %q has no invoker for %s", def.Kind, b.event)
		}
		k := keyFor(b.event, def.Kind)
		if _, ok := keys[k]; ok {
			return fmt.Errorf("registry: saga %q binds %s twice", def.Kind, b.event)
		}
		keys[k] = struct{}{}
	}

	def.registered.Store(true)
	r.kinds[def.Kind] = def
	seen := make(map[string]struct{})
	for _, b := range def.bindings {
		r.invokers[keyFor(b.event, def.Kind)] = &guard{def: def, inner: b.invoker}
		if _, ok := seen[b.event.Kind]; ok {
			continue
		}
		seen[b.event.Kind] = struct{}{}
		r.byEvent[b.event.Kind] = append(r.byEvent[b.event.Kind], def)
	}
	slog.Info("saga registered", "saga", def.Kind, "events", len(def.bindings), "starting", def.StartingEvents())
	return nil
}

// DefinitionsFor returns the sagas interested in the event kind. An unknown
// kind yields an empty result. The slice is the caller's to modify.
func (r *Registry) DefinitionsFor(eventKind string) []*Definition {
	return slices.Clone(r.byEvent[eventKind])
}

func (r *Registry) definitionsFor(eventKind string) []*Definition {
	return r.byEvent[eventKind]
}

func (r *Registry) Definition(sagaKind string) (*Definition, bool) {
	def, ok := r.kinds[sagaKind]
	return def, ok
}

// Invoker resolves the invoker for an event type and saga kind.
func (r *Registry) Invoker(et EventType, sagaKind string) (Invoker, error) {
	inv, ok := r.invokers[keyFor(et, sagaKind)]
	if !ok {
		return nil, &ResolutionError{Saga: sagaKind, Event: et, Reason: "no invoker registered"}
	}
	return inv, nil
}

// Seal forbids further registration.
func (r *Registry) Seal() {
	r.sealed = true
}
