package saga

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/alekseev-bro/sagas/pkg/qos"
	"github.com/alekseev-bro/sagas/pkg/retry"
)

const instrumentationName = "github.com/alekseev-bro/sagas/pkg/saga"

// Dispatcher runs the per-event saga pipeline: locate, then the retried
// load, invoke and persist sequence, then command publication.
type Dispatcher struct {
	registry *Registry
	store    Store
	bus      CommandBus
	errors   ErrorHandler
	policy   retry.Policy
	observer Observer
	tracer   trace.Tracer
	ordering qos.Ordering
}

type DispatcherOption func(*Dispatcher)

func WithErrorHandler(h ErrorHandler) DispatcherOption {
	return func(d *Dispatcher) {
		d.errors = h
	}
}

// WithRetryPolicy sets the policy for concurrency conflicts. A policy without
// a Retryable predicate retries only ErrConcurrencyConflict.
func WithRetryPolicy(p retry.Policy) DispatcherOption {
	return func(d *Dispatcher) {
		d.policy = p
	}
}

func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// WithOrdering with qos.Unordered runs the sagas of one event concurrently.
// Events of a batch are always dispatched in order.
func WithOrdering(o qos.Ordering) DispatcherOption {
	return func(d *Dispatcher) {
		d.ordering = o
	}
}

// NewDispatcher seals reg and returns a dispatcher over its sagas.
func NewDispatcher(reg *Registry, store Store, bus CommandBus, opts ...DispatcherOption) *Dispatcher {
	reg.Seal()
	d := &Dispatcher{
		registry: reg,
		store:    store,
		bus:      bus,
		errors:   unhandled{},
		policy:   retry.Default(),
		observer: nopObserver{},
		tracer:   otel.Tracer(instrumentationName),
		ordering: qos.Ordered,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.policy.Retryable == nil {
		d.policy.Retryable = isConflict
	}
	return d
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// Dispatch processes events in order. It stops at the first failure not
// handled by the error handler and returns it.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...*Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.DispatchEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// DispatchEvent runs every saga interested in ev.
func (d *Dispatcher) DispatchEvent(ctx context.Context, ev *Event) error {
	defs := d.registry.definitionsFor(ev.Kind)
	if len(defs) == 0 {
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "saga.dispatch", trace.WithAttributes(
		attribute.String("saga.event.kind", ev.Kind),
		attribute.String("saga.event.id", ev.ID.String()),
		attribute.String("saga.aggregate.kind", ev.AggregateKind),
		attribute.Int("saga.definitions", len(defs)),
	))
	defer span.End()

	var err error
	if d.ordering == qos.Unordered && len(defs) > 1 {
		err = d.dispatchConcurrent(ctx, ev, defs)
	} else {
		err = d.dispatchOrdered(ctx, ev, defs)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Dispatcher) dispatchOrdered(ctx context.Context, ev *Event, defs []*Definition) error {
	for _, def := range defs {
		if err := d.process(ctx, ev, def); err != nil {
			return err
		}
	}
	return nil
}

// dispatchConcurrent lets every saga run to completion even when a sibling
// fails, so a persisted instance always reaches publication.
func (d *Dispatcher) dispatchConcurrent(ctx context.Context, ev *Event, defs []*Definition) error {
	var g errgroup.Group
	for _, def := range defs {
		g.Go(func() error {
			return d.process(ctx, ev, def)
		})
	}
	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// process runs one saga definition for ev and consults the error handler on
// failure. Cancellation is returned as is.
func (d *Dispatcher) process(ctx context.Context, ev *Event, def *Definition) error {
	id, err := d.run(ctx, ev, def)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	d.observe(ctx, Observation{Step: StepFailed, Saga: def.Kind, ID: id, Event: ev, Err: err})
	if d.errors.HandleError(ctx, id, def, err) {
		d.observe(ctx, Observation{Step: StepHandled, Saga: def.Kind, ID: id, Event: ev, Err: err})
		return nil
	}
	return err
}

func (d *Dispatcher) run(ctx context.Context, ev *Event, def *Definition) (ID, error) {
	inv, err := d.registry.Invoker(ev.Type(), def.Kind)
	if err != nil {
		return "", err
	}
	if def.Locator == nil {
		return "", &ResolutionError{Saga: def.Kind, Event: ev.Type(), Reason: "no locator"}
	}
	id, err := def.Locator.Locate(ctx, ev)
	if err != nil {
		return "", err
	}
	if id.IsZero() {
		return "", ErrEmptyID
	}
	d.observe(ctx, Observation{Step: StepLocated, Saga: def.Kind, ID: id, Event: ev})

	label := def.Kind + "/" + id.String()
	inst, err := retry.Do(ctx, d.policy, label, func(ctx context.Context, attempt int) (*Instance, error) {
		return d.cycle(ctx, ev, def, inv, id, attempt)
	})
	if err != nil {
		return id, err
	}
	if inst == nil {
		return id, nil
	}

	cmds := inst.Pending()
	if len(cmds) == 0 {
		return id, nil
	}
	if err := d.bus.Publish(ctx, cmds); err != nil {
		return id, &PublicationError{Saga: def.Kind, ID: id, Commands: len(cmds), Err: err}
	}
	inst.ClearPending()
	d.observe(ctx, Observation{Step: StepPublished, Saga: def.Kind, ID: id, Event: ev, Version: inst.Version, Commands: len(cmds)})
	return id, nil
}

// cycle is one attempt of load, invoke and persist. A nil instance without
// error means the event was skipped.
func (d *Dispatcher) cycle(ctx context.Context, ev *Event, def *Definition, inv Invoker, id ID, attempt int) (*Instance, error) {
	inst, err := d.store.Load(ctx, def, id)
	if err != nil {
		return nil, err
	}
	d.observe(ctx, Observation{Step: StepLoaded, Saga: def.Kind, ID: id, Event: ev, Attempt: attempt, Version: inst.Version})

	res, err := inv.Invoke(ctx, inst, ev)
	if err != nil {
		return nil, err
	}
	if res.Outcome == Skipped {
		d.observe(ctx, Observation{Step: StepSkipped, Saga: def.Kind, ID: id, Event: ev, Attempt: attempt, Version: inst.Version, Skip: res.Skip})
		return nil, nil
	}
	d.observe(ctx, Observation{Step: StepInvoked, Saga: def.Kind, ID: id, Event: ev, Attempt: attempt, Commands: len(inst.pending)})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, inst, ev.ID); err != nil {
		if isConflict(err) {
			d.observe(ctx, Observation{Step: StepConflict, Saga: def.Kind, ID: id, Event: ev, Attempt: attempt, Version: inst.Version, Err: err})
		}
		return nil, err
	}
	d.observe(ctx, Observation{Step: StepPersisted, Saga: def.Kind, ID: id, Event: ev, Attempt: attempt, Version: inst.Version, Commands: len(inst.pending)})
	return inst, nil
}

func (d *Dispatcher) observe(ctx context.Context, o Observation) {
	d.observer.Observe(ctx, o)
}
