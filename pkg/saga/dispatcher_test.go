package saga_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alekseev-bro/sagas/pkg/bus/membus"
	"github.com/alekseev-bro/sagas/pkg/qos"
	"github.com/alekseev-bro/sagas/pkg/retry"
	"github.com/alekseev-bro/sagas/pkg/saga"
	"github.com/alekseev-bro/sagas/pkg/store/memstore"
)

func TestDispatchUnregisteredEventIsNoop(t *testing.T) {
	s := counterSaga("counter")
	st := newCountingStore()
	bus := membus.New()
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus)

	other := saga.EventType{Kind: "Unrelated", AggregateKind: "account", IDKind: "string"}
	if err := d.Dispatch(context.Background(), ev(t, other, "a", 1)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if loads, saves := st.counts(); loads != 0 || saves != 0 {
		t.Fatalf("store touched: loads=%d saves=%d", loads, saves)
	}
	if len(bus.Commands()) != 0 {
		t.Fatal("commands published")
	}
}

func TestDispatchStartingEventPersistsThenPublishes(t *testing.T) {
	s := counterSaga("counter")
	st := memstore.New()
	bus := membus.New()
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus)

	e1 := ev(t, startedT, "a", 7)
	if err := d.Dispatch(context.Background(), e1); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	inst, data := load(t, st, s.Definition(), "a")
	if inst.State != saga.InProgress || inst.Version != 1 || data.Count != 1 {
		t.Fatalf("got state=%s version=%d count=%d", inst.State, inst.Version, data.Count)
	}
	if !inst.HasProcessed(e1.ID) {
		t.Fatal("event not recorded as processed")
	}

	cmds := bus.Commands()
	if len(cmds) != 1 || cmds[0].Kind != "Emit" || cmds[0].AggregateKind != "ledger" || cmds[0].AggregateID != "a" {
		t.Fatalf("unexpected commands %+v", cmds)
	}
	if cmds[0].ID == uuid.Nil {
		t.Fatal("command without id")
	}
	var got emit
	if err := json.Unmarshal(cmds[0].Payload, &got); err != nil || got.N != 7 {
		t.Fatalf("payload %s: %v", cmds[0].Payload, err)
	}
}

func TestDispatchNonStartingEventOnNewIsSkipped(t *testing.T) {
	s := counterSaga("counter")
	st := memstore.New()
	bus := membus.New()
	obs := &steps{}
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus, saga.WithObserver(obs))
	ctx := context.Background()

	if err := d.Dispatch(ctx, ev(t, bumpedT, "b", 2)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if st.Writes() != 0 || len(bus.Commands()) != 0 {
		t.Fatal("skipped event was persisted or published")
	}
	if o, ok := obs.last(saga.StepSkipped); !ok || o.Skip != saga.SkipNotStarted {
		t.Fatalf("skip observation = %+v", o)
	}

	if err := d.Dispatch(ctx, ev(t, startedT, "b", 1)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	inst, _ := load(t, st, s.Definition(), "b")
	if inst.State != saga.InProgress || st.Writes() != 1 {
		t.Fatalf("state=%s writes=%d", inst.State, st.Writes())
	}
}

func TestDispatchCompletedSagaIsInert(t *testing.T) {
	s := counterSaga("counter")
	st := memstore.New()
	bus := membus.New()
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus)
	ctx := context.Background()

	start := ev(t, startedT, "c", 1)
	if err := d.Dispatch(ctx, start, ev(t, finishedT, "c", 0)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	inst, _ := load(t, st, s.Definition(), "c")
	if inst.State != saga.Completed {
		t.Fatalf("state = %s", inst.State)
	}
	writes, published := st.Writes(), len(bus.Commands())

	for _, e := range []*saga.Event{start, ev(t, startedT, "c", 1), ev(t, bumpedT, "c", 3), ev(t, brokeT, "c", 0)} {
		if err := d.Dispatch(ctx, e); err != nil {
			t.Fatalf("dispatch %s: %v", e.Kind, err)
		}
	}
	if st.Writes() != writes || len(bus.Commands()) != published {
		t.Fatal("completed saga changed")
	}
	after, _ := load(t, st, s.Definition(), "c")
	if after.State != saga.Completed || after.Version != inst.Version {
		t.Fatalf("completed saga moved to %s@%d", after.State, after.Version)
	}
}

func TestDispatchRedeliveredEventAppliedOnce(t *testing.T) {
	s := counterSaga("counter")
	st := memstore.New()
	bus := membus.New()
	obs := &steps{}
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus, saga.WithObserver(obs))

	bump := ev(t, bumpedT, "r", 2)
	if err := d.Dispatch(context.Background(), ev(t, startedT, "r", 0), bump, bump); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	_, data := load(t, st, s.Definition(), "r")
	if data.Count != 2 {
		t.Fatalf("count = %d, want 2", data.Count)
	}
	if len(bus.Commands()) != 3 {
		t.Fatalf("published %d commands, want 3", len(bus.Commands()))
	}
	if o, ok := obs.last(saga.StepSkipped); !ok || o.Skip != saga.SkipDuplicate {
		t.Fatalf("skip observation = %+v", o)
	}
}

func TestDispatchRetriesConflictWithFreshLoad(t *testing.T) {
	s := counterSaga("counter")
	st := &interloperStore{Store: memstore.New()}
	bus := membus.New()
	obs := &steps{}
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus,
		saga.WithRetryPolicy(retry.Immediate(3)), saga.WithObserver(obs))
	ctx := context.Background()

	if err := d.Dispatch(ctx, ev(t, startedT, "e", 0)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	st.n = 1
	if err := d.Dispatch(ctx, ev(t, bumpedT, "e", 1)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	conflict, ok := obs.last(saga.StepConflict)
	if !ok || conflict.Version != 1 || conflict.Attempt != 1 {
		t.Fatalf("conflict observation = %+v", conflict)
	}
	persisted, _ := obs.last(saga.StepPersisted)
	if persisted.Attempt != 2 || persisted.Version != 3 {
		t.Fatalf("persisted observation = %+v", persisted)
	}
	inst, data := load(t, st, s.Definition(), "e")
	if inst.Version != 3 || data.Count != 2 {
		t.Fatalf("version=%d count=%d", inst.Version, data.Count)
	}
	if kinds := bus.Kinds(); len(kinds) != 2 {
		t.Fatalf("published %v", kinds)
	}
}

func TestDispatchConflictBeyondAttemptsFails(t *testing.T) {
	s := counterSaga("counter")
	bus := membus.New()
	var handled error
	d := saga.NewDispatcher(registry(t, s.Definition()), conflictStore{memstore.New()}, bus,
		saga.WithRetryPolicy(retry.Immediate(3)),
		saga.WithErrorHandler(saga.ErrorHandlerFunc(func(_ context.Context, _ saga.ID, _ *saga.Definition, err error) bool {
			handled = err
			return false
		})))

	err := d.Dispatch(context.Background(), ev(t, startedT, "x", 0))
	if !errors.Is(err, saga.ErrConcurrencyConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	var ex *retry.ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 3 {
		t.Fatalf("err = %v, want exhausted after 3", err)
	}
	if handled == nil {
		t.Fatal("error handler not consulted")
	}
	if len(bus.Commands()) != 0 {
		t.Fatal("commands published without persist")
	}
}

// barrierStore holds the first n loads until all of them arrived.
type barrierStore struct {
	*memstore.Store
	wg   sync.WaitGroup
	mu   sync.Mutex
	left int
}

func newBarrierStore(n int) *barrierStore {
	b := &barrierStore{Store: memstore.New(), left: n}
	b.wg.Add(n)
	return b
}

func (b *barrierStore) Load(ctx context.Context, def *saga.Definition, id saga.ID) (*saga.Instance, error) {
	inst, err := b.Store.Load(ctx, def, id)
	b.mu.Lock()
	wait := b.left > 0
	if wait {
		b.left--
	}
	b.mu.Unlock()
	if wait {
		b.wg.Done()
		b.wg.Wait()
	}
	return inst, err
}

func TestDispatchConcurrentSameIdentity(t *testing.T) {
	s := counterSaga("counter")
	seed := memstore.New()
	bus := membus.New()
	obs := &steps{}

	d := saga.NewDispatcher(registry(t, s.Definition()), seed, bus)
	if err := d.Dispatch(context.Background(), ev(t, startedT, "k", 0)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	st := newBarrierStore(2)
	st.Store = seed
	d = saga.NewDispatcher(registry(t, counterSaga("counter").Definition()), st, bus,
		saga.WithRetryPolicy(retry.Immediate(3)), saga.WithObserver(obs))

	events := []*saga.Event{ev(t, bumpedT, "k", 1), ev(t, bumpedT, "k", 1)}
	var wg sync.WaitGroup
	errs := make([]error, len(events))
	for i, e := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.Dispatch(context.Background(), e)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	if n := obs.count(saga.StepConflict); n != 1 {
		t.Fatalf("conflicts = %d, want 1", n)
	}
	inst, data := load(t, seed, s.Definition(), "k")
	if inst.Version != 3 || data.Count != 3 {
		t.Fatalf("version=%d count=%d", inst.Version, data.Count)
	}
}

func TestLocatorIsDeterministic(t *testing.T) {
	def := counterSaga("counter").Definition()
	e := ev(t, bumpedT, "same", 1)
	first, err := def.Locator.Locate(context.Background(), e)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	for range 10 {
		id, err := def.Locator.Locate(context.Background(), e)
		if err != nil || id != first {
			t.Fatalf("locate = %q, %v; want %q", id, err, first)
		}
	}
	if saga.NewID("tenant", "42") != saga.NewID("tenant", "42") {
		t.Fatal("NewID not stable")
	}
	if saga.NewID("a", "bc") == saga.NewID("ab", "c") {
		t.Fatal("NewID parts collide")
	}
}

// orderBus records what was persisted at the time of every publish.
type orderBus struct {
	*membus.Bus
	st     *memstore.Store
	writes []int
}

func (b *orderBus) Publish(ctx context.Context, cmds []saga.Command) error {
	b.writes = append(b.writes, b.st.Writes())
	return b.Bus.Publish(ctx, cmds)
}

func TestDispatchPublishesInOrderAfterPersist(t *testing.T) {
	s := counterSaga("counter")
	st := memstore.New()
	bus := &orderBus{Bus: membus.New(), st: st}
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus)

	if err := d.Dispatch(context.Background(), ev(t, startedT, "o", 0), ev(t, bumpedT, "o", 3)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !slices.Equal(bus.writes, []int{1, 2}) {
		t.Fatalf("writes seen at publish = %v", bus.writes)
	}
	cmds := bus.Commands()[1:]
	for i, c := range cmds {
		var e emit
		if err := json.Unmarshal(c.Payload, &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if e.N != i+1 {
			t.Fatalf("command %d carries %d", i, e.N)
		}
	}
}

func TestCommandIDsSurviveRedispatch(t *testing.T) {
	run := func() []uuid.UUID {
		s := counterSaga("counter")
		bus := membus.New()
		d := saga.NewDispatcher(registry(t, s.Definition()), memstore.New(), bus)
		e := ev(t, startedT, "i", 0)
		e.ID = uuid.MustParse("0f4c6a3e-8a8e-4a5e-b5c1-3c7b0f9b2d11")
		if err := d.Dispatch(context.Background(), e); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		var ids []uuid.UUID
		for _, c := range bus.Commands() {
			ids = append(ids, c.ID)
		}
		return ids
	}
	if a, b := run(), run(); !slices.Equal(a, b) {
		t.Fatalf("command ids differ: %v vs %v", a, b)
	}
}

func TestDispatchHandledLogicErrorContinues(t *testing.T) {
	failing := counterSaga("failing")
	healthy := saga.NewSaga[tally]("healthy")
	saga.On(healthy, brokeT, byKey, func(_ context.Context, sc *saga.Scope[tally], p *payload) error {
		sc.Data.Count++
		return sc.Send(saga.Address{AggregateKind: "ledger", AggregateID: p.Key}, emit{N: 99})
	}, saga.Starts())

	st := memstore.New()
	bus := membus.New()
	var gotID saga.ID
	var gotDef string
	var gotErr error
	d := saga.NewDispatcher(registry(t, failing.Definition(), healthy.Definition()), st, bus,
		saga.WithErrorHandler(saga.ErrorHandlerFunc(func(_ context.Context, id saga.ID, def *saga.Definition, err error) bool {
			gotID, gotDef, gotErr = id, def.Kind, err
			return true
		})))
	ctx := context.Background()

	if err := d.Dispatch(ctx, ev(t, startedT, "h", 0)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	before := st.Writes()
	if err := d.Dispatch(ctx, ev(t, brokeT, "h", 0)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var le *saga.LogicError
	if !errors.As(gotErr, &le) || !errors.Is(gotErr, errBroke) || gotID != "h" || gotDef != "failing" {
		t.Fatalf("handler got id=%q def=%q err=%v", gotID, gotDef, gotErr)
	}
	if st.Writes() != before+1 {
		t.Fatalf("writes = %d, want only the healthy saga persisted", st.Writes()-before)
	}
	_, data := load(t, st, failing.Definition(), "h")
	if data.Count != 1 {
		t.Fatalf("failing saga data changed to %d", data.Count)
	}
	if kinds := bus.Kinds(); len(kinds) != 2 {
		t.Fatalf("published %v, want start command and healthy command", kinds)
	}
}

func TestDispatchUnhandledFailureHaltsBatch(t *testing.T) {
	s := counterSaga("counter")
	st := memstore.New()
	bus := membus.New()
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus)

	err := d.Dispatch(context.Background(),
		ev(t, startedT, "z", 0),
		ev(t, brokeT, "z", 0),
		ev(t, startedT, "y", 0),
	)
	if !errors.Is(err, errBroke) {
		t.Fatalf("err = %v, want broke", err)
	}
	if st.Writes() != 1 {
		t.Fatalf("writes = %d, later events must not run", st.Writes())
	}
	if inst, _ := load(t, st, s.Definition(), "y"); inst.Version != 0 {
		t.Fatal("event after failure was dispatched")
	}
}

func TestDispatchCancellationIsDistinct(t *testing.T) {
	s := counterSaga("counter")
	called := false
	d := saga.NewDispatcher(registry(t, s.Definition()), memstore.New(), membus.New(),
		saga.WithErrorHandler(saga.ErrorHandlerFunc(func(context.Context, saga.ID, *saga.Definition, error) bool {
			called = true
			return true
		})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Dispatch(ctx, ev(t, startedT, "q", 0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if err := d.DispatchEvent(ctx, ev(t, startedT, "q", 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if called {
		t.Fatal("cancellation offered to error handler")
	}
}

func TestDispatchPublicationFailureAfterPersist(t *testing.T) {
	s := counterSaga("counter")
	st := memstore.New()
	bus := membus.New()
	boom := errors.New("bus down")
	bus.FailWith(boom)
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus)

	e := ev(t, startedT, "p", 0)
	err := d.Dispatch(context.Background(), e)
	var pe *saga.PublicationError
	if !errors.As(err, &pe) || !errors.Is(err, boom) || pe.Commands != 1 {
		t.Fatalf("err = %v, want publication error", err)
	}
	if st.Writes() != 1 {
		t.Fatal("state not persisted before publication")
	}

	bus.FailWith(nil)
	if err := d.Dispatch(context.Background(), e); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if st.Writes() != 1 {
		t.Fatal("redelivered event persisted twice")
	}
}

func TestDispatchUnresolvedInvoker(t *testing.T) {
	s := counterSaga("counter")
	st := newCountingStore()
	d := saga.NewDispatcher(registry(t, s.Definition()), st, membus.New())

	foreign := saga.EventType{Kind: startedT.Kind, AggregateKind: "other", IDKind: "string"}
	err := d.Dispatch(context.Background(), ev(t, foreign, "u", 0))
	var re *saga.ResolutionError
	if !errors.As(err, &re) || re.Saga != "counter" {
		t.Fatalf("err = %v, want resolution error", err)
	}
	if loads, _ := st.counts(); loads != 0 {
		t.Fatal("resolution failure reached the store")
	}
}

func TestDispatchEmptyIdentity(t *testing.T) {
	def := saga.NewDefinition("empty", saga.LocatorFunc(func(context.Context, *saga.Event) (saga.ID, error) {
		return "", nil
	})).Handle(startedT, saga.InvokerFunc(func(context.Context, *saga.Instance, *saga.Event) (saga.Result, error) {
		return saga.Result{Outcome: saga.Applied}, nil
	}), true)
	d := saga.NewDispatcher(registry(t, def), memstore.New(), membus.New())

	if err := d.Dispatch(context.Background(), ev(t, startedT, "", 0)); !errors.Is(err, saga.ErrEmptyID) {
		t.Fatalf("err = %v, want empty id", err)
	}
}

func TestDispatchUnorderedRunsSagasConcurrently(t *testing.T) {
	var entered sync.WaitGroup
	entered.Add(2)
	rendezvous := func(context.Context, *saga.Instance, *saga.Event) (saga.Result, error) {
		entered.Done()
		done := make(chan struct{})
		go func() {
			entered.Wait()
			close(done)
		}()
		select {
		case <-done:
			return saga.Result{Outcome: saga.Applied}, nil
		case <-time.After(2 * time.Second):
			return saga.Result{}, errors.New("sagas ran sequentially")
		}
	}
	loc := saga.LocatorFunc(func(context.Context, *saga.Event) (saga.ID, error) { return "same", nil })
	a := saga.NewDefinition("a", loc).Handle(startedT, saga.InvokerFunc(rendezvous), true)
	b := saga.NewDefinition("b", loc).Handle(startedT, saga.InvokerFunc(rendezvous), true)

	st := memstore.New()
	d := saga.NewDispatcher(registry(t, a, b), st, membus.New(), saga.WithOrdering(qos.Unordered))
	if err := d.Dispatch(context.Background(), ev(t, startedT, "k", 0)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if st.Writes() != 2 {
		t.Fatalf("writes = %d", st.Writes())
	}
}

func TestDispatchOpensSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	s := counterSaga("counter")
	d := saga.NewDispatcher(registry(t, s.Definition()), memstore.New(), membus.New(),
		saga.WithTracer(tp.Tracer("test")))

	if err := d.Dispatch(context.Background(), ev(t, startedT, "t", 0)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "saga.dispatch" {
		t.Fatalf("spans = %v", spans)
	}
}

// slowBus delays every publish unless ctx ends first.
type slowBus struct {
	*membus.Bus
	delay time.Duration
}

func (b *slowBus) Publish(ctx context.Context, cmds []saga.Command) error {
	select {
	case <-time.After(b.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.Bus.Publish(ctx, cmds)
}

func TestDispatchUnorderedSiblingFailureKeepsPublication(t *testing.T) {
	loc := saga.LocatorFunc(func(context.Context, *saga.Event) (saga.ID, error) { return "k", nil })
	a := saga.NewDefinition("a", loc).Handle(startedT,
		saga.InvokerFunc(func(_ context.Context, inst *saga.Instance, _ *saga.Event) (saga.Result, error) {
			inst.Enqueue(saga.Command{Kind: "Emit", AggregateKind: "ledger", AggregateID: "k"})
			return saga.Result{Outcome: saga.Applied}, nil
		}), true)
	b := saga.NewDefinition("b", loc).Handle(startedT,
		saga.InvokerFunc(func(context.Context, *saga.Instance, *saga.Event) (saga.Result, error) {
			time.Sleep(20 * time.Millisecond)
			return saga.Result{}, errBroke
		}), true)

	bus := &slowBus{Bus: membus.New(), delay: 50 * time.Millisecond}
	d := saga.NewDispatcher(registry(t, a, b), memstore.New(), bus, saga.WithOrdering(qos.Unordered))

	if err := d.Dispatch(context.Background(), ev(t, startedT, "k", 0)); !errors.Is(err, errBroke) {
		t.Fatalf("err = %v, want broke", err)
	}
	if kinds := bus.Kinds(); len(kinds) != 1 {
		t.Fatalf("published %v, want the persisted saga's command", kinds)
	}
}

type orderCreated struct {
	OrderID string `json:"order_id"`
}

type invoiceCreated struct {
	InvoiceRef string `json:"invoice_ref"`
}

func TestDispatchSameEventKindFromTwoAggregates(t *testing.T) {
	orderT := saga.EventType{Kind: "Created", AggregateKind: "order", IDKind: "string"}
	invoiceT := saga.EventType{Kind: "Created", AggregateKind: "invoice", IDKind: "string"}

	s := saga.NewSaga[tally]("billing")
	saga.On(s, orderT,
		func(_ context.Context, e *orderCreated) (saga.ID, error) { return saga.ID("o-" + e.OrderID), nil },
		func(_ context.Context, sc *saga.Scope[tally], _ *orderCreated) error { sc.Data.Count++; return nil },
		saga.Starts())
	saga.On(s, invoiceT,
		func(_ context.Context, e *invoiceCreated) (saga.ID, error) { return saga.ID("i-" + e.InvoiceRef), nil },
		func(_ context.Context, sc *saga.Scope[tally], _ *invoiceCreated) error { sc.Data.Count += 10; return nil },
		saga.Starts())

	st := memstore.New()
	obs := &steps{}
	d := saga.NewDispatcher(registry(t, s.Definition()), st, membus.New(), saga.WithObserver(obs))

	order := &saga.Event{ID: uuid.New(), Kind: orderT.Kind, AggregateKind: orderT.AggregateKind, IDKind: orderT.IDKind, Payload: []byte(`{"order_id":"42"}`)}
	invoice := &saga.Event{ID: uuid.New(), Kind: invoiceT.Kind, AggregateKind: invoiceT.AggregateKind, IDKind: invoiceT.IDKind, Payload: []byte(`{"invoice_ref":"7"}`)}
	if err := d.Dispatch(context.Background(), order, invoice); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if _, data := load(t, st, s.Definition(), "o-42"); data.Count != 1 {
		t.Fatalf("order saga count = %d, want 1", data.Count)
	}
	if _, data := load(t, st, s.Definition(), "i-7"); data.Count != 10 {
		t.Fatalf("invoice saga count = %d, want 10", data.Count)
	}
	if n := obs.count(saga.StepPersisted); n != 2 {
		t.Fatalf("persisted %d instances, want 2", n)
	}
}

type notStruct map[string]int

func TestDispatchUnnamableCommandFails(t *testing.T) {
	s := saga.NewSaga[tally]("maps")
	saga.On(s, startedT, byKey, func(_ context.Context, sc *saga.Scope[tally], p *payload) error {
		return sc.Send(saga.Address{AggregateKind: "ledger", AggregateID: p.Key}, notStruct{"a": 1})
	}, saga.Starts())
	st := memstore.New()
	bus := membus.New()
	d := saga.NewDispatcher(registry(t, s.Definition()), st, bus)

	err := d.Dispatch(context.Background(), ev(t, startedT, "m", 0))
	var le *saga.LogicError
	if !errors.As(err, &le) || !errors.Is(err, saga.ErrUnknownCommandKind) {
		t.Fatalf("err = %v, want unknown command kind", err)
	}
	if st.Writes() != 0 || len(bus.Commands()) != 0 {
		t.Fatal("failed invocation was persisted or published")
	}
}
