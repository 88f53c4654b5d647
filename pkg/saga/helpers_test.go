package saga_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/alekseev-bro/sagas/pkg/saga"
	"github.com/alekseev-bro/sagas/pkg/store/memstore"
)

var (
	startedT  = saga.EventType{Kind: "Started", AggregateKind: "account", IDKind: "string"}
	bumpedT   = saga.EventType{Kind: "Bumped", AggregateKind: "account", IDKind: "string"}
	finishedT = saga.EventType{Kind: "Finished", AggregateKind: "account", IDKind: "string"}
	brokeT    = saga.EventType{Kind: "Broke", AggregateKind: "account", IDKind: "string"}

	errBroke = errors.New("broke")
)

type payload struct {
	Key string `json:"key"`
	N   int    `json:"n"`
}

type tally struct {
	Count int   `json:"count"`
	Seen  []int `json:"seen"`
}

type emit struct {
	N int `json:"n"`
}

func (emit) Kind() string { return "Emit" }

func byKey(_ context.Context, p *payload) (saga.ID, error) {
	return saga.ID(p.Key), nil
}

// counterSaga starts on Started, counts Bumped, completes on Finished and
// fails on Broke.
func counterSaga(kind string) *saga.Saga[tally] {
	s := saga.NewSaga[tally](kind)
	saga.On(s, startedT, byKey, func(_ context.Context, sc *saga.Scope[tally], p *payload) error {
		sc.Data.Count++
		return sc.Send(saga.Address{AggregateKind: "ledger", AggregateID: p.Key}, emit{N: p.N})
	}, saga.Starts())
	saga.On(s, bumpedT, byKey, func(_ context.Context, sc *saga.Scope[tally], p *payload) error {
		sc.Data.Count++
		sc.Data.Seen = append(sc.Data.Seen, p.N)
		for i := 1; i <= p.N; i++ {
			if err := sc.Send(saga.Address{AggregateKind: "ledger", AggregateID: p.Key}, emit{N: i}); err != nil {
				return err
			}
		}
		return nil
	})
	saga.On(s, finishedT, byKey, func(_ context.Context, sc *saga.Scope[tally], _ *payload) error {
		sc.Complete()
		return nil
	})
	saga.On(s, brokeT, byKey, func(_ context.Context, sc *saga.Scope[tally], _ *payload) error {
		sc.Data.Count = -1
		return errBroke
	})
	return s
}

func ev(t testing.TB, et saga.EventType, key string, n int) *saga.Event {
	t.Helper()
	b, err := json.Marshal(payload{Key: key, N: n})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &saga.Event{
		ID:            uuid.New(),
		Kind:          et.Kind,
		AggregateKind: et.AggregateKind,
		IDKind:        et.IDKind,
		AggregateID:   key,
		Payload:       b,
	}
}

func registry(t testing.TB, defs ...*saga.Definition) *saga.Registry {
	t.Helper()
	reg := saga.NewRegistry()
	if err := reg.Add(defs...); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func load(t testing.TB, st saga.Store, def *saga.Definition, id saga.ID) (*saga.Instance, tally) {
	t.Helper()
	inst, err := st.Load(context.Background(), def, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var d tally
	if len(inst.Data) > 0 {
		if err := json.Unmarshal(inst.Data, &d); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return inst, d
}

// countingStore counts calls on top of an in-memory store.
type countingStore struct {
	*memstore.Store

	mu    sync.Mutex
	loads int
	saves int
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memstore.New()}
}

func (s *countingStore) Load(ctx context.Context, def *saga.Definition, id saga.ID) (*saga.Instance, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return s.Store.Load(ctx, def, id)
}

func (s *countingStore) Save(ctx context.Context, inst *saga.Instance, eventID uuid.UUID) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Store.Save(ctx, inst, eventID)
}

func (s *countingStore) counts() (loads, saves int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads, s.saves
}

// interloperStore writes the instance behind the caller's back right before
// the first n saves, so those saves carry a stale version.
type interloperStore struct {
	*memstore.Store
	n int
}

func (s *interloperStore) Save(ctx context.Context, inst *saga.Instance, eventID uuid.UUID) error {
	if s.n > 0 {
		s.n--
		def := saga.NewDefinition(inst.Kind, nil)
		other, err := s.Store.Load(ctx, def, inst.ID)
		if err != nil {
			return err
		}
		if err := s.Store.Save(ctx, other, uuid.New()); err != nil {
			return err
		}
	}
	return s.Store.Save(ctx, inst, eventID)
}

// conflictStore rejects every save.
type conflictStore struct {
	*memstore.Store
}

func (conflictStore) Save(context.Context, *saga.Instance, uuid.UUID) error {
	return saga.ErrConcurrencyConflict
}

// steps records observations.
type steps struct {
	mu  sync.Mutex
	obs []saga.Observation
}

func (s *steps) Observe(_ context.Context, o saga.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = append(s.obs, o)
}

func (s *steps) count(step saga.Step) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.obs {
		if o.Step == step {
			n++
		}
	}
	return n
}

func (s *steps) last(step saga.Step) (saga.Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.obs) - 1; i >= 0; i-- {
		if s.obs[i].Step == step {
			return s.obs[i], true
		}
	}
	return saga.Observation{}, false
}
