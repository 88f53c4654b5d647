// Package storetest checks that a saga.Store honours optimistic concurrency.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/alekseev-bro/sagas/pkg/saga"
)

// Run exercises the store returned by newStore. Every subtest gets a fresh
// store.
func Run(t *testing.T, newStore func(t *testing.T) saga.Store) {
	t.Helper()
	def := saga.NewDefinition("conformance", nil)
	other := saga.NewDefinition("conformance-other", nil)
	ctx := context.Background()

	t.Run("LoadMissingReturnsNew", func(t *testing.T) {
		s := newStore(t)
		inst, err := s.Load(ctx, def, "missing")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if inst.State != saga.New || inst.Version != 0 || inst.ID != "missing" || inst.Kind != def.Kind {
			t.Fatalf("expected fresh instance, got %+v", inst)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		s := newStore(t)
		inst, _ := s.Load(ctx, def, "a")
		ev := uuid.New()
		inst.State = saga.InProgress
		inst.Data = []byte(`{"step":1}`)
		inst.Processed = []uuid.UUID{ev}
		if err := s.Save(ctx, inst, ev); err != nil {
			t.Fatalf("save: %v", err)
		}
		if inst.Version == 0 {
			t.Fatalf("save must advance the version")
		}

		got, err := s.Load(ctx, def, "a")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.State != saga.InProgress || got.Version != inst.Version {
			t.Fatalf("expected in-progress at version %d, got %s at %d", inst.Version, got.State, got.Version)
		}
		if !bytes.Equal(got.Data, inst.Data) {
			t.Fatalf("data mismatch: %s", got.Data)
		}
		if !got.HasProcessed(ev) {
			t.Fatalf("processed events were not persisted")
		}
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		s := newStore(t)
		first, _ := s.Load(ctx, def, "b")
		second, _ := s.Load(ctx, def, "b")

		first.State = saga.InProgress
		if err := s.Save(ctx, first, uuid.New()); err != nil {
			t.Fatalf("first save: %v", err)
		}
		second.State = saga.InProgress
		err := s.Save(ctx, second, uuid.New())
		if !errors.Is(err, saga.ErrConcurrencyConflict) {
			t.Fatalf("expected concurrency conflict, got %v", err)
		}

		reloaded, _ := s.Load(ctx, def, "b")
		if reloaded.Version != first.Version {
			t.Fatalf("conflicting save changed the version")
		}
		if err := s.Save(ctx, reloaded, uuid.New()); err != nil {
			t.Fatalf("save after reload: %v", err)
		}
		if reloaded.Version == first.Version {
			t.Fatalf("version did not advance")
		}
	})

	t.Run("KindsAreIsolated", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.Load(ctx, def, "same")
		a.State = saga.Completed
		if err := s.Save(ctx, a, uuid.New()); err != nil {
			t.Fatalf("save: %v", err)
		}
		b, err := s.Load(ctx, other, "same")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if b.State != saga.New || b.Version != 0 {
			t.Fatalf("saga kinds share state: %+v", b)
		}
	})

	t.Run("AwkwardIdentity", func(t *testing.T) {
		s := newStore(t)
		id := saga.ID("order 42/α.*>")
		inst, _ := s.Load(ctx, def, id)
		inst.State = saga.InProgress
		if err := s.Save(ctx, inst, uuid.New()); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, _ := s.Load(ctx, def, id)
		if got.ID != id || got.State != saga.InProgress {
			t.Fatalf("unexpected instance %+v", got)
		}
	})
}
