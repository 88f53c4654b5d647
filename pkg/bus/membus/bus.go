// Package membus is a command bus that keeps published commands in memory.
package membus

import (
	"context"
	"slices"
	"sync"

	"github.com/alekseev-bro/sagas/pkg/saga"
)

type Bus struct {
	mu        sync.Mutex
	published []saga.Command
	fail      error
}

func New() *Bus {
	return &Bus{}
}

func (b *Bus) Publish(ctx context.Context, cmds []saga.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.published = append(b.published, cmds...)
	return nil
}

// FailWith makes every following Publish return err. Nil clears it.
func (b *Bus) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

func (b *Bus) Commands() []saga.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}

// Kinds lists the kinds of published commands in publication order.
func (b *Bus) Kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]string, len(b.published))
	for i, c := range b.published {
		kinds[i] = c.Kind
	}
	return kinds
}
