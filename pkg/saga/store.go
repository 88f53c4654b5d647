package saga

import (
	"context"

	"github.com/google/uuid"
)

// Store loads and persists saga instances under optimistic concurrency.
//
// Load returns a fresh New instance at version zero when nothing is stored.
// Save must fail with ErrConcurrencyConflict when the stored version differs
// from inst.Version, and advance inst.Version on success.
type Store interface {
	Load(ctx context.Context, def *Definition, id ID) (*Instance, error)
	Save(ctx context.Context, inst *Instance, eventID uuid.UUID) error
}

// CommandBus publishes saga commands. Commands of one call must be delivered
// in slice order.
type CommandBus interface {
	Publish(ctx context.Context, cmds []Command) error
}

// ErrorHandler is the last resort for a failed saga definition. Returning true
// marks the failure handled and dispatch continues with the next saga.
type ErrorHandler interface {
	HandleError(ctx context.Context, id ID, def *Definition, err error) bool
}

type ErrorHandlerFunc func(ctx context.Context, id ID, def *Definition, err error) bool

func (f ErrorHandlerFunc) HandleError(ctx context.Context, id ID, def *Definition, err error) bool {
	return f(ctx, id, def, err)
}

type unhandled struct{}

func (unhandled) HandleError(context.Context, ID, *Definition, error) bool {
	return false
}
