package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict is returned by a Store when the stored version no
	// longer matches the version captured at load.
	ErrConcurrencyConflict = errors.New("saga: concurrency conflict")
	ErrEmptyID             = errors.New("saga: locator returned empty id")
	ErrRegistrySealed      = errors.New("saga: registry is sealed")
	ErrUnknownCommandKind  = errors.New("saga: command kind is empty")
)

// ResolutionError reports a collaborator that could not be resolved for an
// event, such as a missing invoker for the event's type tuple. It is never
// retried.
type ResolutionError struct {
	Saga   string
	Event  EventType
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("saga %s: resolve for %s: %s", e.Saga, e.Event, e.Reason)
}

// LogicError wraps a failure raised by saga handling logic.
type LogicError struct {
	Saga  string
	ID    ID
	Event EventType
	Err   error
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("saga %s/%s: handle %s: %v", e.Saga, e.ID, e.Event.Kind, e.Err)
}

func (e *LogicError) Unwrap() error {
	return e.Err
}

// PublicationError reports a command bus failure after the instance was
// already persisted. The saga state is durably advanced at this point.
type PublicationError struct {
	Saga     string
	ID       ID
	Commands int
	Err      error
}

func (e *PublicationError) Error() string {
	return fmt.Sprintf("saga %s/%s: publish %d commands: %v", e.Saga, e.ID, e.Commands, e.Err)
}

func (e *PublicationError) Unwrap() error {
	return e.Err
}
