package saga

import (
	"context"
	"fmt"
)

// Step is a stage of processing one event for one saga definition.
type Step uint8

const (
	StepLocated Step = iota + 1
	StepLoaded
	StepInvoked
	StepSkipped
	StepPersisted
	StepConflict
	StepPublished
	StepFailed
	StepHandled
)

var stepNames = map[Step]string{
	StepLocated:   "located",
	StepLoaded:    "loaded",
	StepInvoked:   "invoked",
	StepSkipped:   "skipped",
	StepPersisted: "persisted",
	StepConflict:  "conflict",
	StepPublished: "published",
	StepFailed:    "failed",
	StepHandled:   "handled",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("step(%d)", uint8(s))
}

// Observation is emitted by the dispatcher at every step transition.
type Observation struct {
	Step     Step
	Saga     string
	ID       ID
	Event    *Event
	Attempt  int
	Version  uint64
	Skip     SkipReason
	Commands int
	Err      error
}

// Observer receives dispatcher observations. Implementations must be safe for
// concurrent use.
type Observer interface {
	Observe(ctx context.Context, o Observation)
}

type ObserverFunc func(ctx context.Context, o Observation)

func (f ObserverFunc) Observe(ctx context.Context, o Observation) {
	f(ctx, o)
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Observation) {}
