package saga

import (
	"context"
	"fmt"
)

// Outcome tags the result of applying an event to a saga instance.
type Outcome uint8

const (
	Applied Outcome = iota + 1
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// SkipReason says why an event was not applied.
type SkipReason uint8

const (
	NotSkipped SkipReason = iota
	SkipCompleted
	SkipNotStarted
	SkipDuplicate
)

func (r SkipReason) String() string {
	switch r {
	case NotSkipped:
		return ""
	case SkipCompleted:
		return "completed"
	case SkipNotStarted:
		return "not-started"
	case SkipDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("skip(%d)", uint8(r))
	}
}

type Result struct {
	Outcome Outcome
	Skip    SkipReason
}

func skip(r SkipReason) Result {
	return Result{Outcome: Skipped, Skip: r}
}

// Invoker applies a domain event to a saga instance, mutating its state and
// queueing commands on it.
type Invoker interface {
	Invoke(ctx context.Context, inst *Instance, ev *Event) (Result, error)
}

type InvokerFunc func(ctx context.Context, inst *Instance, ev *Event) (Result, error)

func (f InvokerFunc) Invoke(ctx context.Context, inst *Instance, ev *Event) (Result, error) {
	return f(ctx, inst, ev)
}

// guard enforces the lifecycle rules around saga logic. Every invoker handed
// out by a Registry is wrapped in one.
type guard struct {
	def   *Definition
	inner Invoker
}

func (g *guard) Invoke(ctx context.Context, inst *Instance, ev *Event) (Result, error) {
	switch {
	case inst.State == Completed:
		return skip(SkipCompleted), nil
	case inst.State == New && !g.def.IsStarting(ev.Kind):
		return skip(SkipNotStarted), nil
	case inst.HasProcessed(ev.ID):
		return skip(SkipDuplicate), nil
	}

	res, err := g.inner.Invoke(ctx, inst, ev)
	if err != nil {
		inst.ClearPending()
		return Result{Outcome: Failed}, &LogicError{Saga: g.def.Kind, ID: inst.ID, Event: ev.Type(), Err: err}
	}
	if res.Outcome == Skipped {
		inst.ClearPending()
		return res, nil
	}
	if inst.State == New {
		inst.State = InProgress
	}
	inst.markProcessed(ev.ID)
	inst.stamp(ev.ID)
	return Result{Outcome: Applied}, nil
}
