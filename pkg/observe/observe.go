// Package observe provides saga.Observer implementations for logs and traces.
package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alekseev-bro/sagas/pkg/saga"
)

// Log writes one record per observation. Failures are logged at error level,
// conflicts and skips at debug, everything else at info.
func Log(l *slog.Logger) saga.Observer {
	if l == nil {
		l = slog.Default()
	}
	return saga.ObserverFunc(func(ctx context.Context, o saga.Observation) {
		attrs := []slog.Attr{
			slog.String("step", o.Step.String()),
			slog.String("saga", o.Saga),
			slog.String("id", o.ID.String()),
		}
		if o.Event != nil {
			attrs = append(attrs, slog.String("event", o.Event.Kind), slog.String("event_id", o.Event.ID.String()))
		}
		if o.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", o.Attempt))
		}
		if o.Version > 0 {
			attrs = append(attrs, slog.Uint64("version", o.Version))
		}
		if o.Skip != saga.NotSkipped {
			attrs = append(attrs, slog.String("skip", o.Skip.String()))
		}
		if o.Commands > 0 {
			attrs = append(attrs, slog.Int("commands", o.Commands))
		}
		if o.Err != nil {
			attrs = append(attrs, slog.Any("error", o.Err))
		}
		l.LogAttrs(ctx, level(o.Step), "saga "+o.Step.String(), attrs...)
	})
}

func level(s saga.Step) slog.Level {
	switch s {
	case saga.StepFailed:
		return slog.LevelError
	case saga.StepHandled:
		return slog.LevelWarn
	case saga.StepConflict, saga.StepSkipped, saga.StepLoaded, saga.StepLocated:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Trace adds observations as events on the span carried by ctx.
func Trace() saga.Observer {
	return saga.ObserverFunc(func(ctx context.Context, o saga.Observation) {
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		attrs := []attribute.KeyValue{
			attribute.String("saga.kind", o.Saga),
			attribute.String("saga.id", o.ID.String()),
		}
		if o.Attempt > 0 {
			attrs = append(attrs, attribute.Int("saga.attempt", o.Attempt))
		}
		if o.Version > 0 {
			attrs = append(attrs, attribute.Int64("saga.version", int64(o.Version)))
		}
		if o.Skip != saga.NotSkipped {
			attrs = append(attrs, attribute.String("saga.skip", o.Skip.String()))
		}
		if o.Commands > 0 {
			attrs = append(attrs, attribute.Int("saga.commands", o.Commands))
		}
		span.AddEvent("saga."+o.Step.String(), trace.WithAttributes(attrs...))
		if o.Err != nil && o.Step == saga.StepFailed {
			span.RecordError(o.Err)
		}
	})
}

type multi []saga.Observer

func (m multi) Observe(ctx context.Context, o saga.Observation) {
	for _, obs := range m {
		obs.Observe(ctx, o)
	}
}

// Multi fans observations out to every non-nil observer in order.
func Multi(obs ...saga.Observer) saga.Observer {
	m := make(multi, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}
