package natsfeed

import (
	"time"

	"github.com/alekseev-bro/sagas/pkg/qos"
)

const (
	defaultBatch   = 64
	defaultMaxWait = 5 * time.Second
	defaultIDKind  = "uuid"
)

type config struct {
	aggregateKind string
	idKind        string
	durable       string
	kinds         []string
	batch         int
	maxWait       time.Duration
	ordering      qos.Ordering
}

type Option func(*config)

// WithAggregate sets the aggregate kind and identity kind stamped on every
// event of the stream. The aggregate kind defaults to the stream name.
func WithAggregate(kind, idKind string) Option {
	return func(c *config) {
		c.aggregateKind = kind
		c.idKind = idKind
	}
}

func WithDurable(name string) Option {
	return func(c *config) {
		c.durable = name
	}
}

// WithFilterByEvent limits consumption to the given event kinds.
func WithFilterByEvent(kinds ...string) Option {
	return func(c *config) {
		c.kinds = append(c.kinds, kinds...)
	}
}

// WithBatch sets the fetch size and how long a fetch waits for it to fill.
// Non-positive values keep the defaults.
func WithBatch(n int, maxWait time.Duration) Option {
	return func(c *config) {
		if n > 0 {
			c.batch = n
		}
		if maxWait > 0 {
			c.maxWait = maxWait
		}
	}
}

// WithOrdering with qos.Ordered keeps a single batch in flight so events are
// never handed to the dispatcher out of stream order.
func WithOrdering(o qos.Ordering) Option {
	return func(c *config) {
		c.ordering = o
	}
}
