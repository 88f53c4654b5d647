package natsbus

import "time"

type config struct {
	stream     string
	storeType  StoreType
	dedupe     time.Duration
	ackTimeout time.Duration
}

type Option func(*config)

func WithStream(name string) Option {
	return func(c *config) {
		c.stream = name
	}
}

func WithInMemory() Option {
	return func(c *config) {
		c.storeType = Memory
	}
}

// WithDeduplication sets the window in which a repeated command ID is
// dropped by the server.
func WithDeduplication(d time.Duration) Option {
	return func(c *config) {
		c.dedupe = d
	}
}

func WithAckTimeout(d time.Duration) Option {
	return func(c *config) {
		c.ackTimeout = d
	}
}
