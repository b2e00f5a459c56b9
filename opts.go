package crier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fogfish/opts"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultDrainTimeout bounds how long Stop waits for in-flight handlers.
const DefaultDrainTimeout = 100 * time.Second

// Option configures a Bus.
type Option = opts.Option[Bus]

// WithDrainTimeout sets how long Stop waits for in-flight handlers before
// giving up. Zero means Stop waits until its context ends.
var WithDrainTimeout = opts.ForName[Bus, time.Duration]("drainTimeout")

// WithLogger sets the logger the bus reports unmatched topics and handler
// failures to. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return opts.Type[Bus](func(b *Bus) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	})
}

// WithWorkers sets the number of pool goroutines. Zero keeps the default of
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return opts.Type[Bus](func(b *Bus) error {
		if n < 0 {
			return fmt.Errorf("workers must not be negative, got %d", n)
		}
		b.workers = n
		return nil
	})
}

// WithQueueSize sets the capacity of the pool task queue. Zero keeps the
// default.
func WithQueueSize(n int) Option {
	return opts.Type[Bus](func(b *Bus) error {
		if n < 0 {
			return fmt.Errorf("queue size must not be negative, got %d", n)
		}
		b.queueSize = n
		return nil
	})
}

// WithMetrics registers the bus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return opts.Type[Bus](func(b *Bus) error {
		b.registerer = reg
		return nil
	})
}

// CompletionFunc is invoked once all handlers of a fire call have finished.
// It receives the event that was fired.
type CompletionFunc func(context.Context, Event)

type fireConfig struct {
	sync     bool
	callback CompletionFunc
}

func (c fireConfig) mode() WaitMode {
	switch {
	case c.callback != nil:
		return Callback
	case c.sync:
		return Blocked
	default:
		return NoWait
	}
}

// FireOption configures a single fire call.
type FireOption = opts.Option[fireConfig]

// Sync makes the fire call wait until every matched handler, and the
// completion callback if there is one, has returned.
var Sync = opts.ForName[fireConfig, bool]("sync")

// WithCallback sets the function to invoke after every matched handler has
// finished.
func WithCallback(fn CompletionFunc) FireOption {
	return opts.Type[fireConfig](func(c *fireConfig) error {
		c.callback = fn
		return nil
	})
}
