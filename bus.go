package crier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"time"

	"github.com/casualjim/crier/internal/match"
	"github.com/casualjim/crier/internal/metrics"
	"github.com/casualjim/crier/internal/registry"
	"github.com/casualjim/crier/internal/workerpool"
	"github.com/casualjim/crier/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/prometheus/client_golang/prometheus"
)

// Bus delivers fired events to the handlers registered for their topic.
//
// Registration and firing are safe to call concurrently from any goroutine.
// A Bus must be started before events can be fired and cannot be restarted
// once stopped.
type Bus struct {
	drainTimeout time.Duration
	workers      int
	queueSize    int
	logger       *slog.Logger
	registerer   prometheus.Registerer

	handlers *registry.Registry[Handler]
	pool     *workerpool.Pool
	metrics  *metrics.Metrics
}

// New creates a Bus. The bus does not accept events until Start is called.
func New(options ...Option) (*Bus, error) {
	b := &Bus{
		drainTimeout: DefaultDrainTimeout,
		logger:       slog.Default(),
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	if b.drainTimeout < 0 {
		return nil, fmt.Errorf("drain timeout must not be negative, got %s", b.drainTimeout)
	}

	m, err := metrics.New(b.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	b.logger = b.logger.With(slogx.LoggerName("crier"))
	b.metrics = m
	b.handlers = registry.New[Handler]()
	b.pool = workerpool.New(
		workerpool.WithWorkers(b.workers),
		workerpool.WithQueueSize(b.queueSize),
		workerpool.WithPanicHandler(b.onTaskPanic),
	)
	return b, nil
}

// Register adds h to the handlers of h.Topic(). Registering the same handler
// twice delivers every event to it twice.
func (b *Bus) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: handler is required", ErrInvalidHandler)
	}
	if !identifiable(h) {
		return fmt.Errorf("%w: %T is not comparable", ErrInvalidHandler, h)
	}
	topic := h.Topic()
	if topic == "" {
		return fmt.Errorf("%w: %T has an empty topic", ErrInvalidHandler, h)
	}

	entry := registry.Entry[Handler]{Value: h, Kind: registry.Plain}
	if ah, ok := h.(AttributedHandler); ok {
		entry.Kind = registry.Attributed
		entry.Required = maps.Clone(ah.RequiredAttributes())
	}
	b.handlers.Add(topic, entry)

	b.logger.Debug("handler registered",
		slogx.Topic(topic),
		slogx.HandlerType(h),
		slog.String("kind", entry.Kind.String()),
	)
	return nil
}

// Unregister removes one registration of h and reports whether there was one.
func (b *Bus) Unregister(h Handler) bool {
	if h == nil || !identifiable(h) {
		return false
	}
	removed := b.handlers.Remove(h.Topic(), h)
	if removed {
		b.logger.Debug("handler unregistered", slogx.Topic(h.Topic()), slogx.HandlerType(h))
	}
	return removed
}

// Handlers reports how many handler registrations the bus holds.
func (b *Bus) Handlers() int {
	return b.handlers.Len()
}

// Start starts the worker pool.
func (b *Bus) Start(ctx context.Context) error {
	if err := b.pool.Start(); err != nil {
		return err
	}
	b.logger.InfoContext(ctx, "event bus started",
		slog.Int("workers", b.pool.Workers()),
		slog.Duration("drain_timeout", b.drainTimeout),
	)
	return nil
}

// Stop refuses new events and waits for in-flight handlers until the drain
// timeout elapses or ctx ends, whichever comes first. An incomplete drain is
// logged, not returned.
func (b *Bus) Stop(ctx context.Context) error {
	err := b.pool.Stop(ctx, b.drainTimeout)
	switch {
	case err == nil:
		b.logger.InfoContext(ctx, "event bus stopped")
	case errors.Is(err, workerpool.ErrNotRunning):
	default:
		b.logger.WarnContext(ctx, "event bus stopped before handlers drained",
			slogx.Error(err),
			slog.Duration("drain_timeout", b.drainTimeout),
		)
	}
	return nil
}

// Running reports whether the bus accepts events.
func (b *Bus) Running() bool {
	return b.pool.Running()
}

// Stats returns the worker pool counters.
func (b *Bus) Stats() workerpool.Stats {
	return b.pool.Stats()
}

// identifiable reports whether h can be compared with ==. A comparable type
// can still panic on == when an interface field holds a func, map or slice.
func identifiable(h Handler) (ok bool) {
	if !reflect.TypeOf(h).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	other := h
	return other == h
}

func (b *Bus) resolve(e Event) []Handler {
	entries := b.handlers.Snapshot(e.Topic())
	if ae, ok := e.(AttributedEvent); ok {
		return match.Select(entries, true, ae.Attributes())
	}
	return match.Select(entries, false, nil)
}

func (b *Bus) onTaskPanic(value any, stack []byte) {
	b.logger.Error("dispatch task panicked",
		slog.Any("panic", value),
		slog.String("stack", string(stack)),
	)
}
