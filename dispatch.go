package crier

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/casualjim/crier/internal/metrics"
	"github.com/casualjim/crier/internal/workerpool"
	"github.com/casualjim/crier/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/google/uuid"
)

// WaitMode says whether and how a producer waits for the handlers of an event.
type WaitMode int

const (
	// NoWait returns as soon as the handlers are scheduled.
	NoWait WaitMode = iota
	// Blocked returns once every handler has finished.
	Blocked
	// Callback returns as soon as the handlers are scheduled and invokes a
	// callback once every handler has finished.
	Callback
)

func (m WaitMode) String() string {
	switch m {
	case NoWait:
		return "no_wait"
	case Blocked:
		return "blocked"
	case Callback:
		return "callback"
	default:
		return fmt.Sprintf("wait_mode(%d)", int(m))
	}
}

// workerScope marks contexts handed to handlers. A blocked fire from inside a
// handler helps run queued work instead of parking a worker.
type workerScope struct{}

func onWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerScope{}).(bool)
	return v
}

// unit is the dispatch state of one fire call.
type unit struct {
	id       uuid.UUID
	event    Event
	handlers []Handler
	callback CompletionFunc

	remaining atomic.Int64
	done      chan struct{}
}

func newUnit(event Event, handlers []Handler, cfg fireConfig) *unit {
	u := &unit{
		id:       uuid.Must(uuid.NewV7()),
		event:    event,
		handlers: handlers,
		callback: cfg.callback,
		done:     make(chan struct{}),
	}
	u.remaining.Store(int64(len(handlers)))
	return u
}

// FireTopic fires a plain event for topic. See Fire.
func (b *Bus) FireTopic(ctx context.Context, topic string, options ...FireOption) error {
	return b.Fire(ctx, NewEvent(topic), options...)
}

// Fire delivers event to every matching handler on the worker pool.
//
// Without options Fire returns once the handlers are scheduled. Sync(true)
// makes it wait for them, and WithCallback registers a function to run after
// the last of them; combined, Fire also waits for the callback. Handler
// errors and panics are logged and never returned. A topic without matching
// handlers is logged as a warning and is not an error; the callback does not
// run in that case.
//
// While waiting, Fire returns ErrWaitInterrupted if ctx ends first. Handlers
// see a context that carries the values of ctx but not its cancellation.
func (b *Bus) Fire(ctx context.Context, event Event, options ...FireOption) error {
	if event == nil || event.Topic() == "" {
		return ErrInvalidEvent
	}

	var cfg fireConfig
	if err := opts.Apply(&cfg, options); err != nil {
		return err
	}
	if !b.pool.Running() {
		return ErrNotRunning
	}

	mode := cfg.mode()
	b.metrics.Fired.WithLabelValues(mode.String()).Inc()

	handlers := b.resolve(event)
	if len(handlers) == 0 {
		b.metrics.Unhandled.Inc()
		b.logger.WarnContext(ctx, "no handler for topic", slogx.Topic(event.Topic()))
		return nil
	}

	u := newUnit(event, handlers, cfg)
	worker := onWorker(ctx)
	leafCtx := context.WithValue(context.WithoutCancel(ctx), workerScope{}, true)
	if err := b.dispatch(leafCtx, u, cfg.sync || worker); err != nil {
		return err
	}
	if !cfg.sync {
		return nil
	}

	wait := workerpool.Wait
	if worker {
		wait = b.pool.Await
	}
	if err := wait(ctx, u.done); err != nil {
		b.metrics.Interrupted.Inc()
		b.logger.WarnContext(ctx, "wait for handlers interrupted",
			slogx.Topic(event.Topic()),
			slogx.DispatchID(u.id),
			slog.String("mode", mode.String()),
			slogx.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrWaitInterrupted, err)
	}
	return nil
}

// dispatch submits one leaf per handler. With callerRuns a saturated queue
// runs leaves on the calling goroutine; otherwise they overflow onto their
// own goroutines and the caller never runs a handler. Leaves that cannot be
// submitted count as finished so the unit still completes.
func (b *Bus) dispatch(ctx context.Context, u *unit, callerRuns bool) error {
	submit := b.pool.Submit
	if callerRuns {
		submit = b.pool.SubmitOrRun
	}
	for i, h := range u.handlers {
		if err := submit(b.leaf(ctx, u, h)); err != nil {
			for range len(u.handlers) - i {
				b.leafDone(ctx, u)
			}
			return err
		}
	}
	return nil
}

func (b *Bus) leaf(ctx context.Context, u *unit, h Handler) workerpool.Task {
	return func() {
		defer b.leafDone(ctx, u)
		b.invoke(ctx, u, h)
	}
}

func (b *Bus) invoke(ctx context.Context, u *unit, h Handler) {
	start := time.Now()
	outcome := metrics.OutcomeSuccess
	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomePanic
			b.logger.ErrorContext(ctx, "handler panicked",
				slogx.Topic(u.event.Topic()),
				slogx.DispatchID(u.id),
				slogx.HandlerType(h),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		b.metrics.Observe(outcome, time.Since(start))
	}()

	if err := h.Handle(ctx, u.event); err != nil {
		outcome = metrics.OutcomeError
		b.logger.ErrorContext(ctx, "handler failed",
			slogx.Topic(u.event.Topic()),
			slogx.DispatchID(u.id),
			slogx.HandlerType(h),
			slogx.Error(err),
		)
	}
}

func (b *Bus) leafDone(ctx context.Context, u *unit) {
	if u.remaining.Add(-1) == 0 {
		b.complete(ctx, u)
	}
}

func (b *Bus) complete(ctx context.Context, u *unit) {
	defer close(u.done)
	if u.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "completion callback panicked",
				slogx.Topic(u.event.Topic()),
				slogx.DispatchID(u.id),
				slog.Any("panic", r),
			)
		}
	}()
	u.callback(ctx, u.event)
}
