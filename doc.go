/*
Package crier provides an in-process event bus. Producers fire events on a
topic; handlers registered for that topic receive them on a shared, bounded
worker pool.

# Basic Usage

	bus, err := crier.New(crier.WithDrainTimeout(10 * time.Second))
	if err != nil {
		return err
	}
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer bus.Stop(ctx)

	audit := crier.HandlerFunc("orders", func(ctx context.Context, e crier.Event) error {
		return store.Append(ctx, e)
	})
	_ = bus.Register(audit)

	// fire and forget
	_ = bus.FireTopic(ctx, "orders")

	// wait for every handler
	_ = bus.Fire(ctx, crier.NewEvent("orders"), crier.Sync(true))

	// get told when every handler is done
	_ = bus.Fire(ctx, crier.NewEvent("orders"), crier.WithCallback(func(ctx context.Context, e crier.Event) {
		slog.InfoContext(ctx, "orders delivered")
	}))

# Attributes

An AttributedEvent carries key/value attributes, and an AttributedHandler
declares the attributes it requires. A handler receives an attributed event
when every required attribute is present on the event with an equal value.

Plain handlers never receive attributed events, even when they subscribe to
the same topic. Plain events reach every handler of their topic, attributed
or not.

# Failure isolation

Handler errors and panics are logged and dropped. They never reach the
producer and never stop the other handlers of the same event. The only error
a producer sees from a valid fire on a running bus is ErrWaitInterrupted,
when its context ends while it waits.

# Architecture

 1. Registry (internal/registry)
    - topic index with copy-on-write handler lists
    - a fire call works on the list as it was when the call started

 2. Matcher (internal/match)
    - narrows the topic's handlers using event attributes

 3. Worker pool (internal/workerpool)
    - bounded queue and goroutines shared by every fire call
    - waiting producers help run queued work

 4. Lifecycle (Bus.Start, Bus.Stop, package fxcrier)
    - Stop drains in-flight handlers for at most the drain timeout
*/
package crier
