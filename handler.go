package crier

import (
	"context"
	"maps"
)

// Handler consumes the events published on a single topic.
//
// Handle may return an error or even panic; either is logged by the bus and
// never reaches the producer or the other handlers of the same event.
//
// The bus identifies a handler by interface equality, so two registrations of
// the same pointer are the same handler. Use pointer handlers: a value handler
// must be comparable all the way down, and one holding a func, map or slice
// (directly or behind an interface field) is rejected by Register.
type Handler interface {
	Topic() string
	Handle(context.Context, Event) error
}

// AttributedHandler is a handler that only wants attributed events whose
// attributes include all of RequiredAttributes.
//
// Because the bus reads the requirement once at registration, it must not
// change while the handler is registered.
type AttributedHandler interface {
	Handler
	RequiredAttributes() Attributes
}

// HandlerFunc adapts fn into a plain Handler for topic.
func HandlerFunc(topic string, fn func(context.Context, Event) error) Handler {
	return &funcHandler{topic: topic, fn: fn}
}

// AttributedHandlerFunc adapts fn into an AttributedHandler for topic that
// requires a copy of required.
func AttributedHandlerFunc(topic string, required Attributes, fn func(context.Context, Event) error) AttributedHandler {
	return &attributedFuncHandler{
		funcHandler: funcHandler{topic: topic, fn: fn},
		required:    maps.Clone(required),
	}
}

type funcHandler struct {
	topic string
	fn    func(context.Context, Event) error
}

func (h *funcHandler) Topic() string { return h.topic }

func (h *funcHandler) Handle(ctx context.Context, e Event) error {
	return h.fn(ctx, e)
}

type attributedFuncHandler struct {
	funcHandler
	required Attributes
}

func (h *attributedFuncHandler) RequiredAttributes() Attributes { return maps.Clone(h.required) }
