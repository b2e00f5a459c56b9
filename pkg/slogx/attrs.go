package slogx

import (
	"fmt"
	"log/slog"
)

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyTopic is the key for the event topic attribute.
	KeyTopic = "topic"
	// KeyDispatchID is the key for the dispatch unit id attribute.
	KeyDispatchID = "dispatch_id"
	// KeyHandler is the key for the handler type attribute.
	KeyHandler = "handler"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
//
// Parameters:
//   - err: The error to be converted into a slog.Attr.
//
// Returns:
//   - slog.Attr: An attribute with the key "error" and the error's message as the value.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Topic returns the attribute for an event topic.
func Topic(topic string) slog.Attr {
	return slog.String(KeyTopic, topic)
}

// DispatchID creates a slog.Attr for the id of a dispatch unit, so the log
// lines of every handler invoked for one fire call can be correlated.
//
// Parameters:
//   - id: Anything with a string form, typically a uuid.UUID.
//
// Returns:
//   - slog.Attr: An attribute keyed by KeyDispatchID.
func DispatchID(id fmt.Stringer) slog.Attr {
	return slog.String(KeyDispatchID, id.String())
}

// HandlerType names a handler by its dynamic Go type.
func HandlerType(h any) slog.Attr {
	return slog.String(KeyHandler, fmt.Sprintf("%T", h))
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}
