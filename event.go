package crier

import (
	"errors"
	"fmt"
	"maps"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	plainJSON      = []byte(`{"topic":""}`)
	attributedJSON = []byte(`{"topic":"","attributes":{}}`)
)

// Event is anything published on a topic.
type Event interface {
	Topic() string
}

// AttributedEvent is an event that carries key/value attributes handlers can
// match on.
type AttributedEvent interface {
	Event
	Attributes() Attributes
}

// Attributes are the key/value pairs carried by an attributed event or
// required by an attributed handler.
type Attributes map[string]any

// NewEvent returns a plain event for topic.
func NewEvent(topic string) Event {
	return plainEvent{topic: topic}
}

// NewAttributedEvent returns an event for topic carrying a copy of attrs.
func NewAttributedEvent(topic string, attrs Attributes) AttributedEvent {
	return attributedEvent{topic: topic, attrs: maps.Clone(attrs)}
}

type plainEvent struct {
	topic string
}

func (e plainEvent) Topic() string { return e.topic }

func (e plainEvent) String() string { return e.topic }

// MarshalJSON implements custom JSON marshaling for plain events
func (e plainEvent) MarshalJSON() ([]byte, error) {
	return sjson.SetBytes(plainJSON, "topic", e.topic)
}

type attributedEvent struct {
	topic string
	attrs Attributes
}

func (e attributedEvent) Topic() string { return e.topic }

// Attributes returns a copy of the event attributes.
func (e attributedEvent) Attributes() Attributes { return maps.Clone(e.attrs) }

func (e attributedEvent) String() string { return fmt.Sprintf("%s%v", e.topic, map[string]any(e.attrs)) }

// MarshalJSON implements custom JSON marshaling for attributed events
func (e attributedEvent) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(attributedJSON, "topic", e.topic)
	if err != nil {
		return nil, err
	}
	for k, v := range e.attrs {
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attribute %q: %w", k, err)
		}
		result, err = sjson.SetRawBytes(result, "attributes."+escapePath(k), vb)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ParseEvent decodes an event from JSON. A document with an "attributes"
// object yields an AttributedEvent; without one it yields a plain event.
func ParseEvent(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json: %s", ErrInvalidEvent, data)
	}

	topic := gjson.GetBytes(data, "topic")
	if !topic.Exists() || topic.Type != gjson.String || topic.String() == "" {
		return nil, fmt.Errorf("%w: missing required field 'topic'", ErrInvalidEvent)
	}

	attrs := gjson.GetBytes(data, "attributes")
	if !attrs.Exists() || attrs.Type == gjson.Null {
		return NewEvent(topic.String()), nil
	}
	if !attrs.IsObject() {
		return nil, fmt.Errorf("%w: 'attributes' must be an object", ErrInvalidEvent)
	}

	values, ok := attrs.Value().(map[string]any)
	if !ok {
		return nil, errors.New("unexpected attributes shape")
	}
	return attributedEvent{topic: topic.String(), attrs: values}, nil
}

// escapePath escapes the characters sjson treats as path syntax.
func escapePath(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch c := key[i]; c {
		case '.', '*', '?', '\\':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
