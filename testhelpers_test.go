package crier

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingLog is a slog.Handler that keeps every record.
type recordingLog struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func newRecordingLog() *recordingLog {
	return &recordingLog{mu: &sync.Mutex{}, records: &[]slog.Record{}}
}

func (r *recordingLog) Enabled(context.Context, slog.Level) bool { return true }

func (r *recordingLog) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, rec.Clone())
	return nil
}

func (r *recordingLog) WithAttrs([]slog.Attr) slog.Handler { return r }

func (r *recordingLog) WithGroup(string) slog.Handler { return r }

func (r *recordingLog) count(level slog.Level, msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, rec := range *r.records {
		if rec.Level == level && rec.Message == msg {
			n++
		}
	}
	return n
}

func (r *recordingLog) attr(msg, key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range *r.records {
		if rec.Message != msg {
			continue
		}
		var val string
		var found bool
		rec.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				val, found = a.Value.String(), true
				return false
			}
			return true
		})
		if found {
			return val, true
		}
	}
	return "", false
}

// recorder is a handler that remembers the events it received.
type recorder struct {
	topic string
	delay time.Duration
	err   error
	panic any

	mu     sync.Mutex
	events []Event
}

func newRecorder(topic string) *recorder {
	return &recorder{topic: topic}
}

func (r *recorder) Topic() string { return r.topic }

func (r *recorder) Handle(_ context.Context, e Event) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.panic != nil {
		panic(r.panic)
	}
	return r.err
}

func (r *recorder) received() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count() int {
	return len(r.received())
}

// waitFor blocks until the recorder has seen n events.
func (r *recorder) waitFor(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count() >= n }, 2*time.Second, 5*time.Millisecond)
}

type attributedRecorder struct {
	*recorder
	required Attributes
}

func newAttributedRecorder(topic string, required Attributes) *attributedRecorder {
	return &attributedRecorder{recorder: newRecorder(topic), required: required}
}

func (r *attributedRecorder) RequiredAttributes() Attributes { return r.required }

func newTestBus(t *testing.T, options ...Option) (*Bus, *recordingLog) {
	t.Helper()
	log := newRecordingLog()
	options = append([]Option{WithLogger(slog.New(log)), WithDrainTimeout(5 * time.Second)}, options...)
	bus, err := New(options...)
	require.NoError(t, err)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		_ = bus.Stop(context.Background())
	})
	return bus, log
}
