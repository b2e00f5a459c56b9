package crier

import (
	"errors"

	"github.com/casualjim/crier/internal/workerpool"
)

var (
	// ErrInvalidEvent is returned when firing a nil event or one without a topic.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidHandler is returned when registering a handler the bus cannot track.
	ErrInvalidHandler = errors.New("invalid handler")
	// ErrWaitInterrupted is returned by a blocking fire whose context ended
	// before its handlers finished. The handlers keep running.
	ErrWaitInterrupted = errors.New("wait for handlers interrupted")

	// ErrNotRunning is returned when firing on a bus that was never started
	// or has been stopped.
	ErrNotRunning = workerpool.ErrNotRunning
	// ErrAlreadyRunning is returned by Start on a running bus.
	ErrAlreadyRunning = workerpool.ErrAlreadyRunning
	// ErrClosed is returned by Start on a bus that has been stopped.
	ErrClosed = workerpool.ErrClosed
)
