// Package metrics exposes dispatch counters as Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crier"

// Outcome labels for handler invocations.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePanic   = "panic"
)

type Metrics struct {
	Fired       *prometheus.CounterVec
	Unhandled   prometheus.Counter
	Invocations *prometheus.CounterVec
	Duration    prometheus.Histogram
	Interrupted prometheus.Counter
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which keeps the bus usable without a metrics backend.
// Collectors that are already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_fired_total",
			Help:      "Events fired, by wait mode.",
		}, []string{"mode"}),
		Unhandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_unhandled_total",
			Help:      "Events fired on a topic with no matching handler.",
		}),
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_invocations_total",
			Help:      "Handler invocations, by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent inside handlers.",
			Buckets:   prometheus.DefBuckets,
		}),
		Interrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waits_interrupted_total",
			Help:      "Blocking fires whose wait was interrupted.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	m.Fired, err = register(reg, m.Fired)
	if err != nil {
		return nil, err
	}
	m.Unhandled, err = register(reg, m.Unhandled)
	if err != nil {
		return nil, err
	}
	m.Invocations, err = register(reg, m.Invocations)
	if err != nil {
		return nil, err
	}
	m.Duration, err = register(reg, m.Duration)
	if err != nil {
		return nil, err
	}
	m.Interrupted, err = register(reg, m.Interrupted)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe records one handler invocation.
func (m *Metrics) Observe(outcome string, elapsed time.Duration) {
	m.Invocations.WithLabelValues(outcome).Inc()
	m.Duration.Observe(elapsed.Seconds())
}
