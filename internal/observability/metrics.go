// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/hookevents/pkg/hook"
)

// Status label values for hook invocation metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// HookMetrics records every hook invocation a hook.Registry performs.
// It implements hook.Recorder.
type HookMetrics struct {
	Invocations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Callbacks   prometheus.Histogram
}

var _ hook.Recorder = (*HookMetrics)(nil)

// NewHookMetrics creates hook metrics and registers them with reg.
// Panics if registration fails (following prometheus convention).
func NewHookMetrics(reg prometheus.Registerer) *HookMetrics {
	m := &HookMetrics{
		Invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookevents_hook_invocations_total",
				Help: "Total number of hook invocations by kind, hook, and status",
			},
			[]string{"kind", "hook", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hookevents_hook_duration_seconds",
				Help:    "Hook invocation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "hook"},
		),
		Callbacks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hookevents_hook_callbacks",
				Help:    "Number of callbacks run per hook invocation",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
	}

	reg.MustRegister(m.Invocations, m.Duration, m.Callbacks)
	return m
}

// RecordHook implements hook.Recorder.
func (m *HookMetrics) RecordHook(kind hook.Kind, name string, callbacks int, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.Invocations.WithLabelValues(string(kind), name, status).Inc()
	m.Duration.WithLabelValues(string(kind), name).Observe(elapsed.Seconds())
	m.Callbacks.Observe(float64(callbacks))
}
