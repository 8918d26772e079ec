// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "warden"
	metricsSubsystem = "rpc"
)

// Metrics counts what happens on a Transport or Server. One Metrics
// may be shared by several endpoints.
type Metrics struct {
	// Calls counts completed outbound calls by outcome: "ok", "error"
	// (remote error), or the transport error kind.
	Calls *prometheus.CounterVec
	// Handled counts inbound requests and notifications by outcome.
	Handled *prometheus.CounterVec
	// DroppedResponses counts responses with no pending call: late
	// responses to timed-out calls and duplicates.
	DroppedResponses prometheus.Counter
	// Reconnects counts reconnect attempts, successful or not.
	Reconnects prometheus.Counter
	// Pending is the number of outbound calls awaiting a response.
	Pending prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registerer
// when it is non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "calls_total",
			Help:      "Outbound RPC calls by outcome.",
		}, []string{"outcome"}),
		Handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "handled_total",
			Help:      "Inbound RPC requests and notifications by outcome.",
		}, []string{"outcome"}),
		DroppedResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "dropped_responses_total",
			Help:      "Responses that matched no pending call.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts after a lost connection.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pending_calls",
			Help:      "Outbound calls awaiting a response.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(
			metrics.Calls,
			metrics.Handled,
			metrics.DroppedResponses,
			metrics.Reconnects,
			metrics.Pending,
		)
	}
	return metrics
}

func (m *Metrics) observeCall(err error) {
	m.Calls.WithLabelValues(outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if transportErr, ok := asTransportError(err); ok {
		return transportErr.Kind.String()
	}
	return "error"
}
