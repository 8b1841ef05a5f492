// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package metrics exposes the Connection Coordinator's pool and breaker
// state as Prometheus gauges, for the optional status/health HTTP surface
// (spec.md §4.8). Nothing in the synthesis pipeline depends on this
// package; it only reads a coordinator's Status snapshot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rapidaai/edgetts/internal/breaker"
)

// Collector publishes a coordinator's Status as Prometheus gauges.
type Collector struct {
	activeConnections prometheus.Gauge
	queuedRequests    prometheus.Gauge
	breakerState      prometheus.Gauge
	breakerFailures   prometheus.Gauge
}

// NewCollector registers the gauges on reg and returns a Collector ready
// to be fed Status snapshots.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgetts_active_connections",
			Help: "Number of synthesis connections currently open.",
		}),
		queuedRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgetts_queued_requests",
			Help: "Number of synthesis requests waiting for pool admission.",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgetts_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half_open, 2=open.",
		}),
		breakerFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgetts_breaker_failure_count",
			Help: "Consecutive connection failures counted by the circuit breaker.",
		}),
	}
	reg.MustRegister(c.activeConnections, c.queuedRequests, c.breakerState, c.breakerFailures)
	return c
}

func breakerStateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateClosed:
		return 0
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Observe updates every gauge from one Status snapshot.
func (c *Collector) Observe(active, queued, failures int, state breaker.State) {
	c.activeConnections.Set(float64(active))
	c.queuedRequests.Set(float64(queued))
	c.breakerFailures.Set(float64(failures))
	c.breakerState.Set(breakerStateValue(state))
}
