// Package metrics provides prometheus collectors for the gateway, realtime feed and view-models.
package metrics

import (
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds all collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	gatewayRetries  *prometheus.CounterVec
	realtimeEvents  *prometheus.CounterVec
	effectsDropped  *prometheus.CounterVec
	circuitState    prometheus.Gauge
}

// New creates and registers all collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Total number of requests sent to the backend gateway.",
		}, []string{"method", "resource", "status"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "resource"}),
		gatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_retries_total",
			Help:      "Gateway attempts repeated after a retryable failure.",
		}, []string{"reason"}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Realtime change events received.",
		}, []string{"table", "type"}),
		effectsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewmodel_effects_dropped_total",
			Help:      "One-shot effects dropped because nobody was consuming them.",
		}, []string{"viewmodel"}),
		circuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_circuit_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
	}

	reg.MustRegister(m.gatewayRequests, m.gatewayDuration, m.gatewayRetries, m.realtimeEvents, m.effectsDropped, m.circuitState)
	return m
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New("social")
	})
	return defaultM
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// GatewayRequests exposes the request counter for assertions.
func (m *Metrics) GatewayRequests() *prometheus.CounterVec {
	return m.gatewayRequests
}

// GatewayRetries exposes the retry counter for assertions.
func (m *Metrics) GatewayRetries() *prometheus.CounterVec {
	return m.gatewayRetries
}

// RealtimeEvents exposes the realtime event counter for assertions.
func (m *Metrics) RealtimeEvents() *prometheus.CounterVec {
	return m.realtimeEvents
}

// EffectsDropped exposes the dropped effect counter for assertions.
func (m *Metrics) EffectsDropped() *prometheus.CounterVec {
	return m.effectsDropped
}

// RecordGatewayRequest records a completed gateway call. status is 0 for transport failures.
func (m *Metrics) RecordGatewayRequest(method, resource string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.gatewayRequests.WithLabelValues(method, resource, code).Inc()
	m.gatewayDuration.WithLabelValues(method, resource).Observe(d.Seconds())
}

// RecordGatewayRetry counts a repeated attempt. reason is the status code or "network".
func (m *Metrics) RecordGatewayRetry(reason string) {
	if m == nil {
		return
	}
	m.gatewayRetries.WithLabelValues(reason).Inc()
}

// RecordRealtimeEvent counts a received change event.
func (m *Metrics) RecordRealtimeEvent(table, eventType string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(table, eventType).Inc()
}

// RecordEffectDropped counts an effect that could not be delivered.
func (m *Metrics) RecordEffectDropped(viewModel string) {
	if m == nil {
		return
	}
	m.effectsDropped.WithLabelValues(viewModel).Inc()
}

// SetCircuitState records the numeric circuit breaker state.
func (m *Metrics) SetCircuitState(state int) {
	if m == nil {
		return
	}
	m.circuitState.Set(float64(state))
}

// WriteText writes every gathered family in the prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
