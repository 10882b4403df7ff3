// Package metrics exposes prometheus collectors for the coin pulser.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/coin-pulser/internal/logic"
	"github.com/sweeney/coin-pulser/internal/status"
)

const namespace = "coin_pulser"

// Result label values for PulsesTotal.
const (
	ResultAccepted = "accepted"
	ResultDropped  = "dropped"
	ResultFailed   = "failed"
)

// Metrics holds every collector on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	PulsesTotal        *prometheus.CounterVec
	ButtonPressesTotal prometheus.Counter
	SerialLinesTotal   *prometheus.CounterVec
	RelayActive        prometheus.Gauge
	ConfigUpdatesTotal *prometheus.CounterVec
	EventsDroppedTotal prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PulsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulses_total",
			Help:      "Pulse requests by source and outcome.",
		}, []string{"source", "result"}),
		ButtonPressesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_presses_total",
			Help:      "Debounced button presses.",
		}),
		SerialLinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_lines_total",
			Help:      "Complete serial lines by parsed command.",
		}, []string{"command"}),
		RelayActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_active",
			Help:      "1 while the relay is driven on.",
		}),
		ConfigUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_updates_total",
			Help:      "Accepted configuration fields.",
		}, []string{"field"}),
		EventsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Pulse events discarded because the event queue was full.",
		}),
	}
	m.Registry.MustRegister(
		m.PulsesTotal,
		m.ButtonPressesTotal,
		m.SerialLinesTotal,
		m.RelayActive,
		m.ConfigUpdatesTotal,
		m.EventsDroppedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePulse counts a relay outcome. PULSE_END is not counted here.
func (m *Metrics) ObservePulse(e logic.Event) {
	switch e.Type {
	case logic.EventPulseStart:
		m.PulsesTotal.WithLabelValues(status.SourceKey(e.Source), ResultAccepted).Inc()
	case logic.EventPulseDropped:
		m.PulsesTotal.WithLabelValues(status.SourceKey(e.Source), ResultDropped).Inc()
	case logic.EventPulseFailed:
		m.PulsesTotal.WithLabelValues(status.SourceKey(e.Source), ResultFailed).Inc()
	}
}

// SetRelay mirrors the relay state.
func (m *Metrics) SetRelay(active bool) {
	if active {
		m.RelayActive.Set(1)
		return
	}
	m.RelayActive.Set(0)
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
