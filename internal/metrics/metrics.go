// Package metrics exposes Prometheus instrumentation for the device
// monitor, notification debouncers, preference saves and the HTTP surface.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification outcomes.
const (
	OutcomeDelivered  = "delivered"
	OutcomeSuppressed = "suppressed" // dropped inside the grace period
	OutcomeDropped    = "dropped"    // device gone or not pannable
	OutcomeError      = "error"
)

// Metrics holds the process's collectors.
type Metrics struct {
	reg *prometheus.Registry

	displayed     prometheus.Gauge
	refreshes     prometheus.Counter
	notifications *prometheus.CounterVec
	osWrites      *prometheus.CounterVec
	saves         *prometheus.CounterVec
	sseClients    prometheus.Gauge
}

// New creates a registry with process and Go collectors plus panmix's own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return &Metrics{
		reg: reg,

		displayed: f.NewGauge(prometheus.GaugeOpts{
			Name: "panmix_displayed_devices",
			Help: "Devices currently in the displayable collection",
		}),
		refreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "panmix_device_refreshes_total",
			Help: "Full device refreshes run by the monitor",
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panmix_os_notifications_total",
			Help: "OS volume and pan notifications by outcome",
		}, []string{"kind", "outcome"}),
		osWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panmix_os_writes_total",
			Help: "Volume and pan applies sent to the OS by result",
		}, []string{"result"}),
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panmix_preference_saves_total",
			Help: "Preference file writes by result",
		}, []string{"result"}),
		sseClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "panmix_sse_clients",
			Help: "Connected event-stream clients",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) SetDisplayed(n int) {
	if m != nil {
		m.displayed.Set(float64(n))
	}
}

func (m *Metrics) Refreshed() {
	if m != nil {
		m.refreshes.Inc()
	}
}

// Notification counts one OS notification of kind ("volume" or "pan").
func (m *Metrics) Notification(kind, outcome string) {
	if m != nil {
		m.notifications.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) OSWrite(err error) {
	if m != nil {
		m.osWrites.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) Saved(err error) {
	if m != nil {
		m.saves.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) SSEClients(n int) {
	if m != nil {
		m.sseClients.Set(float64(n))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
