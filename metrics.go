package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports output states, change counts and the configuration as
// Prometheus series. It implements Notifier.
type Metrics struct {
	registry *prometheus.Registry
	active   *prometheus.GaugeVec
	changes  *prometheus.CounterVec
	mode     *prometheus.GaugeVec
	timeout  prometheus.Gauge
	duty     prometheus.Gauge
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ventcontrol",
			Name:      "output_active",
			Help:      "Whether an output is currently switched on.",
		}, []string{"output"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ventcontrol",
			Name:      "attribute_changes_total",
			Help:      "Number of change notifications per attribute.",
		}, []string{"attribute"}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ventcontrol",
			Name:      "target_mode",
			Help:      "Target mode per output, 0 manual and 1 auto.",
		}, []string{"output"}),
		timeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ventcontrol",
			Name:      "fan_timeout_minutes",
			Help:      "Auto-off timeout for manual demand.",
		}),
		duty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ventcontrol",
			Name:      "fan_duty_cycle_percent",
			Help:      "Share of each hour the fan runs in auto mode.",
		}),
	}
	m.registry.MustRegister(m.active, m.changes, m.mode, m.timeout, m.duty)
	return m
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (m *Metrics) Changed(attr Attribute, value interface{}) {
	m.changes.WithLabelValues(string(attr)).Inc()

	switch attr {
	case AttrFanActive:
		m.active.WithLabelValues("fan").Set(boolGauge(value.(bool)))
	case AttrHrvActive:
		m.active.WithLabelValues("hrv").Set(boolGauge(value.(bool)))
	case AttrFanMode:
		m.mode.WithLabelValues("fan").Set(float64(value.(Mode)))
	case AttrHrvMode:
		m.mode.WithLabelValues("hrv").Set(float64(value.(Mode)))
	case AttrFanTimeout:
		m.timeout.Set(float64(value.(uint8)))
	case AttrFanDutyCycle:
		m.duty.Set(float64(value.(uint8)))
	}
}

// seed sets every gauge from v without counting a change.
func (m *Metrics) seed(v Ventilator) {
	st := v.Status()
	m.active.WithLabelValues("fan").Set(boolGauge(st.Outputs.Fan))
	m.active.WithLabelValues("hrv").Set(boolGauge(st.Outputs.Hrv))
	m.mode.WithLabelValues("fan").Set(float64(st.FanMode))
	m.mode.WithLabelValues("hrv").Set(float64(st.HrvMode))
	m.timeout.Set(float64(st.FanTimeoutMinutes))
	m.duty.Set(float64(st.FanDutyCycle))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
