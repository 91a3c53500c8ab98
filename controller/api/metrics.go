package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the Prometheus gauges/counters for the ambient
// observability surface: per-head dispensed volume and dose count,
// recorded by ObserveDose for completed /api/dose requests (scheduled
// doses are not counted), and a per-head dispensing gauge that is
// registered but not set by any caller in this repository. There is
// no schedule-execution or Wi-Fi mode metric.
type Metrics struct {
	registry          *prometheus.Registry
	headsDispensing   *prometheus.GaugeVec
	volumeDispensedML *prometheus.CounterVec
	doseCount         *prometheus.CounterVec
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		headsDispensing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "squaredose",
			Name:      "head_dispensing",
			Help:      "1 if the head is currently dispensing, 0 otherwise.",
		}, []string{"head"}),
		volumeDispensedML: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "squaredose",
			Name:      "volume_dispensed_ml_total",
			Help:      "Total volume dispensed per head, in milliliters.",
		}, []string{"head"}),
		doseCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "squaredose",
			Name:      "dose_total",
			Help:      "Total number of completed doses per head.",
		}, []string{"head"}),
	}
	m.registry.MustRegister(m.headsDispensing, m.volumeDispensedML, m.doseCount)
	return m
}

func (m *Metrics) ObserveDose(head int, volumeMl float64) {
	label := strconv.Itoa(head)
	m.volumeDispensedML.WithLabelValues(label).Add(volumeMl)
	m.doseCount.WithLabelValues(label).Inc()
}

func (m *Metrics) SetDispensing(head int, dispensing bool) {
	label := strconv.Itoa(head)
	if dispensing {
		m.headsDispensing.WithLabelValues(label).Set(1)
	} else {
		m.headsDispensing.WithLabelValues(label).Set(0)
	}
}
