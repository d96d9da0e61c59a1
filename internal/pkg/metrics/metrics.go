package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
	"github.com/anicoll/sorel-connect/internal/pkg/sorel"
)

const namespace = "sorel_connect"

// Metrics are the poller's prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	entities      *prometheus.GaugeVec
	values        *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Discovered entities by kind.",
		}, []string{"kind"}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "value",
			Help:      "Latest value of each entity, on/off states as 1/0.",
		}, []string{"entity", "kind"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
	}
	m.Registry.MustRegister(m.cycles, m.cycleDuration, m.entities, m.values, m.lastSuccess)
	return m
}

// ObserveCatalog records how many entities of each kind were discovered.
func (m *Metrics) ObserveCatalog(catalog model.Catalog) {
	for _, kind := range model.Kinds {
		m.entities.WithLabelValues(kind.String()).Set(float64(len(catalog[kind])))
	}
}

// ObserveCycle records the outcome of one refresh cycle.
func (m *Metrics) ObserveCycle(catalog model.Catalog, values model.ValueMapping, took time.Duration, err error) {
	m.cycleDuration.Observe(took.Seconds())
	if err != nil {
		m.cycles.WithLabelValues(result(err)).Inc()
		return
	}
	m.cycles.WithLabelValues("success").Inc()
	m.lastSuccess.SetToCurrentTime()

	for _, e := range catalog.Entities() {
		v, ok := values[e.LocalID]
		if !ok {
			continue
		}
		f, isNumber := v.Float()
		if !isNumber {
			f = 0
			if v.IsOn() {
				f = 1
			}
		}
		m.values.WithLabelValues(e.LocalID, e.Kind.String()).Set(f)
	}
}

func result(err error) string {
	switch {
	case errors.Is(err, sorel.ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, sorel.ErrInvalidCredentials):
		return "invalid_credentials"
	}
	return "error"
}
