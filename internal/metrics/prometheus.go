package metrics

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// namespace and subsystem names used for every collector registered by this
// package.
const (
	namespace       = "sb4"
	subsystemUpdate = "update"
	subsystemLookup = "lookup"
)

// Prometheus is a [Updates] and [Lookups] implementation backed by
// Prometheus collectors.
type Prometheus struct {
	updatesTotal    *prometheus.CounterVec
	listPrefixCount *prometheus.GaugeVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	fullHashReqs    prometheus.Counter
}

// type check
var (
	_ Updates = (*Prometheus)(nil)
	_ Lookups = (*Prometheus)(nil)
)

// NewPrometheus registers the metrics collectors in reg and returns a
// properly initialized *Prometheus.
func NewPrometheus(reg prometheus.Registerer) (m *Prometheus, err error) {
	m = &Prometheus{
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "requests_total",
			Namespace: namespace,
			Subsystem: subsystemUpdate,
			Help:      "Total number of update engine runs by resulting status.",
		}, []string{"status"}),
		listPrefixCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      "list_prefix_count",
			Namespace: namespace,
			Subsystem: subsystemUpdate,
			Help:      "Current number of stored hash prefixes, by threat list.",
		}, []string{"list"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "cache_hits_total",
			Namespace: namespace,
			Subsystem: subsystemLookup,
			Help:      "Total number of full-hash cache lookups that hit.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "cache_misses_total",
			Namespace: namespace,
			Subsystem: subsystemLookup,
			Help:      "Total number of full-hash cache lookups that missed.",
		}),
		fullHashReqs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "full_hash_requests_total",
			Namespace: namespace,
			Subsystem: subsystemLookup,
			Help:      "Total number of full-hash confirmation requests sent to the service.",
		}),
	}

	collectors := []prometheus.Collector{
		m.updatesTotal,
		m.listPrefixCount,
		m.cacheHits,
		m.cacheMisses,
		m.fullHashReqs,
	}

	var errs []error
	for _, c := range collectors {
		regErr := reg.Register(c)
		if regErr != nil {
			errs = append(errs, fmt.Errorf("registering collector: %w", regErr))
		}
	}

	if err = errors.Join(errs...); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveUpdate implements the [Updates] interface for *Prometheus.
func (m *Prometheus) ObserveUpdate(status string) {
	m.updatesTotal.WithLabelValues(status).Inc()
}

// SetListPrefixCount implements the [Updates] interface for *Prometheus.
func (m *Prometheus) SetListPrefixCount(list string, count int) {
	m.listPrefixCount.WithLabelValues(list).Set(float64(count))
}

// ObserveCacheLookup implements the [Lookups] interface for *Prometheus.
func (m *Prometheus) ObserveCacheLookup(hit bool) {
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveFullHashRequest implements the [Lookups] interface for *Prometheus.
func (m *Prometheus) ObserveFullHashRequest() {
	m.fullHashReqs.Inc()
}
