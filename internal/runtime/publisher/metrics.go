package publisher

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Error kinds used as the "kind" label of errors_total.
const (
	ErrorKindConnection = "connection"
	ErrorKindTransform  = "transform"
)

// Metrics tracks publisher activity.
type Metrics struct {
	mu sync.Mutex

	publishedTotal  *prometheus.CounterVec
	filteredTotal   prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	connectsTotal   prometheus.Counter
	publishDuration prometheus.Histogram

	registerer prometheus.Registerer
	registered bool
}

func newCounterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: "acapi",
		Subsystem: "publisher",
		Name:      name,
		Help:      help,
	}
}

// NewMetrics creates the publisher collectors. A nil registerer means the
// default Prometheus registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:     registerer,
		publishedTotal: prometheus.NewCounterVec(newCounterOpts("events_published_total", "Events forwarded to the local broker"), []string{"routing_key"}),
		filteredTotal:  prometheus.NewCounter(newCounterOpts("events_filtered_total", "Events dropped because they already carried an app_id")),
		errorsTotal:    prometheus.NewCounterVec(newCounterOpts("errors_total", "Events that could not be forwarded"), []string{"kind"}),
		connectsTotal:  prometheus.NewCounter(newCounterOpts("connects_total", "Completed connect, declare and bind sequences")),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "acapi",
			Subsystem: "publisher",
			Name:      "publish_duration_seconds",
			Help:      "Time spent in a single publish, including any connect",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	for _, c := range m.collectors() {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.publishedTotal,
		m.filteredTotal,
		m.errorsTotal,
		m.connectsTotal,
		m.publishDuration,
	}
}

func (m *Metrics) recordPublished(routingKey string, took time.Duration) {
	if m == nil {
		return
	}
	m.publishedTotal.WithLabelValues(routingKey).Inc()
	m.publishDuration.Observe(took.Seconds())
}

func (m *Metrics) recordFiltered() {
	if m == nil {
		return
	}
	m.filteredTotal.Inc()
}

func (m *Metrics) recordError(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordConnect() {
	if m == nil {
		return
	}
	m.connectsTotal.Inc()
}
