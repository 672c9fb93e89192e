package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives metrics emitted by the directory client, the shop
// service, the task queue and the session sweeper. Calls happen inline on
// request paths.
type Collector interface {
	IncUpstreamRequest(api, outcome string)
	IncShopOperation(op, outcome string)
	IncTask(name, outcome string)
	SetActiveSessions(n int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncUpstreamRequest(string, string) {}
func (noopCollector) IncShopOperation(string, string)   {}
func (noopCollector) IncTask(string, string)            {}
func (noopCollector) SetActiveSessions(int)             {}

// PrometheusCollector exposes the counters via Prometheus.
type PrometheusCollector struct {
	upstream *prometheus.CounterVec
	shopOps  *prometheus.CounterVec
	tasks    *prometheus.CounterVec
	sessions prometheus.Gauge
}

// NewPrometheusCollector registers the required metrics with the provided registerer.
// Metrics that are already registered are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	upstream, err := registerCounter(reg, prometheus.CounterOpts{
		Name: "coffee_finder_upstream_requests_total",
		Help: "Calls to third-party APIs by api and outcome.",
	}, []string{"api", "outcome"})
	if err != nil {
		return nil, err
	}
	shopOps, err := registerCounter(reg, prometheus.CounterOpts{
		Name: "coffee_finder_shop_operations_total",
		Help: "Persistence operations on coffee shops by operation and outcome.",
	}, []string{"op", "outcome"})
	if err != nil {
		return nil, err
	}
	tasks, err := registerCounter(reg, prometheus.CounterOpts{
		Name: "coffee_finder_background_tasks_total",
		Help: "Background tasks executed by name and outcome.",
	}, []string{"name", "outcome"})
	if err != nil {
		return nil, err
	}
	sessions, err := registerGauge(reg, prometheus.GaugeOpts{
		Name: "coffee_finder_active_sessions",
		Help: "Visitor sessions held in memory after the last sweep.",
	})
	if err != nil {
		return nil, err
	}
	return &PrometheusCollector{upstream: upstream, shopOps: shopOps, tasks: tasks, sessions: sessions}, nil
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, opts prometheus.GaugeOpts) (prometheus.Gauge, error) {
	gauge := prometheus.NewGauge(opts)
	if err := reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return gauge, nil
}

func (c *PrometheusCollector) IncUpstreamRequest(api, outcome string) {
	c.upstream.WithLabelValues(api, outcome).Inc()
}

func (c *PrometheusCollector) IncShopOperation(op, outcome string) {
	c.shopOps.WithLabelValues(op, outcome).Inc()
}

func (c *PrometheusCollector) IncTask(name, outcome string) {
	c.tasks.WithLabelValues(name, outcome).Inc()
}

func (c *PrometheusCollector) SetActiveSessions(n int) {
	c.sessions.Set(float64(n))
}

// Outcome maps an error to the label value used by all counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
