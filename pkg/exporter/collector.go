package exporter

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raterudder/telenet-exporter/pkg/telenet"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// Collector exposes the last published products and the refresh outcome.
type Collector struct {
	mu       sync.RWMutex
	products []*types.Product

	productState *prometheus.Desc
	success      prometheus.Gauge
	lastSuccess  prometheus.Gauge
	totalCost    prometheus.Gauge
	errors       *prometheus.CounterVec
}

// NewCollector returns a collector without products.
func NewCollector() *Collector {
	c := &Collector{
		productState: prometheus.NewDesc(
			"telenet_product_state",
			"Numeric state of a product or derived sensor",
			[]string{"key", "identifier", "plan", "type", "unit"},
			nil,
		),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telenet_refresh_success",
			Help: "Whether the last refresh succeeded (1) or failed (0)",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telenet_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful refresh",
		}),
		totalCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telenet_total_cost_euro",
			Help: "Sum of every price and usage cost of the account in euro",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telenet_refresh_errors_total",
			Help: "Failed refreshes by error classification",
		}, []string{"kind"}),
	}
	for _, k := range []telenet.ErrorKind{telenet.KindConnection, telenet.KindService, telenet.KindCredentials, telenet.KindUnknown} {
		c.errors.WithLabelValues(k.String())
	}
	return c
}

// RecordSuccess publishes the products of a successful refresh.
func (c *Collector) RecordSuccess(products []*types.Product, totalCost float64, at time.Time) {
	c.mu.Lock()
	c.products = products
	c.mu.Unlock()
	c.success.Set(1)
	c.lastSuccess.Set(float64(at.Unix()))
	c.totalCost.Set(totalCost)
}

// ClearProducts stops publishing product states until the next success.
func (c *Collector) ClearProducts() {
	c.mu.Lock()
	c.products = nil
	c.mu.Unlock()
}

// RecordFailure counts a failed refresh. The previous products stay
// published.
func (c *Collector) RecordFailure(kind telenet.ErrorKind) {
	c.success.Set(0)
	c.errors.WithLabelValues(kind.String()).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.productState
	c.success.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.totalCost.Describe(ch)
	c.errors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	products := c.products
	c.mu.RUnlock()

	for _, p := range products {
		v, ok := p.NumericState()
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.productState, prometheus.GaugeValue, v,
			p.Key, p.Identifier, p.PlanIdentifier, string(p.Type), p.UnitOfMeasurement(),
		)
	}
	c.success.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.totalCost.Collect(ch)
	c.errors.Collect(ch)
}
