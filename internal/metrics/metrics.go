// Package metrics exports session cache events to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nutrilogic/datacache"
)

// Event label values.
const (
	EventHit        = "hit"
	EventMiss       = "miss"
	EventExpire     = "expire"
	EventSet        = "set"
	EventInvalidate = "invalidate"
)

// Cache implements datacache.Metrics with a private registry.
type Cache struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

var _ datacache.Metrics = (*Cache)(nil)

// NewCache creates the collectors under namespace.
func NewCache(namespace string) *Cache {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session_cache",
		Name:      "events_total",
		Help:      "Session cache events by type",
	}, []string{"event"})
	registry.MustRegister(events)

	// Pre-create series so they export as zero before the first event.
	for _, e := range []string{EventHit, EventMiss, EventExpire, EventSet, EventInvalidate} {
		events.WithLabelValues(e)
	}
	return &Cache{registry: registry, events: events}
}

func (c *Cache) Hit()             { c.events.WithLabelValues(EventHit).Inc() }
func (c *Cache) Miss()            { c.events.WithLabelValues(EventMiss).Inc() }
func (c *Cache) Expire()          { c.events.WithLabelValues(EventExpire).Inc() }
func (c *Cache) Set()             { c.events.WithLabelValues(EventSet).Inc() }
func (c *Cache) Invalidate(n int) { c.events.WithLabelValues(EventInvalidate).Add(float64(n)) }

// Registry returns the registry holding the collectors.
func (c *Cache) Registry() *prometheus.Registry { return c.registry }

// Handler returns an HTTP handler for the metrics endpoint.
func (c *Cache) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
