package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the viewer.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits     *prometheus.CounterVec
	CacheMisses   prometheus.Counter
	Installs      *prometheus.CounterVec
	Activations   prometheus.Counter
	StaleBuckets  prometheus.Counter
	CacheClients  prometheus.Gauge
	ViewsRendered *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catechiseme_asset_cache_hits_total",
			Help: "Requests answered from the active asset bucket",
		}, []string{"path"}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "catechiseme_asset_cache_misses_total",
			Help: "Requests passed through to the network handler",
		}),
		Installs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catechiseme_asset_cache_installs_total",
			Help: "Asset cache installations by outcome",
		}, []string{"outcome"}),
		Activations: f.NewCounter(prometheus.CounterOpts{
			Name: "catechiseme_asset_cache_activations_total",
			Help: "Asset cache versions activated",
		}),
		StaleBuckets: f.NewCounter(prometheus.CounterOpts{
			Name: "catechiseme_asset_cache_buckets_deleted_total",
			Help: "Stale asset buckets deleted on activation",
		}),
		CacheClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "catechiseme_asset_cache_clients",
			Help: "Page contexts connected to the update channel",
		}),
		ViewsRendered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catechiseme_views_rendered_total",
			Help: "View fragments rendered, by view",
		}, []string{"view"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheHit implements assetcache.Observer.
func (m *Metrics) CacheHit(path string) { m.CacheHits.WithLabelValues(path).Inc() }

// CacheMiss implements assetcache.Observer.
func (m *Metrics) CacheMiss(string) { m.CacheMisses.Inc() }

// Installed implements assetcache.Observer.
func (m *Metrics) Installed(_ string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "installed"
	}
	m.Installs.WithLabelValues(outcome).Inc()
}

// Activated implements assetcache.Observer.
func (m *Metrics) Activated(string) { m.Activations.Inc() }

// BucketsDeleted implements assetcache.Observer.
func (m *Metrics) BucketsDeleted(n int) { m.StaleBuckets.Add(float64(n)) }

// ClientsConnected implements assetcache.Observer.
func (m *Metrics) ClientsConnected(n int) { m.CacheClients.Set(float64(n)) }

// ViewRendered counts one rendered view fragment.
func (m *Metrics) ViewRendered(view string) { m.ViewsRendered.WithLabelValues(view).Inc() }
