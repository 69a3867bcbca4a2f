package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	KeysProcessed  *prometheus.CounterVec
	APIErrors      prometheus.Counter
	RequestSeconds prometheus.Histogram
	ActiveWorkers  prometheus.Gauge
	RecordsFlushed prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		KeysProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "onemap_keys_processed_total",
			Help: "Total number of postal codes resolved, by terminal status.",
		}, []string{"status"}),
		APIErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "onemap_api_errors_total",
			Help: "Total number of permanent errors received from the OneMap API.",
		}),
		RequestSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "onemap_search_request_duration_seconds",
			Help:    "Duration of search requests to the OneMap API.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "onemap_active_workers",
			Help: "Current number of workers fetching postal codes.",
		}),
		RecordsFlushed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "onemap_records_flushed_total",
			Help: "Total number of building records flushed to the output sink.",
		}),
	}
}
