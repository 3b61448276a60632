// Package telemetry exposes the service's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collected across the service. EventsIngested is labeled by the
// dispatch kind (auth, key, job_new, job_return, other).
var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resalt_events_ingested_total",
		Help: "Master bus events consumed by the ingestion loop.",
	}, []string{"kind"})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resalt_event_stream_reconnects_total",
		Help: "Times the master event stream was re-established.",
	})

	PipelinePublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resalt_pipeline_published_total",
		Help: "Messages fanned out to pipeline subscribers.",
	})

	PipelineDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resalt_pipeline_dropped_total",
		Help: "Messages not delivered because a subscriber's queue was full.",
	})

	PipelineSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resalt_pipeline_subscribers",
		Help: "Currently attached pipeline subscribers.",
	})

	TokenRenewals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resalt_master_token_renewals_total",
		Help: "Master token renewals performed on behalf of sessions.",
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
