package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riskibarqy/fixture-harvester/internal/platform/resilience"
	"github.com/riskibarqy/fixture-harvester/internal/usecase"
)

const namespace = "fixture_harvester"

// Collector implements usecase.Metrics and fetch.Observer on one registry.
type Collector struct {
	registry *prometheus.Registry

	listingPages     *prometheus.CounterVec
	listingWalks     *prometheus.CounterVec
	fetchTotal       *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	detailAttempts   prometheus.Histogram
	detailRecords    *prometheus.CounterVec
	sinkDuration     *prometheus.HistogramVec
	sinkErrors       *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	lastRunPublished prometheus.Gauge
	lastRunSuccess   prometheus.Gauge
	breakerState     *prometheus.GaugeVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		listingPages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_pages_total",
			Help:      "Listing pages fetched, by league.",
		}, []string{"league"}),
		listingWalks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_walks_total",
			Help:      "Finished listing walks, by league and stop reason.",
		}, []string{"league", "stop_reason"}),
		fetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "HTTP fetch attempts, by outcome.",
		}, []string{"outcome"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "HTTP fetch latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		detailAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detail_attempts",
			Help:      "Attempts spent per detail page.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		detailRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_records_total",
			Help:      "Detail retrievals, by result.",
		}, []string{"result"}),
		sinkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_write_duration_seconds",
			Help:      "Snapshot write latency per sink.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
		sinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_write_errors_total",
			Help:      "Failed snapshot writes per sink.",
		}, []string{"sink"}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Harvest runs, by status.",
		}, []string{"status"}),
		lastRunPublished: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_published_fixtures",
			Help:      "Fixtures published by the last successful run.",
		}),
		lastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_circuit_state",
			Help:      "1 for the current fetch circuit breaker state.",
		}, []string{"state"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) ListingWalked(league string, pages int, stopReason string) {
	c.listingPages.WithLabelValues(league).Add(float64(pages))
	c.listingWalks.WithLabelValues(league, stopReason).Inc()
}

func (c *Collector) DetailRetrieved(degraded bool, attempts int) {
	result := "ok"
	if degraded {
		result = "degraded"
	}
	c.detailRecords.WithLabelValues(result).Inc()
	c.detailAttempts.Observe(float64(attempts))
}

func (c *Collector) SinkWritten(sink string, elapsed time.Duration, err error) {
	c.sinkDuration.WithLabelValues(sink).Observe(elapsed.Seconds())
	if err != nil {
		c.sinkErrors.WithLabelValues(sink).Inc()
	}
}

func (c *Collector) RunFinished(summary usecase.RunSummary, err error) {
	switch {
	case err == nil:
		c.runsTotal.WithLabelValues("success").Inc()
		c.lastRunPublished.Set(float64(summary.Published))
		c.lastRunSuccess.SetToCurrentTime()
	case errors.Is(err, usecase.ErrRunLocked):
		c.runsTotal.WithLabelValues("skipped").Inc()
	default:
		c.runsTotal.WithLabelValues("failed").Inc()
	}
}

func (c *Collector) ObserveFetch(outcome string, elapsed time.Duration) {
	c.fetchTotal.WithLabelValues(outcome).Inc()
	c.fetchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// BreakerStateChanged matches resilience.CircuitBreakerConfig.OnStateChange.
func (c *Collector) BreakerStateChanged(from, to resilience.CircuitState) {
	c.breakerState.WithLabelValues(string(from)).Set(0)
	c.breakerState.WithLabelValues(string(to)).Set(1)
}
