package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline and the classification API.
type Metrics struct {
	TweetsFetched        prometheus.Counter
	NormalizationDropped prometheus.Counter
	LabelingDropped      prometheus.Counter
	TweetsSaved          prometheus.Counter
	LocationFiltered     prometheus.Counter
	IngestRunning        prometheus.Gauge
	FetchAttempts        *prometheus.CounterVec // labels: outcome={success,rate_limited,server_error,transport_error,client_error}
	FetchDuration        prometheus.Histogram
	TokenRotations       prometheus.Counter
	StoreCorruptLines    prometheus.Counter
	Predictions          *prometheus.CounterVec // labels: verdict={disaster,not_disaster}
	PredictDuration      prometheus.Histogram
	EventStreamEnabled   prometheus.Gauge
	EventStreamFailures  prometheus.Counter
	EventsStored         prometheus.Counter
	EventQueries         prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TweetsFetched,
		m.NormalizationDropped,
		m.LabelingDropped,
		m.TweetsSaved,
		m.LocationFiltered,
		m.IngestRunning,
		m.FetchAttempts,
		m.FetchDuration,
		m.TokenRotations,
		m.StoreCorruptLines,
		m.Predictions,
		m.PredictDuration,
		m.EventStreamEnabled,
		m.EventStreamFailures,
		m.EventsStored,
		m.EventQueries,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TweetsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_etl",
			Name:      "tweets_fetched_total",
			Help:      "Total tweets returned by the search API after location filtering.",
		}),
		NormalizationDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_etl",
			Name:      "normalization_dropped_total",
			Help:      "Tweets dropped because the cleaned text fell below the minimum length.",
		}),
		LabelingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_etl",
			Name:      "labeling_dropped_total",
			Help:      "Tweets dropped because the labeler failed for that item.",
		}),
		TweetsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_etl",
			Name:      "tweets_saved_total",
			Help:      "Labeled tweets persisted to the JSONL store.",
		}),
		LocationFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_etl",
			Name:      "location_filtered_total",
			Help:      "Tweets excluded by the post-fetch location filter.",
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crisis_etl",
			Name:      "ingest_running",
			Help:      "1 while an ingestion run is active, 0 otherwise.",
		}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_etl",
			Name:      "fetch_attempts_total",
			Help:      "Search API request attempts by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crisis_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of search API requests in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		TokenRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_etl",
			Name:      "token_rotations_total",
			Help:      "Successful bearer token rotations triggered by rate limiting.",
		}),
		StoreCorruptLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_etl",
			Name:      "store_corrupt_lines_total",
			Help:      "Unparseable lines skipped while loading the JSONL store.",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_api",
			Name:      "predictions_total",
			Help:      "Classification verdicts served by verdict.",
		}, []string{"verdict"}),
		PredictDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crisis_api",
			Name:      "predict_duration_seconds",
			Help:      "End-to-end duration of /predict-tweet requests.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		EventStreamEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crisis_api",
			Name:      "event_stream_enabled",
			Help:      "1 when the Kafka event stream is enabled, 0 otherwise.",
		}),
		EventStreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_api",
			Name:      "event_stream_failures_total",
			Help:      "Classification events that could not be published to Kafka.",
		}),
		EventsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_api",
			Name:      "events_stored_total",
			Help:      "Classification events inserted into the event store.",
		}),
		EventQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisis_api",
			Name:      "event_queries_total",
			Help:      "Range queries served by the /events endpoint.",
		}),
	}
}
