package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "timelinetree"

// Metrics holds the pipeline's Prometheus instruments. All instruments are
// registered on a private registry so repeated construction in tests never
// collides.
type Metrics struct {
	registry *prometheus.Registry

	CommitsWritten   prometheus.Counter
	TokensAdded      prometheus.Counter
	TokensRemoved    prometheus.Counter
	TokensMoved      prometheus.Counter
	TokensEvolved    prometheus.Counter
	RenamesDetected  prometheus.Counter
	ChurnCapped      prometheus.Counter
	OffsetMismatches prometheus.Counter
	CommitSeconds    prometheus.Histogram
}

// NewMetrics creates and registers the pipeline instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := func(name, help string) prometheus.Counter {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(counter)

		return counter
	}

	m := &Metrics{
		registry:         registry,
		CommitsWritten:   factory("commits_written_total", "History commits appended to the store."),
		TokensAdded:      factory("tokens_added_total", "Tokens classified as independently added."),
		TokensRemoved:    factory("tokens_removed_total", "Tokens classified as independently removed."),
		TokensMoved:      factory("tokens_moved_total", "Tokens explained as moved."),
		TokensEvolved:    factory("tokens_evolved_total", "Tokens explained as evolved."),
		RenamesDetected:  factory("renames_detected_total", "File movements detected between a revision and a parent."),
		ChurnCapped:      factory("churn_capped_clusters_total", "Clusters that fell back to histogram matching."),
		OffsetMismatches: factory("offset_mismatches_total", "Files skipped over inconsistent diff offsets."),
	}

	m.CommitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "commit_duration_seconds",
		Help:      "Wall time to derive and write one revision.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	registry.MustRegister(m.CommitSeconds)

	return m
}

// Handler returns the /metrics scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the scrape endpoint on addr. It blocks, so callers run it in
// a goroutine; errors surface on the returned channel.
func (m *Metrics) Serve(addr string) <-chan error {
	errs := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	go func() {
		errs <- http.ListenAndServe(addr, mux)
	}()

	return errs
}
