package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"crosspost/internal/social"
)

// Metrics collects per-run counters. A nil *Metrics discards everything.
type Metrics struct {
	registry      *prometheus.Registry
	triples       *prometheus.CounterVec
	feeds         *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	lengthRetries prometheus.Counter
	lastRun       prometheus.Gauge
	runDuration   prometheus.Gauge
	runFailed     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.triples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosspost",
		Name:      "items_total",
		Help:      "Feed item evaluations per network by outcome",
	}, []string{"network", "outcome"})
	m.feeds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosspost",
		Name:      "feeds_total",
		Help:      "Feed loads by outcome",
	}, []string{"outcome"})
	m.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosspost",
		Name:      "token_refreshes_total",
		Help:      "OAuth token refreshes by network and outcome",
	}, []string{"network", "outcome"})
	m.lengthRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "crosspost",
		Name:      "twitter_length_retries_total",
		Help:      "Tweets re-rendered with a smaller budget after a length rejection",
	})
	m.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "crosspost",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last syndication run finished",
	})
	m.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "crosspost",
		Name:      "last_run_duration_seconds",
		Help:      "Duration of the last syndication run",
	})
	m.runFailed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "crosspost",
		Name:      "last_run_failed",
		Help:      "1 if the last syndication run reported an error",
	})
	m.registry.MustRegister(m.triples, m.feeds, m.refreshes, m.lengthRetries, m.lastRun, m.runDuration, m.runFailed)
	return m
}

func (m *Metrics) ObserveItem(network social.Network, outcome string) {
	if m == nil {
		return
	}
	m.triples.WithLabelValues(network.String(), outcome).Inc()
}

func (m *Metrics) ObserveFeed(err error) {
	if m == nil {
		return
	}
	m.feeds.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveRefresh(network social.Network, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(network.String(), outcome(err)).Inc()
}

func (m *Metrics) ObserveLengthRetry(int) {
	if m == nil {
		return
	}
	m.lengthRetries.Inc()
}

func (m *Metrics) ObserveRun(started time.Time, err error) {
	if m == nil {
		return
	}
	now := time.Now()
	m.lastRun.Set(float64(now.Unix()))
	m.runDuration.Set(now.Sub(started).Seconds())
	if err != nil {
		m.runFailed.Set(1)
	} else {
		m.runFailed.Set(0)
	}
}

// WriteFile writes all metrics in the text exposition format, for node
// exporter's textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
