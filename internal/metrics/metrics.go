package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	crawlerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crawlpost",
			Subsystem: "crawler",
			Name:      "starts_total",
			Help:      "Number of successful crawler starts.",
		}, []string{"platform"},
	)
	crawlerStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crawlpost",
			Subsystem: "crawler",
			Name:      "stops_total",
			Help:      "Number of crawler stop requests that signalled a live process.",
		},
	)
	crawlerConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crawlpost",
			Subsystem: "crawler",
			Name:      "conflicts_total",
			Help:      "Start requests rejected as already running, and stop requests rejected as not running.",
		}, []string{"op"},
	)
	crawlerRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crawlpost",
			Subsystem: "crawler",
			Name:      "running",
			Help:      "1 while a crawler process is alive.",
		},
	)
	crawlerCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crawlpost",
			Subsystem: "crawler",
			Name:      "cpu_percent",
			Help:      "CPU usage of the crawler process at the last status probe.",
		},
	)
	crawlerRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crawlpost",
			Subsystem: "crawler",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the crawler process at the last status probe.",
		},
	)

	loginSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crawlpost",
			Subsystem: "login",
			Name:      "sessions_total",
			Help:      "Login sessions created.",
		}, []string{"platform"},
	)
	loginOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crawlpost",
			Subsystem: "login",
			Name:      "outcomes_total",
			Help:      "Login sessions by final status.",
		}, []string{"platform", "status"},
	)
	loginLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crawlpost",
			Subsystem: "login",
			Name:      "live_sessions",
			Help:      "Sessions currently held by the registry.",
		},
	)

	publishDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crawlpost",
			Subsystem: "publish",
			Name:      "dispatches_total",
			Help:      "Publish tasks handed to an uploader, by result.",
		}, []string{"platform", "kind", "result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		crawlerStarts, crawlerStops, crawlerConflicts, crawlerRunning, crawlerCPU, crawlerRSS,
		loginSessions, loginOutcomes, loginLive,
		publishDispatches,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCrawlerStart(platform string) {
	if regOK.Load() {
		crawlerStarts.WithLabelValues(platform).Inc()
	}
}

func IncCrawlerStop() {
	if regOK.Load() {
		crawlerStops.Inc()
	}
}

// IncCrawlerConflict counts a rejected "start" or "stop".
func IncCrawlerConflict(op string) {
	if regOK.Load() {
		crawlerConflicts.WithLabelValues(op).Inc()
	}
}

func SetCrawlerRunning(running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		crawlerRunning.Set(v)
	}
}

func SetCrawlerUsage(u Usage) {
	if regOK.Load() {
		crawlerCPU.Set(u.CPUPercent)
		crawlerRSS.Set(float64(u.MemoryRSS))
	}
}

func IncLoginSession(platform string) {
	if regOK.Load() {
		loginSessions.WithLabelValues(platform).Inc()
		loginLive.Inc()
	}
}

func IncLoginOutcome(platform, status string) {
	if regOK.Load() {
		loginOutcomes.WithLabelValues(platform, status).Inc()
	}
}

// DecLiveSessions is called when the registry drops a session.
func DecLiveSessions() {
	if regOK.Load() {
		loginLive.Dec()
	}
}

func IncPublish(platform, kind, result string) {
	if regOK.Load() {
		publishDispatches.WithLabelValues(platform, kind, result).Inc()
	}
}
