package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_polls_total",
		Help: "Next-match polls, by outcome (paired, empty, inbound).",
	}, []string{"outcome"})

	PairingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_sessions_created_total",
		Help: "Call sessions created by the coordinator.",
	})

	MatchesPromotedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matches_promoted_total",
		Help: "Call sessions promoted to durable matches on mutual like.",
	})

	CallsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_sessions_completed_total",
		Help: "Video sessions reaching a terminal state, by reason.",
	}, []string{"reason"})

	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_messages_total",
		Help: "Signaling messages posted and drained.",
	}, []string{"op"})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_rate_limit_rejections_total",
		Help: "Signal drains rejected by the per-user rate limit.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		requestDuration.WithLabelValues(
			r.Method,
			r.URL.Path,
			strconv.Itoa(rec.status),
		).Observe(time.Since(start).Seconds())
	})
}
