package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"method", "endpoint"},
	)

	RoomsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_rooms_created_total",
			Help: "Rooms created, by session mode",
		},
		[]string{"mode"},
	)

	RoomsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_rooms_ended_total",
			Help: "Rooms moved to finished, by reason",
		},
		[]string{"reason"},
	)

	AnswersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_answers_total",
			Help: "Answer submissions, by outcome",
		},
		[]string{"outcome"},
	)

	WarningsRaised = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escaperoom_warnings_total",
		Help: "Anti-cheat warnings recorded",
	})

	Disqualifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_disqualifications_total",
			Help: "Players disqualified, by source",
		},
		[]string{"source"},
	)

	LeaderboardSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_leaderboard_submissions_total",
			Help: "Global leaderboard submissions, by whether the stored entry improved",
		},
		[]string{"improved"},
	)

	WatchedRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escaperoom_watched_rooms",
		Help: "Rooms currently supervised by the orchestrator",
	})
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			RoomsCreated,
			RoomsEnded,
			AnswersSubmitted,
			WarningsRaised,
			Disqualifications,
			LeaderboardSubmissions,
			WatchedRooms,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request count and latency per route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
