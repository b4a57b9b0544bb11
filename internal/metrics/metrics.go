// Package metrics defines the Prometheus collectors for quill. Collectors are
// created against an explicit Registerer so the CLI, the services and tests can
// each own their registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quill"

// Refresh outcomes.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshReused  = "reused" // another caller already replaced the rejected token
)

// Logout reasons.
const (
	LogoutUser         = "user"
	LogoutRefreshFail  = "refresh_failed"
	LogoutUnauthorized = "unauthorized"
)

// Login outcomes.
const (
	LoginSuccess  = "success"
	LoginRejected = "rejected"
	LoginError    = "error"
)

// ── Session metrics ───────────────────────────────────────────────────────────

// Session groups the collectors for the client-side session lifecycle.
// A nil *Session is valid and records nothing.
type Session struct {
	// Refreshes counts backend refresh calls and reused results.
	// Label:
	//   - outcome: "success", "failure" or "reused"
	Refreshes *prometheus.CounterVec
	// Retries counts authorized calls replayed after a refresh.
	Retries prometheus.Counter
	// Logouts counts session clears.
	// Label:
	//   - reason: "user", "refresh_failed" or "unauthorized"
	Logouts *prometheus.CounterVec
	// Logins counts login attempts.
	// Label:
	//   - outcome: "success", "rejected" or "error"
	Logins *prometheus.CounterVec
}

// NewSession creates the session collectors and registers them with reg.
func NewSession(reg prometheus.Registerer) *Session {
	s := &Session{
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "refreshes_total",
				Help:      "Total number of access-token refreshes, by outcome.",
			},
			[]string{"outcome"},
		),
		Retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "retries_total",
				Help:      "Total number of authorized calls retried after a refresh.",
			},
		),
		Logouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "logouts_total",
				Help:      "Total number of session clears, by reason.",
			},
			[]string{"reason"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "logins_total",
				Help:      "Total number of login attempts, by outcome.",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(s.Refreshes, s.Retries, s.Logouts, s.Logins)
	}
	return s
}

func (s *Session) Refresh(outcome string) {
	if s == nil {
		return
	}
	s.Refreshes.WithLabelValues(outcome).Inc()
}

func (s *Session) Retry() {
	if s == nil {
		return
	}
	s.Retries.Inc()
}

func (s *Session) Logout(reason string) {
	if s == nil {
		return
	}
	s.Logouts.WithLabelValues(reason).Inc()
}

func (s *Session) Login(outcome string) {
	if s == nil {
		return
	}
	s.Logins.WithLabelValues(outcome).Inc()
}

// ── HTTP metrics ──────────────────────────────────────────────────────────────

// HTTP groups the request collectors shared by the gateway and the dev backend.
type HTTP struct {
	// Requests counts handled requests.
	// Labels:
	//   - method, route: gin method and route template
	//   - status: response status code
	Requests *prometheus.CounterVec
	// Duration measures handler latency per route.
	Duration *prometheus.HistogramVec
}

// NewHTTP creates the HTTP collectors for the named service and registers them with reg.
func NewHTTP(reg prometheus.Registerer, service string) *HTTP {
	h := &HTTP{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "requests_total",
				Help:        "Total number of HTTP requests handled.",
				ConstLabels: prometheus.Labels{"service": service},
			},
			[]string{"method", "route", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "request_duration_seconds",
				Help:        "Duration of HTTP request handling.",
				ConstLabels: prometheus.Labels{"service": service},
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	if reg != nil {
		reg.MustRegister(h.Requests, h.Duration)
	}
	return h
}

// Observe records one handled request.
func (h *HTTP) Observe(method, route string, status int, d time.Duration) {
	if h == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	h.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	h.Duration.WithLabelValues(method, route).Observe(d.Seconds())
}
