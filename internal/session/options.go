package session

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quill-dev/quill/internal/metrics"
)

const (
	defaultLoginTimeout   = 15 * time.Second
	defaultRefreshTimeout = 10 * time.Second
	defaultExpirySkew     = 30 * time.Second
)

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for session events
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithStore restores from and persists to the given snapshot store
func WithStore(store SnapshotStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithMetrics records lifecycle counters
func WithMetrics(s *metrics.Session) Option {
	return func(m *Manager) {
		m.metrics = s
	}
}

// WithLoginTimeout bounds login and logout calls
func WithLoginTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.loginTimeout = d
		}
	}
}

// WithRefreshTimeout bounds a refresh call; a timeout counts as refresh failure
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// WithExpirySkew treats a token as expired this long before its exp claim
func WithExpirySkew(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.skew = d
		}
	}
}

// WithClock overrides the time source used for token validity
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithTransport sets the base transport used by Do
func WithTransport(rt http.RoundTripper) Option {
	return func(m *Manager) {
		m.base = rt
	}
}
