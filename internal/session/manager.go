// Package session keeps the client's bearer credential fresh.
//
// A Manager owns the access token and the cached user profile, refreshes the
// token silently through the backend (the refresh credential travels as an
// HTTP-only cookie the Manager never sees), collapses concurrent refreshes into
// one backend call, and wraps outgoing calls with a retry budget of one.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/quill-dev/quill/internal/auth"
	"github.com/quill-dev/quill/internal/metrics"
)

const refreshKey = "refresh"

// Manager is the process-wide session. It is safe for concurrent use.
type Manager struct {
	backend  Backend
	store    SnapshotStore
	logger   zerolog.Logger
	metrics  *metrics.Session
	validate *validator.Validate
	base     http.RoundTripper

	loginTimeout   time.Duration
	refreshTimeout time.Duration
	skew           time.Duration
	now            func() time.Time

	flight singleflight.Group

	mu          sync.RWMutex
	accessToken string
	user        *User
	userToken   string // token the cached user was fetched with
	status      Status
	pending     int
	lastError   string
	// epoch changes whenever the session is replaced or cleared, so a refresh
	// that started before a logout cannot resurrect the session.
	epoch uint64

	// storeMu orders snapshot writes so the store ends up matching the
	// latest state.
	storeMu sync.Mutex

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(State)
}

// New creates a Manager and restores the persisted snapshot, if any
func New(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:        backend,
		logger:         zerolog.Nop(),
		validate:       validator.New(),
		base:           http.DefaultTransport,
		loginTimeout:   defaultLoginTimeout,
		refreshTimeout: defaultRefreshTimeout,
		skew:           defaultExpirySkew,
		now:            time.Now,
		subs:           make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.restore()
	return m
}

func (m *Manager) restore() {
	if m.store == nil {
		return
	}

	snap, err := m.store.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to restore session snapshot")
		return
	}
	if snap == nil || snap.AccessToken == "" {
		return
	}

	m.accessToken = snap.AccessToken
	m.status = StatusAuthenticated
	if snap.User != nil {
		m.user = snap.User.clone()
		m.userToken = snap.AccessToken
	}
	m.logger.Debug().Bool("has_user", snap.User != nil).Msg("Session restored from snapshot")
}

// Login authenticates with email and password. Failures are reported in the
// Result and never disturb an existing session.
func (m *Manager) Login(ctx context.Context, email, password string) Result {
	if msg := m.checkCredentials(email, password); msg != "" {
		m.metrics.Login(metrics.LoginRejected)
		m.setError(msg)
		return Result{Success: false, Message: msg}
	}

	m.begin()
	defer m.end()

	ctx, cancel := context.WithTimeout(ctx, m.loginTimeout)
	defer cancel()

	resp, err := m.backend.Login(ctx, email, password)
	if err != nil {
		m.logger.Warn().Err(err).Str("email", email).Msg("Login request failed")
		m.metrics.Login(metrics.LoginError)
		m.setError(err.Error())
		return Result{Success: false, Message: err.Error()}
	}

	if !resp.Success || resp.AccessToken == "" {
		msg := resp.Message
		if msg == "" {
			msg = ErrInvalidCredentials.Error()
		}
		m.logger.Info().Str("email", email).Str("reason", msg).Msg("Login rejected")
		m.metrics.Login(metrics.LoginRejected)
		m.setError(msg)
		return Result{Success: false, Message: msg}
	}

	m.update(func() {
		m.epoch++
		m.accessToken = resp.AccessToken
		m.user = resp.User.clone()
		m.userToken = ""
		if resp.User != nil {
			m.userToken = resp.AccessToken
		}
		m.status = StatusAuthenticated
		m.lastError = ""
	})
	m.persist()

	m.metrics.Login(metrics.LoginSuccess)
	m.logger.Info().Str("email", email).Msg("User logged in")

	return Result{Success: true, Message: resp.Message}
}

func (m *Manager) checkCredentials(email, password string) string {
	if err := m.validate.Var(email, "required,email"); err != nil {
		return "a valid email address is required"
	}
	if err := m.validate.Var(password, "required"); err != nil {
		return "password is required"
	}
	return ""
}

// Logout asks the backend to invalidate the refresh credential if a token is
// held, then clears the local session whatever the backend answered. It never
// fails.
func (m *Manager) Logout(ctx context.Context) {
	m.logout(ctx, metrics.LogoutUser)
}

func (m *Manager) logout(ctx context.Context, reason string) {
	m.begin()
	defer m.end()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loginTimeout)
	defer cancel()

	if token := m.token(); token != "" {
		if err := m.backend.Logout(ctx, token); err != nil {
			m.logger.Warn().Err(err).Msg("Backend logout failed, clearing local session anyway")
		}
	}
	m.clear(reason)
}

// clear resets the session to anonymous without talking to the backend.
func (m *Manager) clear(reason string) {
	m.clearEpoch(reason, nil)
}

// clearEpoch is clear restricted to the session identified by epoch, or to
// any session when epoch is nil. It reports whether the session was cleared.
func (m *Manager) clearEpoch(reason string, epoch *uint64) bool {
	var had, cleared bool
	m.update(func() {
		if epoch != nil && *epoch != m.epoch {
			return
		}
		cleared = true
		had = m.accessToken != "" || m.user != nil
		m.epoch++
		m.accessToken = ""
		m.user = nil
		m.userToken = ""
		m.status = StatusAnonymous
	})
	if !cleared {
		return false
	}

	m.persist()

	if had {
		m.metrics.Logout(reason)
		m.logger.Info().Str("reason", reason).Msg("Session cleared")
	}
	return true
}

// EnsureFreshToken returns a valid access token, refreshing it if needed.
// Concurrent callers share one backend refresh. On failure the session is
// cleared and the error wraps ErrSessionExpired.
func (m *Manager) EnsureFreshToken(ctx context.Context) (string, error) {
	token := m.token()
	if m.valid(token) {
		return token, nil
	}
	return m.refresh(ctx, token)
}

// valid reports whether token may be sent. JWTs are checked against their exp
// claim minus the skew; opaque tokens are trusted until the backend rejects them.
func (m *Manager) valid(token string) bool {
	if token == "" {
		return false
	}
	exp, ok := auth.ExpiresAt(token)
	if !ok {
		return true
	}
	return m.now().Add(m.skew).Before(exp)
}

// refresh replaces stale with a new token. If another caller already replaced
// it, the newer token is returned without a backend call.
func (m *Manager) refresh(ctx context.Context, stale string) (string, error) {
	if current := m.token(); current != stale && m.valid(current) {
		m.metrics.Refresh(metrics.RefreshReused)
		return current, nil
	}

	ch := m.flight.DoChan(refreshKey, func() (interface{}, error) {
		return m.doRefresh(context.WithoutCancel(ctx), stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context, stale string) (string, error) {
	// A flight that finished just before this one may already have replaced stale.
	if current := m.token(); current != stale && m.valid(current) {
		m.metrics.Refresh(metrics.RefreshReused)
		return current, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	var epoch uint64
	m.update(func() {
		epoch = m.epoch
		if m.status == StatusAuthenticated {
			m.status = StatusRefreshing
		}
		m.pending++
	})
	defer m.end()

	resp, err := m.backend.RefreshToken(ctx)
	if err == nil && (resp == nil || !resp.Success || resp.AccessToken == "") {
		err = errRefreshRejected
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("Silent refresh failed")
		m.metrics.Refresh(metrics.RefreshFailure)
		if !m.clearEpoch(metrics.LogoutRefreshFail, &epoch) {
			// A login or logout replaced the session while the refresh was in flight.
			if current := m.token(); m.valid(current) {
				return current, nil
			}
		}
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	var superseded bool
	m.update(func() {
		if m.epoch != epoch {
			superseded = true
			return
		}
		m.accessToken = resp.AccessToken
		m.status = StatusAuthenticated
	})
	if superseded {
		// The session was replaced or cleared while the refresh was in flight.
		if current := m.token(); m.valid(current) {
			return current, nil
		}
		return "", ErrSessionExpired
	}

	m.persist()
	m.metrics.Refresh(metrics.RefreshSuccess)
	m.logger.Debug().Msg("Access token refreshed")

	return resp.AccessToken, nil
}

// CurrentUser returns the profile for the current token. A profile cached for
// that token is returned without a backend call.
func (m *Manager) CurrentUser(ctx context.Context) (*User, error) {
	var user *User
	err := m.Authorized(ctx, func(ctx context.Context, token string) error {
		if cached := m.cachedUser(token); cached != nil {
			user = cached
			return nil
		}

		u, err := m.backend.GetCurrentUser(ctx, token)
		if err != nil {
			return err
		}

		m.update(func() {
			if m.accessToken == token {
				m.user = u.clone()
				m.userToken = token
			}
		})
		m.persist()

		user = u.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (m *Manager) cachedUser(token string) *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user != nil && m.userToken == token {
		return m.user.clone()
	}
	return nil
}

// State returns a snapshot of the session for display.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	return State{
		Status:   m.status,
		User:     m.user.clone(),
		HasToken: m.accessToken != "",
		IsAdmin:  m.user.IsAdmin(),
		Loading:  m.pending > 0,
		Error:    m.lastError,
	}
}

// ClearError resets the last reported error.
func (m *Manager) ClearError() {
	m.update(func() {
		m.lastError = ""
	})
}

// Subscribe registers fn to receive the state after every change.
// The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// update applies fn under the write lock and notifies subscribers.
func (m *Manager) update(fn func()) {
	m.mu.Lock()
	fn()
	st := m.stateLocked()
	m.mu.Unlock()

	m.subMu.Lock()
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func (m *Manager) token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

func (m *Manager) setError(msg string) {
	m.update(func() {
		m.lastError = msg
	})
}

func (m *Manager) begin() {
	m.update(func() {
		m.pending++
	})
}

func (m *Manager) end() {
	m.update(func() {
		m.pending--
	})
}

// persist saves the current session, or clears the snapshot when no token is
// held.
func (m *Manager) persist() {
	if m.store == nil {
		return
	}

	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.RLock()
	snap := Snapshot{AccessToken: m.accessToken}
	if m.userToken == m.accessToken {
		snap.User = m.user.clone()
	}
	m.mu.RUnlock()

	if snap.AccessToken == "" {
		if err := m.store.Clear(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to clear session snapshot")
		}
		return
	}
	if err := m.store.Save(snap); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to persist session snapshot")
	}
}

// IsSessionExpired reports whether err ended the session.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
