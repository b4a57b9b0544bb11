package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/quill-dev/quill/internal/metrics"
)

// envelope tracks the retry budget of one authorized call.
type envelope struct {
	retried bool
}

// Authorized runs call with a fresh access token. If call fails with an error
// wrapping ErrUnauthorized, the token is refreshed and call is retried exactly
// once. A second rejection logs the session out and returns an error wrapping
// both ErrSessionExpired and the rejection.
func (m *Manager) Authorized(ctx context.Context, call func(ctx context.Context, token string) error) error {
	token, err := m.EnsureFreshToken(ctx)
	if err != nil {
		return err
	}

	var env envelope
	for {
		err = call(ctx, token)
		if err == nil || !errors.Is(err, ErrUnauthorized) {
			return err
		}

		if env.retried {
			m.logger.Warn().Err(err).Msg("Call rejected again after refresh, ending session")
			m.logout(ctx, metrics.LogoutUnauthorized)
			return fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		env.retried = true

		token, err = m.refresh(ctx, token)
		if err != nil {
			return err
		}
		m.metrics.Retry()
	}
}

// Do sends req with a bearer token under the Authorized retry policy.
// A 401 response is treated as ErrUnauthorized.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	client := &http.Client{Transport: m.Transport(m.base)}
	return client.Do(req)
}

// Transport wraps base so every request carries a fresh bearer token and is
// replayed once after a refresh when the server answers 401.
func (m *Manager) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{manager: m, base: base}
}

type transport struct {
	manager *Manager
	base    http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig, err := replayable(req)
	if err != nil {
		return nil, err
	}
	if req.Body != nil && req.GetBody != nil {
		defer req.Body.Close()
	}

	var resp *http.Response
	err = t.manager.Authorized(req.Context(), func(ctx context.Context, token string) error {
		attempt := orig.Clone(ctx)
		if orig.GetBody != nil {
			body, err := orig.GetBody()
			if err != nil {
				return fmt.Errorf("failed to rewind request body: %w", err)
			}
			attempt.Body = body
		}
		attempt.Header.Set("Authorization", "Bearer "+token)

		r, err := t.base.RoundTrip(attempt)
		if err != nil {
			return err
		}

		if r.StatusCode == http.StatusUnauthorized {
			_, _ = io.Copy(io.Discard, r.Body)
			r.Body.Close()
			return fmt.Errorf("%w: %s %s returned status %d", ErrUnauthorized, req.Method, req.URL.Path, r.StatusCode)
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// replayable returns a copy of req whose body can be read once per attempt.
func replayable(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return out, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}

	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.Body, _ = out.GetBody()
	return out, nil
}
