package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postsAPI serves a protected list that accepts only the current token
type postsAPI struct {
	mu       sync.Mutex
	valid    string
	requests atomic.Int32
	bodies   []string
	// gate, if set, is called for requests carrying a rejected token
	gate func()
}

func (p *postsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.requests.Add(1)
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.bodies = append(p.bodies, string(body))
	valid := p.valid
	p.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+valid {
		if p.gate != nil {
			p.gate()
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "p1", "title": "Hello"}})
}

func (p *postsAPI) Bodies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.bodies...)
}

func newRequest(t *testing.T, method, url, body string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	require.NoError(t, err)
	return req
}

func TestDo_RefreshesAndReplaysAfter401(t *testing.T) {
	api := &postsAPI{valid: "t2"}
	server := httptest.NewServer(api)
	defer server.Close()

	backend := &fakeBackend{refreshFn: refreshTo("t2")}
	m := loggedIn(t, backend, "t1")

	resp, err := m.Do(newRequest(t, http.MethodGet, server.URL+"/posts", ""))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var posts []map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&posts))
	assert.Len(t, posts, 1)

	assert.Equal(t, int32(2), api.requests.Load())
	assert.Equal(t, int32(1), backend.refreshes.Load())

	token, err := m.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t2", token)
}

func TestDo_RefreshFailureEndsSession(t *testing.T) {
	api := &postsAPI{valid: "t2"}
	server := httptest.NewServer(api)
	defer server.Close()

	backend := &fakeBackend{refreshFn: func(context.Context) (*RefreshResponse, error) {
		return nil, errors.New("refresh token revoked")
	}}
	m := loggedIn(t, backend, "t1")

	resp, err := m.Do(newRequest(t, http.MethodGet, server.URL+"/posts", ""))

	assert.Nil(t, resp)
	assert.True(t, IsSessionExpired(err))
	assert.Equal(t, int32(1), api.requests.Load())
	st := m.State()
	assert.False(t, st.HasToken)
	assert.Nil(t, st.User)
}

func TestDo_ConcurrentRejectionsShareOneRefresh(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	api := &postsAPI{valid: "t2"}
	api.gate = func() {
		arrived.Done()
		arrived.Wait()
	}
	server := httptest.NewServer(api)
	defer server.Close()

	backend := &fakeBackend{refreshFn: refreshTo("t2")}
	m := loggedIn(t, backend, "t1")

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := m.Do(newRequest(t, http.MethodGet, server.URL+"/posts", ""))
			errs[i] = err
			if err == nil {
				statuses[i] = resp.StatusCode
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}
	assert.Equal(t, int32(1), backend.refreshes.Load())
	assert.Equal(t, int32(4), api.requests.Load())
}

func TestDo_ReplaysRequestBody(t *testing.T) {
	api := &postsAPI{valid: "t2"}
	server := httptest.NewServer(api)
	defer server.Close()

	m := loggedIn(t, &fakeBackend{refreshFn: refreshTo("t2")}, "t1")

	req := newRequest(t, http.MethodPost, server.URL+"/posts", `{"title":"draft"}`)
	// hide GetBody so the transport has to buffer the body itself
	req.GetBody = nil
	req.Body = io.NopCloser(strings.NewReader(`{"title":"draft"}`))

	resp, err := m.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{`{"title":"draft"}`, `{"title":"draft"}`}, api.Bodies())
}

func TestDo_SecondRejectionLogsOut(t *testing.T) {
	api := &postsAPI{valid: "never"}
	server := httptest.NewServer(api)
	defer server.Close()

	backend := &fakeBackend{refreshFn: refreshTo("t2")}
	m := loggedIn(t, backend, "t1")

	_, err := m.Do(newRequest(t, http.MethodGet, server.URL+"/posts", ""))

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(2), api.requests.Load())
	assert.Equal(t, int32(1), backend.refreshes.Load())
	assert.Equal(t, StatusAnonymous, m.State().Status)
}

func TestTransport_UsedByCustomClient(t *testing.T) {
	var seen atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	m := loggedIn(t, &fakeBackend{}, "t1")
	client := &http.Client{Transport: m.Transport(nil)}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "Bearer t1", seen.Load())
}
