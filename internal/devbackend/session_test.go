package devbackend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-dev/quill/internal/backend"
	"github.com/quill-dev/quill/internal/blog"
	"github.com/quill-dev/quill/internal/session"
)

func newSession(t *testing.T, url string, opts ...session.Option) (*session.Manager, *backend.Client) {
	t.Helper()
	client, err := backend.New(url + "/graphql")
	require.NoError(t, err)
	return session.New(client, opts...), client
}

func TestSession_ConcurrentCallsShareOneRefresh(t *testing.T) {
	s, ts := newTestServer(t)
	m, client := newSession(t, ts.URL)
	require.True(t, m.Login(context.Background(), "a@b.com", "pw").Success)
	posts := blog.NewService(m, client)

	// the server now rejects the access token the client still believes valid
	s.AdvanceClock(time.Hour)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = posts.ListPosts(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	// a second refresh with the rotated cookie would have revoked the family
	assert.Equal(t, int64(1), s.RefreshCalls())
	assert.Equal(t, session.StatusAuthenticated, m.State().Status)
}

func TestSession_SilentRefreshAfterExpiry(t *testing.T) {
	s, ts := newTestServer(t)
	m, client := newSession(t, ts.URL)
	require.True(t, m.Login(context.Background(), "a@b.com", "pw").Success)

	s.AdvanceClock(time.Hour)

	list, err := blog.NewService(m, client).ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Welcome to Quill", list[0].Title)
	assert.Equal(t, int64(1), s.RefreshCalls())

	user, err := m.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", user.Email)
	assert.True(t, m.State().IsAdmin)
}

func TestSession_LogoutEndsRefresh(t *testing.T) {
	s, ts := newTestServer(t)
	m, client := newSession(t, ts.URL)
	require.True(t, m.Login(context.Background(), "a@b.com", "pw").Success)

	m.Logout(context.Background())
	assert.False(t, m.State().HasToken)

	_, err := blog.NewService(m, client).ListPosts(context.Background())
	assert.True(t, session.IsSessionExpired(err))
	assert.Equal(t, int64(1), s.RefreshCalls())
}

func TestSession_RestoredSnapshotWithoutCookieExpires(t *testing.T) {
	s, ts := newTestServer(t)
	store := session.NewMemoryStore()

	first, _ := newSession(t, ts.URL, session.WithStore(store))
	require.True(t, first.Login(context.Background(), "a@b.com", "pw").Success)

	// a new process restores the access token, but the refresh cookie stayed
	// in the old process's jar
	second, client := newSession(t, ts.URL, session.WithStore(store))
	assert.True(t, second.State().HasToken)

	s.AdvanceClock(time.Hour)

	_, err := blog.NewService(second, client).ListPosts(context.Background())
	assert.True(t, session.IsSessionExpired(err))
	assert.False(t, second.State().HasToken)

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}
