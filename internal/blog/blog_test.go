package blog

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-dev/quill/internal/backend"
	"github.com/quill-dev/quill/internal/session"
)

// stubBackend logs in with token t1 and refreshes to t2
type stubBackend struct {
	refreshes atomic.Int32
	refreshOK bool
}

func (s *stubBackend) Login(context.Context, string, string) (*session.LoginResponse, error) {
	return &session.LoginResponse{AccessToken: "t1", Success: true, User: &session.User{ID: "u1"}}, nil
}

func (s *stubBackend) RefreshToken(context.Context) (*session.RefreshResponse, error) {
	s.refreshes.Add(1)
	return &session.RefreshResponse{AccessToken: "t2", Success: s.refreshOK}, nil
}

func (s *stubBackend) Logout(context.Context, string) error { return nil }

func (s *stubBackend) GetCurrentUser(context.Context, string) (*session.User, error) {
	return nil, session.ErrUnauthorized
}

// postsQuerier accepts only token t2
type postsQuerier struct {
	calls []string
}

func (q *postsQuerier) Query(_ context.Context, token string, op backend.Operation, _ map[string]any, out any) error {
	q.calls = append(q.calls, token)
	if op.Name != "GetPosts" {
		return assert.AnError
	}
	if token != "t2" {
		return session.ErrUnauthorized
	}
	data := `[{"id":"p1","title":"Hello","status":"PUBLISHED","tags":["go"],"createdAt":"2024-05-01T10:00:00Z"}]`
	return json.Unmarshal([]byte(data), out)
}

func newManager(t *testing.T, sb *stubBackend) *session.Manager {
	t.Helper()
	m := session.New(sb)
	require.True(t, m.Login(context.Background(), "a@b.com", "pw").Success)
	return m
}

func TestListPosts_RetriesAfterRefresh(t *testing.T) {
	sb := &stubBackend{refreshOK: true}
	q := &postsQuerier{}
	svc := NewService(newManager(t, sb), q)

	posts, err := svc.ListPosts(context.Background())

	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Hello", posts[0].Title)
	assert.Equal(t, []string{"go"}, posts[0].Tags)
	assert.Equal(t, []string{"t1", "t2"}, q.calls)
	assert.Equal(t, int32(1), sb.refreshes.Load())
}

func TestListPosts_RefreshFailureEndsSession(t *testing.T) {
	sb := &stubBackend{refreshOK: false}
	q := &postsQuerier{}
	m := newManager(t, sb)
	svc := NewService(m, q)

	posts, err := svc.ListPosts(context.Background())

	assert.Nil(t, posts)
	assert.True(t, session.IsSessionExpired(err))
	assert.Equal(t, []string{"t1"}, q.calls)
	assert.False(t, m.State().HasToken)
}
