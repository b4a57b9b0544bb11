// Package blog reads blog content on behalf of the signed-in user.
package blog

import (
	"context"
	"fmt"
	"time"

	"github.com/quill-dev/quill/internal/backend"
	"github.com/quill-dev/quill/internal/session"
)

// Post is a blog post as listed for its author
type Post struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content,omitempty"`
	Status    string     `json:"status"`
	Tags      []string   `json:"tags"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Querier runs an authenticated GraphQL operation
type Querier interface {
	Query(ctx context.Context, token string, op backend.Operation, vars map[string]any, out any) error
}

// Service runs blog queries through the session so an expired access token
// is refreshed and the query retried transparently.
type Service struct {
	manager *session.Manager
	client  Querier
}

func NewService(manager *session.Manager, client Querier) *Service {
	return &Service{manager: manager, client: client}
}

// ListPosts returns the posts visible to the current user
func (s *Service) ListPosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	err := s.manager.Authorized(ctx, func(ctx context.Context, token string) error {
		posts = nil
		return s.client.Query(ctx, token, backend.OpGetPosts, nil, &posts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}
