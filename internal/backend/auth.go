package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/quill-dev/quill/internal/auth"
	"github.com/quill-dev/quill/internal/session"
)

var _ session.Backend = (*Client)(nil)

// LoginPayload is the result of the Login mutation
type LoginPayload struct {
	User        *session.User `json:"user"`
	AccessToken string        `json:"accessToken"`
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
}

// RefreshPayload is the result of the RefreshToken mutation
type RefreshPayload struct {
	AccessToken string `json:"accessToken"`
	Success     bool   `json:"success"`
}

// LogoutPayload is the result of the Logout mutation
type LogoutPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login authenticates and stores the refresh cookie in the client's jar
func (c *Client) Login(ctx context.Context, email, password string) (*session.LoginResponse, error) {
	var p LoginPayload
	if err := c.Query(ctx, "", OpLogin, LoginVariables(email, password), &p); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &session.LoginResponse{
		User:        p.User,
		AccessToken: p.AccessToken,
		Success:     p.Success,
		Message:     p.Message,
	}, nil
}

// RefreshToken exchanges the refresh cookie for a new access token
func (c *Client) RefreshToken(ctx context.Context) (*session.RefreshResponse, error) {
	var p RefreshPayload
	if err := c.Query(ctx, "", OpRefreshToken, nil, &p); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return &session.RefreshResponse{AccessToken: p.AccessToken, Success: p.Success}, nil
}

// Logout revokes the refresh cookie server-side
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	var p LogoutPayload
	if err := c.Query(ctx, accessToken, OpLogout, nil, &p); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if !p.Success {
		return fmt.Errorf("logout: %s", p.Message)
	}
	return nil
}

// GetCurrentUser fetches the profile the access token belongs to
func (c *Client) GetCurrentUser(ctx context.Context, accessToken string) (*session.User, error) {
	var user *session.User
	if err := c.Query(ctx, accessToken, OpGetCurrentUser, nil, &user); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("get current user: %w", session.ErrUnauthorized)
	}
	return user, nil
}

// ForwardHeader builds the header a proxy sends upstream on behalf of a caller
func ForwardHeader(authorization, refreshToken string) http.Header {
	h := http.Header{}
	if authorization != "" {
		h.Set("Authorization", authorization)
	}
	if refreshToken != "" {
		h.Set("Cookie", (&http.Cookie{Name: auth.RefreshCookieName, Value: refreshToken}).String())
	}
	return h
}
