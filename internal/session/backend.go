package session

import "context"

// LoginResponse is the backend's answer to a login attempt.
type LoginResponse struct {
	User        *User
	AccessToken string
	Success     bool
	Message     string
}

// RefreshResponse is the backend's answer to a refresh attempt.
type RefreshResponse struct {
	AccessToken string
	Success     bool
}

// Backend is the authentication service the Manager talks to. The refresh
// credential is supplied by the implementation's transport (an HTTP-only
// cookie), never by the Manager.
//
// Transport failures are returned as errors. Business refusals (wrong
// password) are reported with Success=false. GetCurrentUser must wrap
// ErrUnauthorized when the access token is rejected.
type Backend interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	RefreshToken(ctx context.Context) (*RefreshResponse, error)
	Logout(ctx context.Context, accessToken string) error
	GetCurrentUser(ctx context.Context, accessToken string) (*User, error)
}
