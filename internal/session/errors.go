package session

import "errors"

var (
	// ErrUnauthorized marks a single call rejected for an expired or invalid
	// access token. Backends and collaborators wrap it so the request wrapper
	// can recognise the failure.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired is terminal for the current session: the refresh failed
	// or a retried call was rejected again. The session has been cleared by the
	// time a caller sees it.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidCredentials is the refusal reported when the backend rejects a
	// login without a message of its own.
	ErrInvalidCredentials = errors.New("invalid email or password")

	errRefreshRejected = errors.New("refresh rejected by backend")
)
