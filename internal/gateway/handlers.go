package gateway

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quill-dev/quill/internal/auth"
	"github.com/quill-dev/quill/internal/backend"
	"github.com/quill-dev/quill/internal/session"
)

const maxProxyBody = 1 << 20

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) fail(c *gin.Context, status int, message string, err error) {
	event := s.logger.Warn().Int("status", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)

	c.JSON(status, gin.H{"success": false, "message": message})
}

// relayCookies copies the upstream Set-Cookie headers to the caller
func relayCookies(c *gin.Context, upstream http.Header) {
	for _, v := range upstream.Values("Set-Cookie") {
		c.Writer.Header().Add("Set-Cookie", v)
	}
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "Email and password are required", err)
		return
	}

	resp, err := s.upstream.Exec(c.Request.Context(), backend.OpLogin.Request(backend.LoginVariables(req.Email, req.Password)))
	if err != nil {
		s.fail(c, http.StatusBadGateway, "Login failed", err)
		return
	}

	var payload backend.LoginPayload
	if err := resp.Decode(backend.OpLogin.Field, &payload); err != nil {
		s.fail(c, http.StatusBadGateway, "Login failed", err)
		return
	}
	if !payload.Success {
		message := payload.Message
		if message == "" {
			message = session.ErrInvalidCredentials.Error()
		}
		s.fail(c, http.StatusUnauthorized, message, nil)
		return
	}

	relayCookies(c, resp.Header)
	c.JSON(http.StatusOK, payload)
}

func (s *Server) refresh(c *gin.Context) {
	cookie, err := c.Cookie(auth.RefreshCookieName)
	if err != nil || cookie == "" {
		s.fail(c, http.StatusUnauthorized, "Refresh token not found", nil)
		return
	}

	req := backend.OpRefreshToken.Request(nil)
	req.Header = backend.ForwardHeader("", cookie)

	resp, err := s.upstream.Exec(c.Request.Context(), req)
	if err != nil {
		if resp != nil && len(resp.Errors) > 0 {
			s.fail(c, http.StatusBadRequest, resp.Errors[0].Message, err)
			return
		}
		s.fail(c, http.StatusBadGateway, "Token refresh failed", err)
		return
	}

	var payload backend.RefreshPayload
	if err := resp.Decode(backend.OpRefreshToken.Field, &payload); err != nil {
		s.fail(c, http.StatusBadGateway, "Token refresh failed", err)
		return
	}

	relayCookies(c, resp.Header)
	if !payload.Success {
		c.JSON(http.StatusUnauthorized, payload)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// logout never fails: the refresh cookie is cleared whatever upstream answers
func (s *Server) logout(c *gin.Context) {
	cookie, _ := c.Cookie(auth.RefreshCookieName)

	req := backend.OpLogout.Request(nil)
	req.Header = backend.ForwardHeader(c.GetHeader("Authorization"), cookie)

	if _, err := s.upstream.Exec(c.Request.Context(), req); err != nil {
		s.logger.Warn().Err(err).Msg("Upstream logout failed, clearing cookie anyway")
	}

	auth.ClearRefreshCookie(c.Writer, s.cookies)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) me(c *gin.Context) {
	req := backend.OpGetCurrentUser.Request(nil)
	req.Header = backend.ForwardHeader(c.GetHeader("Authorization"), "")

	resp, err := s.upstream.Exec(c.Request.Context(), req)
	if errors.Is(err, session.ErrUnauthorized) {
		s.fail(c, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	if err != nil {
		s.fail(c, http.StatusBadGateway, "Failed to load current user", err)
		return
	}

	var user session.User
	if err := resp.Decode(backend.OpGetCurrentUser.Field, &user); err != nil {
		s.fail(c, http.StatusBadGateway, "Failed to load current user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// graphql forwards the request body and Authorization header unchanged and
// relays the upstream status and body
func (s *Server) graphql(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody))
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, s.upstream.Endpoint(), bytes.NewReader(body))
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to create upstream request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if authz := c.GetHeader("Authorization"); authz != "" {
		req.Header.Set("Authorization", authz)
	}

	resp, err := s.proxy.Do(req)
	if err != nil {
		s.fail(c, http.StatusBadGateway, "Upstream unavailable", err)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, nil)
}
