package devbackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/quill-dev/quill/internal/auth"
	"github.com/quill-dev/quill/internal/models"
)

const (
	operationKey = "graphql_operation"
	principalKey = "principal"
	bearerPrefix = "Bearer "

	codeUnauthenticated = "UNAUTHENTICATED"
	codeBadUserInput    = "BAD_USER_INPUT"
	codeInternal        = "INTERNAL_SERVER_ERROR"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
	ErrUserNotFound      = errors.New("user not found")
)

type graphQLRequest struct {
	Query         string                     `json:"query" binding:"required"`
	OperationName string                     `json:"operationName"`
	Variables     map[string]json.RawMessage `json:"variables"`
}

type graphQLError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// rootFieldPattern finds the first selected field of an anonymous operation
var rootFieldPattern = regexp.MustCompile(`\{\s*([A-Za-z_]\w*)`)

// resolvers maps lower-cased operation and root field names to their handlers
func (s *Server) resolvers() map[string]gin.HandlerFunc {
	return map[string]gin.HandlerFunc{
		"login":          s.login,
		"refreshtoken":   s.refreshToken,
		"logout":         s.logout,
		"getcurrentuser": s.getCurrentUser,
		"getposts":       s.getPosts,
	}
}

// graphql dispatches a request on its operation name, falling back to the
// root field when the operation is anonymous
func (s *Server) graphql(c *gin.Context) {
	var req graphQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []graphQLError{{Message: "Invalid request body"}}})
		return
	}

	resolvers := s.resolvers()
	name := strings.ToLower(req.OperationName)
	if _, ok := resolvers[name]; !ok {
		if m := rootFieldPattern.FindStringSubmatch(req.Query); m != nil {
			name = strings.ToLower(m[1])
		}
	}

	resolve, ok := resolvers[name]
	if !ok {
		s.respondError(c, http.StatusBadRequest, codeBadUserInput, "Unknown operation", nil)
		return
	}

	c.Set(operationKey, name)
	c.Set("variables", req.Variables)
	resolve(c)
}

func respondData(c *gin.Context, field string, value any) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{field: value}})
}

func (s *Server) respondError(c *gin.Context, status int, code, message string, err error) {
	event := s.logger.Warn().Str("code", code)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)

	c.JSON(status, gin.H{
		"data": nil,
		"errors": []graphQLError{{
			Message:    message,
			Extensions: map[string]any{"code": code},
		}},
	})
}

func variable(c *gin.Context, name string, out any) error {
	vars, _ := c.Get("variables")
	values, _ := vars.(map[string]json.RawMessage)
	raw, ok := values[name]
	if !ok {
		return errors.New("missing variable " + name)
	}
	return json.Unmarshal(raw, out)
}

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthFormat
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", ErrInvalidAuthFormat
	}
	return token, nil
}

func setPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(principalKey, p)
}

// GetPrincipal returns the identity authenticated for this request, if any
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// authenticate resolves the user behind the request's bearer token
func (s *Server) authenticate(c *gin.Context) (*models.User, error) {
	token, err := extractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		return nil, err
	}

	claims, err := s.issuer.Validate(token)
	if err != nil {
		return nil, err
	}
	setPrincipal(c, auth.PrincipalFromClaims(claims))

	var user models.User
	if err := models.FindByID(s.db.WithContext(c.Request.Context()), claims.UserID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) login(c *gin.Context) {
	var input loginInput
	if err := variable(c, "loginInput", &input); err != nil {
		s.respondError(c, http.StatusOK, codeBadUserInput, "loginInput is required", err)
		return
	}
	if err := s.validator.Struct(input); err != nil {
		respondData(c, "login", gin.H{"success": false, "message": "Email and password are required"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	var user models.User
	err := s.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	if err == nil {
		err = auth.VerifyPassword(input.Password, user.PasswordHash)
	}
	if err != nil {
		s.logger.Info().Str("email", email).Msg("Login rejected")
		respondData(c, "login", gin.H{"success": false, "message": "Invalid email or password"})
		return
	}

	accessToken, _, err := s.issuer.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		s.respondError(c, http.StatusOK, codeInternal, "Failed to issue access token", err)
		return
	}
	if err := s.issueRefreshToken(c, user.ID, ulid.Make().String()); err != nil {
		s.respondError(c, http.StatusOK, codeInternal, "Failed to issue refresh token", err)
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("User logged in")
	respondData(c, "login", gin.H{
		"user":        user,
		"accessToken": accessToken,
		"success":     true,
		"message":     "Login successful",
	})
}

// issueRefreshToken stores a new token of the family and sets it as a cookie
func (s *Server) issueRefreshToken(c *gin.Context, userID, familyID string) error {
	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return err
	}

	expiresAt := s.clock().Add(s.config.RefreshTokenTTL)
	err = s.tokens.Save(c.Request.Context(), &models.RefreshToken{
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: auth.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return err
	}

	auth.SetRefreshCookie(c.Writer, raw, expiresAt, s.cookies)
	return nil
}

func (s *Server) refreshToken(c *gin.Context) {
	s.refreshCalls.Add(1)
	ctx := c.Request.Context()

	raw, err := c.Cookie(auth.RefreshCookieName)
	if err != nil || raw == "" {
		respondData(c, "refreshToken", gin.H{"success": false, "accessToken": nil})
		return
	}
	hash := auth.HashRefreshToken(raw)

	token, err := s.tokens.Consume(ctx, hash, s.clock())
	if err != nil {
		if errors.Is(err, ErrTokenReused) {
			s.revokeFamilyOf(c, hash)
		}
		s.logger.Info().Err(err).Msg("Refresh rejected")
		auth.ClearRefreshCookie(c.Writer, s.cookies)
		respondData(c, "refreshToken", gin.H{"success": false, "accessToken": nil})
		return
	}

	var user models.User
	if err := models.FindByID(s.db.WithContext(ctx), token.UserID, &user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", token.UserID).Msg("Refresh token owner not found")
		auth.ClearRefreshCookie(c.Writer, s.cookies)
		respondData(c, "refreshToken", gin.H{"success": false, "accessToken": nil})
		return
	}

	accessToken, _, err := s.issuer.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		s.respondError(c, http.StatusOK, codeInternal, "Failed to issue access token", err)
		return
	}
	if err := s.issueRefreshToken(c, user.ID, token.FamilyID); err != nil {
		s.respondError(c, http.StatusOK, codeInternal, "Failed to issue refresh token", err)
		return
	}

	respondData(c, "refreshToken", gin.H{"success": true, "accessToken": accessToken})
}

// revokeFamilyOf ends every session descended from the login that issued hash
func (s *Server) revokeFamilyOf(c *gin.Context, hash string) {
	token, err := s.tokens.Find(c.Request.Context(), hash)
	if err != nil {
		return
	}

	s.logger.Warn().
		Str("user_id", token.UserID).
		Str("family_id", token.FamilyID).
		Msg("Refresh token reuse detected, revoking family")

	if err := s.tokens.RevokeFamily(c.Request.Context(), token.FamilyID, s.clock()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to revoke token family")
	}
}

func (s *Server) logout(c *gin.Context) {
	if raw, err := c.Cookie(auth.RefreshCookieName); err == nil && raw != "" {
		token, err := s.tokens.Find(c.Request.Context(), auth.HashRefreshToken(raw))
		if err == nil {
			if err := s.tokens.RevokeFamily(c.Request.Context(), token.FamilyID, s.clock()); err != nil {
				s.logger.Error().Err(err).Msg("Failed to revoke refresh token on logout")
			}
		}
	}

	auth.ClearRefreshCookie(c.Writer, s.cookies)
	respondData(c, "logout", gin.H{"success": true, "message": "Logged out"})
}

func (s *Server) getCurrentUser(c *gin.Context) {
	user, err := s.authenticate(c)
	if err != nil {
		s.respondError(c, http.StatusOK, codeUnauthenticated, "Unauthorized", err)
		return
	}
	respondData(c, "getCurrentUser", user)
}

func (s *Server) getPosts(c *gin.Context) {
	user, err := s.authenticate(c)
	if err != nil {
		s.respondError(c, http.StatusOK, codeUnauthenticated, "Unauthorized", err)
		return
	}

	var posts []models.Post
	err = s.db.WithContext(c.Request.Context()).
		Where("author_id = ? OR status = ?", user.ID, models.PostPublished).
		Order("created_at desc").
		Find(&posts).Error
	if err != nil {
		s.respondError(c, http.StatusOK, codeInternal, "Failed to load posts", err)
		return
	}

	respondData(c, "getPosts", posts)
}
