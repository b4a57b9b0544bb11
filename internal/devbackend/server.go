// Package devbackend is a local stand-in for the blog's GraphQL API. It speaks
// just enough of the protocol for the auth operations and the post listing:
// requests are dispatched on their operation name, not parsed.
package devbackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/quill-dev/quill/internal/auth"
	"github.com/quill-dev/quill/internal/config"
	"github.com/quill-dev/quill/internal/models"
)

// Server represents the development GraphQL server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    config.DevConfig
	logger    zerolog.Logger
	validator *validator.Validate
	issuer    *auth.Issuer
	tokens    RefreshStore
	redis     *redis.Client
	purger    *purger
	cookies   auth.CookieOptions

	refreshCalls atomic.Int64
	clockOffset  atomic.Int64
}

// New creates a new server instance, migrating the database and seeding the
// configured user
func New(cfg config.DevConfig, zlog zerolog.Logger) (*Server, error) {
	db, err := initDatabase(cfg.DatabaseURL, zlog)
	if err != nil {
		return nil, err
	}

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:        db,
		config:    cfg,
		logger:    zlog,
		validator: validator.New(),
		issuer:    issuer,
		cookies:   auth.CookieOptions{Secure: cfg.CookieSecure},
	}
	issuer.SetClock(s.clock)

	if cfg.RedisAddress != "" {
		client, err := NewRedisClient(cfg.RedisAddress)
		if err != nil {
			return nil, err
		}
		s.redis = client
		s.tokens = NewRedisStore(client)
		zlog.Info().Str("address", cfg.RedisAddress).Msg("Refresh tokens stored in Redis")
	} else {
		store := NewGormStore(db)
		s.tokens = store
		s.purger, err = newPurger(store, zlog, s.clock)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule token purge: %w", err)
		}
	}

	if err := s.seed(context.Background()); err != nil {
		return nil, err
	}

	s.setupRouter()

	return s, nil
}

// AdvanceClock moves the server's clock forward, expiring tokens early
func (s *Server) AdvanceClock(d time.Duration) {
	s.clockOffset.Add(int64(d))
}

func (s *Server) clock() time.Time {
	return time.Now().Add(time.Duration(s.clockOffset.Load()))
}

// RefreshCalls returns how many RefreshToken operations have been served
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// GetDB returns the database connection
func (s *Server) GetDB() *gorm.DB {
	return s.db
}

// seed creates the configured user and a welcome post if the user is missing
func (s *Server) seed(ctx context.Context) error {
	if s.config.SeedEmail == "" {
		return nil
	}

	email := strings.ToLower(s.config.SeedEmail)
	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up seed user: %w", err)
	}

	hash, err := auth.HashPassword(s.config.SeedPassword)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := models.User{
			Email:        email,
			PasswordHash: hash,
			Name:         s.config.SeedName,
			Role:         models.RoleOwner,
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create seed user: %w", err)
		}

		post := models.Post{
			AuthorID: user.ID,
			Title:    "Welcome to Quill",
			Content:  "Your first post. Edit or delete it, then start writing.",
			Status:   models.PostPublished,
			Tags:     []string{"welcome"},
		}
		if err := tx.Create(&post).Error; err != nil {
			return fmt.Errorf("failed to create welcome post: %w", err)
		}

		s.logger.Info().Str("email", email).Msg("Seeded development user")
		return nil
	})
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/health", s.healthCheck)
	s.router.POST("/graphql", s.graphql)
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := s.logger.Debug()
		if p, ok := GetPrincipal(c); ok {
			event = event.Str("user_id", p.UserID)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("operation", c.GetString(operationKey)).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "quill-devbackend",
	})
}

// Start serves on addr until SIGINT or SIGTERM
func (s *Server) Start(addr string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting development GraphQL server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	if s.purger != nil {
		s.purger.start()
	}

	select {
	case err := <-errChan:
		s.Close()
		return fmt.Errorf("HTTP server error: %w", err)
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.Close()
	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

// Close stops the purge job and releases the database and Redis connections
func (s *Server) Close() {
	if s.purger != nil {
		s.purger.stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing Redis client")
		}
	}
	// Close database connection to flush WAL writes
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		}
	}
}
