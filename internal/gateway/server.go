// Package gateway is the browser-facing auth proxy. It forwards the auth
// operations to the GraphQL API and relays the HTTP-only refresh cookie, so
// browser code never handles the refresh credential.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quill-dev/quill/internal/auth"
	"github.com/quill-dev/quill/internal/backend"
	"github.com/quill-dev/quill/internal/config"
	"github.com/quill-dev/quill/internal/metrics"
)

var defaultAllowOrigins = []string{"http://localhost:5173"}

// Server represents the HTTP server
type Server struct {
	router   *gin.Engine
	config   config.GatewayConfig
	logger   zerolog.Logger
	upstream *backend.Client
	// proxy forwards raw GraphQL requests; it keeps no cookies
	proxy    *http.Client
	registry *prometheus.Registry
	metrics  *metrics.HTTP
	cookies  auth.CookieOptions
}

// New creates a new gateway for the given upstream GraphQL endpoint
func New(cfg config.GatewayConfig, graphqlURL string, zlog zerolog.Logger) (*Server, error) {
	proxy := &http.Client{Timeout: 30 * time.Second}

	upstream, err := backend.New(graphqlURL, backend.WithHTTPClient(proxy))
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		config:   cfg,
		logger:   zlog,
		upstream: upstream,
		proxy:    proxy,
		registry: registry,
		metrics:  metrics.NewHTTP(registry, "gateway"),
		cookies:  auth.CookieOptions{Secure: cfg.CookieSecure},
	}

	s.setupRouter()

	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	origins := s.config.AllowOrigins
	if len(origins) == 0 {
		origins = defaultAllowOrigins
	}
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	{
		api.POST("/auth/login", s.login)
		api.POST("/auth/refresh", s.refresh)
		api.POST("/auth/logout", s.logout)
		api.GET("/auth/me", s.me)
		api.POST("/graphql", s.graphql)
	}
}

// loggingMiddleware logs and measures every request
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		s.metrics.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "quill-gateway",
	})
}

// Start serves on the configured address until SIGINT or SIGTERM
func (s *Server) Start() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Str("upstream", s.upstream.Endpoint()).Msg("Starting auth gateway")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
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

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
