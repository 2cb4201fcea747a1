// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package api exposes job submission, job status, and collection management
// over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	// DefaultChatTimeout bounds how long POST /chat waits for an answer
	// before returning the job id instead.
	DefaultChatTimeout = 60 * time.Second

	defaultPollInterval    = 100 * time.Millisecond
	defaultShutdownTimeout = 10 * time.Second
)

// DefaultCORSOrigins matches the development frontend.
var DefaultCORSOrigins = []string{"http://localhost:3000"}

// Server routes HTTP requests to the job service and the collection store.
type Server struct {
	jobs         Jobs
	collections  Collections
	corsOrigins  []string
	chatTimeout  time.Duration
	pollInterval time.Duration
	now          func() time.Time
	engine       *gin.Engine
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithCORSOrigins sets the allowed browser origins. A single "*" allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) error {
		s.corsOrigins = origins
		return nil
	}
}

// WithChatTimeout sets how long POST /chat waits for its job.
func WithChatTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return errors.New("chat timeout must be positive")
		}
		s.chatTimeout = d
		return nil
	}
}

// WithPollInterval sets how often POST /chat checks its job.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) error {
		s.pollInterval = d
		return nil
	}
}

// WithClock overrides the time source used by the health check.
func WithClock(now func() time.Time) Option {
	return func(s *Server) error {
		s.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewServer builds the router.
func NewServer(jobs Jobs, collections Collections, opts ...Option) (*Server, error) {
	if jobs == nil {
		return nil, ErrJobsRequired
	}
	if collections == nil {
		return nil, ErrCollectionsRequired
	}

	s := &Server{
		jobs:         jobs,
		collections:  collections,
		corsOrigins:  DefaultCORSOrigins,
		chatTimeout:  DefaultChatTimeout,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "api")
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), recovery(s.logger), cors.New(s.corsConfig()))

	r.GET("/", s.root)
	r.GET("/health", s.health)

	r.POST("/scrape", s.scrape)
	r.POST("/upload-local", s.uploadLocal)
	r.POST("/chat", s.chat)

	jobs := r.Group("/jobs")
	{
		jobs.GET("", s.listJobs)
		jobs.GET("/:id", s.getJob)
	}

	collections := r.Group("/collections")
	{
		collections.GET("", s.listCollections)
		collections.GET("/:name/stats", s.collectionStats)
		collections.DELETE("/:name", s.deleteCollection)
	}
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(s.corsOrigins) == 1 && s.corsOrigins[0] == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = s.corsOrigins
	}
	return cfg
}

// Handler returns the router for use with an http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}
