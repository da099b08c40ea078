// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server hosts the benchmark dashboard: a small gin API over
// the baseline store, a prometheus scrape endpoint, and a websocket
// that streams run progress to connected clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/nlqbench/services/harness/baseline"
	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
	"github.com/AleutianAI/nlqbench/services/harness/telemetry"
)

const (
	defaultAddr          = ":8080"
	defaultShutdownGrace = 5 * time.Second
)

// =============================================================================
// Options
// =============================================================================

type options struct {
	logger  *slog.Logger
	service string
}

func defaultOptions() *options {
	return &options{
		logger:  slog.Default(),
		service: "nlqbench",
	}
}

// Option configures the server.
type Option func(*options)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithServiceName names the otelgin middleware spans.
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.service = name
		}
	}
}

// =============================================================================
// Server
// =============================================================================

// Server is the dashboard HTTP server.
//
// # Thread Safety
//
// Safe for concurrent use. Publish may be called from any goroutine,
// including while Run is serving.
type Server struct {
	cfg    config.ServerConfig
	store  *baseline.Store
	engine *gin.Engine
	hub    *hub
	logger *slog.Logger
}

// New builds the dashboard server over the given baseline store.
//
// # Inputs
//
//   - cfg: listen address and shutdown grace. Zero values fall back
//     to ":8080" and 5s.
//   - store: run storage backing the /api/runs endpoints.
//   - opts: optional logger and otelgin service name.
//
// # Outputs
//
//   - *Server: ready to Run. Routes are registered, nothing listens yet.
//   - error: ErrNilStore when store is nil.
func New(cfg config.ServerConfig, store *baseline.Store, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		hub:    newHub(),
		logger: o.logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(o.service))

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", s.handleMetrics)
	engine.GET("/ws", s.handleWS)
	api := engine.Group("/api")
	{
		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)
	}

	s.engine = engine
	return s, nil
}

// Handler exposes the route tree for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Publish records one runner event in the prometheus collectors and
// fans it out to connected websocket clients. Never blocks.
func (s *Server) Publish(ev runner.Event) {
	observe(ev)
	s.hub.broadcast(ev)
}

// Consume pumps a runner event channel into Publish until the channel
// closes. Callers run it in its own goroutine alongside the run.
func (s *Server) Consume(ch <-chan runner.Event) {
	for ev := range ch {
		s.Publish(ev)
	}
}

// Run listens on the configured address until ctx is cancelled, then
// drains in-flight requests within the shutdown grace and closes the
// websocket clients.
//
// # Outputs
//
//   - error: nil on clean shutdown, the listen or drain failure
//     otherwise.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("dashboard listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard serve failed: %w", err)
	case <-ctx.Done():
	}

	grace := time.Duration(s.cfg.ShutdownGraceMs) * time.Millisecond
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	s.hub.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("dashboard stopped")
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleMetrics serves the default prometheus registry. The telemetry
// package's handler is preferred when metrics were initialized, so
// OTel instrument output and the native collectors share one scrape.
func (s *Server) handleMetrics(c *gin.Context) {
	h := telemetry.MetricsHandler()
	if h == nil {
		h = promhttp.Handler()
	}
	h.ServeHTTP(c.Writer, c.Request)
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs, err := s.store.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := c.Param("id")
	rep, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "run_id": id})
			return
		}
		s.logger.Error("failed to load run", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}
