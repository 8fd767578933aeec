// Package server provides the HTTP API for Miru.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/config"
	"github.com/hyperjump/miru/internal/retrieval"
)

// Server is the HTTP server for the Miru API.
type Server struct {
	coordinator *retrieval.Coordinator
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(coordinator *retrieval.Coordinator, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		coordinator: coordinator,
		config:      cfg,
		logger:      logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search/text", s.handleSearchText)
	r.Post("/api/v1/search/image", s.handleSearchImage)
	r.Post("/api/v1/feedback/relevance", s.handleRelevanceFeedback)
	r.Post("/api/v1/feedback/pseudo", s.handlePseudoFeedback)
	r.Get("/api/v1/sessions/{id}", s.handleGetSession)
	r.Post("/api/v1/items", s.handleIngest)
	r.Post("/api/v1/items/image", s.handleIngestImage)
	r.Get("/api/v1/items/search", s.handleMetadataSearch)
	r.Get("/api/v1/visualization/trajectory", s.handleTrajectory)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
