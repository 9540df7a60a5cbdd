// Package server provides the HTTP API for Shiraberu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/shiraberu/internal/config"
	"github.com/hyperjump/shiraberu/internal/generation"
	"github.com/hyperjump/shiraberu/internal/ingest"
	"github.com/hyperjump/shiraberu/internal/keyword"
	"github.com/hyperjump/shiraberu/internal/retrieval"
	"github.com/hyperjump/shiraberu/internal/storage"
	"github.com/hyperjump/shiraberu/internal/vector"
)

// Version is reported by the health and stats endpoints.
const Version = "1.0.0"

// requestTimeout bounds every request, including upload processing.
const requestTimeout = 60 * time.Second

// Server is the HTTP server for the Shiraberu API.
type Server struct {
	engine       *retrieval.Engine
	ingester     *ingest.Ingester
	store        storage.Storage
	index        *vector.FlatIndex
	keywordIndex keyword.Index
	generator    *generation.Client
	cfg          *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies. generator may be
// nil, which disables document summaries.
func NewServer(
	engine *retrieval.Engine,
	ingester *ingest.Ingester,
	store storage.Storage,
	index *vector.FlatIndex,
	keywordIndex keyword.Index,
	generator *generation.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:       engine,
		ingester:     ingester,
		store:        store,
		index:        index,
		keywordIndex: keywordIndex,
		generator:    generator,
		cfg:          cfg,
		logger:       logger,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/query", s.handleQuery)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Handler returns the server's HTTP handler with all middleware and routes
// mounted, for embedding and for tests that drive the API in-process.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
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

// requestLogger logs one line per request with the chi request id.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
