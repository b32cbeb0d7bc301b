// Package server provides the HTTP API of the kikoe dashboard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/corpus"
	"github.com/hyperjump/kikoe/internal/workspace"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
)

// Server is the HTTP server of the dashboard API. It serves one workspace.
type Server struct {
	ws     *workspace.Workspace
	corpus *corpus.Browser
	logger *zap.Logger
	server *http.Server

	// jobs outlives single requests: syntheses keep running when the client goes away
	// and end when the server stops.
	jobs       context.Context
	cancelJobs context.CancelFunc
}

// NewServer creates a server with the given dependencies.
func NewServer(
	ws *workspace.Workspace,
	browser *corpus.Browser,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	jobs, cancel := context.WithCancel(context.Background())
	s := &Server{
		ws:         ws,
		corpus:     browser,
		logger:     utils.OrNop(logger),
		jobs:       jobs,
		cancelJobs: cancel,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/search/reset", s.handleSearchReset)
		r.Get("/state", s.handleState)
		r.Post("/summaries", s.handleSummaries)
		r.Post("/synthesis/{kind}/{id}", s.handleSynthesize)
		r.Get("/synthesis/{kind}/{id}", s.handleGetSynthesis)
		r.Put("/selection", s.handleSelection)
		r.Post("/macro", s.handleMacro)
		r.Post("/themes", s.handleThemes)
		r.Get("/export/{format}", s.handleExport)
		r.Get("/corpus", s.handleCorpus)
		r.Get("/corpus/{type}/{id}", s.handleCorpusDocument)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops. After Stop it returns
// http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop aborts running syntheses and gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.cancelJobs()
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
