// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spigell/cv-scout/internal/pipeline"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// maxUploadBytes caps resume uploads; anything past it is rejected outright.
// Real resumes are tiny.
const maxUploadBytes = 10 << 20

// Runner executes one pipeline run per submitted document.
type Runner interface {
	Run(ctx context.Context, doc pipeline.Document) (*pipeline.Result, error)
}

type Config struct {
	Listen string
}

type Server struct {
	logger     *zap.Logger
	runner     Runner
	httpServer *http.Server
}

func New(cfg Config, runner Runner, logger *zap.Logger) *Server {
	s := &Server{logger: logger, runner: runner}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /upload", s.handleUpload)

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start serves until the context is canceled, then drains in-flight
// requests before returning.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		s.logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
