// Package server exposes the ingestion pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/beerberidie/cutflow/internal/async"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/pipeline"
	"github.com/beerberidie/cutflow/internal/repository"
	"github.com/beerberidie/cutflow/internal/webhook"
)

// HealthFunc reports backing-store health.
type HealthFunc func(ctx context.Context) error

// Server wires the HTTP surface to the pipeline and repositories.
type Server struct {
	logger  *slog.Logger
	proc    *pipeline.Processor
	repo    repository.IngestRepository
	queue   async.Queue
	monitor *webhook.Monitor
	health  HealthFunc

	http *http.Server
}

func New(
	logger *slog.Logger,
	proc *pipeline.Processor,
	repo repository.IngestRepository,
	queue async.Queue,
	monitor *webhook.Monitor,
	health HealthFunc,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:  logger,
		proc:    proc,
		repo:    repo,
		queue:   queue,
		monitor: monitor,
		health:  health,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(propagateRequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/ingest/batch", s.handleIngestBatch)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRecord)
				r.Post("/re-extract", s.handleReExtract)
				r.Delete("/", s.handleDeleteRecord)
			})
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/stats", s.handleWebhookStats)
			r.Get("/failures", s.handleWebhookFailures)
		})
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

// propagateRequestID copies chi's request id into the shared context
// key so packages below the HTTP layer can tag their logs without
// importing chi.
func propagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			r = r.WithContext(common.WithRequestID(r.Context(), rid))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if s.monitor != nil {
		if h, err := s.monitor.Health(); err == nil {
			status["webhooks"] = h
		}
	}
	writeJSON(w, code, status)
}

// errStatus maps sentinel errors onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrParse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
