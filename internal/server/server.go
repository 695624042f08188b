// Package server is the HTTP transport in front of the suggestion engine.
// It validates request shapes, calls exactly one engine operation per
// request and serializes the result; all scoring logic lives in the engine.
package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/glyphml/suggestions/engine"
	"github.com/glyphml/suggestions/internal/config"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "ml-suggestions"

// EntityScorer is the engine operation behind POST /suggestions/ner.
type EntityScorer interface {
	Score(ctx context.Context, text string, allowedTypes []string, maxResults int, minConfidence float32) ([]engine.Entity, error)
}

// QualityEstimator is the engine operation behind POST /suggestions/quality.
type QualityEstimator interface {
	Estimate(annotation map[string]any, actorID, taskType string, signal engine.ActorSignal) (engine.QualityEstimate, error)
}

// TaskSource supplies the unlabeled task pool for a project.
type TaskSource interface {
	Pool(ctx context.Context, projectID string, limit int) ([]engine.TaskDescriptor, error)
}

// AnnotatorSource supplies the historical quality signal for an annotator.
type AnnotatorSource interface {
	Signal(ctx context.Context, userID string) (engine.ActorSignal, error)
}

// Pinger reports collaborator liveness for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server wires the engine operations and their collaborators to routes.
type Server struct {
	logger     *zap.Logger
	cfg        *config.Manager
	scorer     EntityScorer
	estimator  QualityEstimator
	tasks      TaskSource
	annotators AnnotatorSource
	db         Pinger
}

// New builds a server. db may be nil when no database is configured; the
// health endpoint then skips the liveness probe.
func New(logger *zap.Logger, cfg *config.Manager, scorer EntityScorer, estimator QualityEstimator, tasks TaskSource, annotators AnnotatorSource, db Pinger) *Server {
	return &Server{
		logger:     logger,
		cfg:        cfg,
		scorer:     scorer,
		estimator:  estimator,
		tasks:      tasks,
		annotators: annotators,
		db:         db,
	}
}

// Handler returns the route mux wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/suggestions/ner", s.handleNER)
	mux.HandleFunc("/api/v1/suggestions/quality", s.handleQuality)
	mux.HandleFunc("/api/v1/suggestions/active-learning", s.handleActiveLearning)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return corsMiddleware(mux)
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully. overrideAddr takes precedence over the configured
// address when non-empty. The returned channel reports the listener
// outcome.
func (s *Server) Start(ctx context.Context, overrideAddr string) (<-chan error, error) {
	addr := overrideAddr
	if addr == "" {
		addr = s.cfg.Snapshot().Server.Address
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", srv.Addr))
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}()
	return errChan, nil
}

// corsMiddleware mirrors the permissive CORS policy of the rest of the
// annotation platform's services.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
