package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/glyphml/suggestions/engine"
)

// Wire defaults and bounds, matching the platform's API contract. Values
// outside the bounds are rejected, never clamped.
const (
	defaultMaxSuggestions = 10
	defaultMinConfidence  = 0.5
	defaultCount          = 10
	maxRequestedItems     = 100
	maxBodyBytes          = 1 << 20
)

type nerRequest struct {
	Text           string   `json:"text"`
	EntityTypes    []string `json:"entity_types"`
	Model          string   `json:"model"`
	MaxSuggestions *int     `json:"max_suggestions"`
	MinConfidence  *float64 `json:"min_confidence"`
}

type nerResponse struct {
	Suggestions      []engine.Entity `json:"suggestions"`
	Model            string          `json:"model"`
	ProcessingTimeMS float64         `json:"processing_time_ms"`
}

func (s *Server) handleNER(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With(zap.String("handler", "ner"))
	var req nerRequest
	if !s.decodeBody(w, r, logger, &req) {
		return
	}

	maxSuggestions := defaultMaxSuggestions
	if req.MaxSuggestions != nil {
		maxSuggestions = *req.MaxSuggestions
	}
	if maxSuggestions < 1 || maxSuggestions > maxRequestedItems {
		writeDetail(w, http.StatusBadRequest, "max_suggestions must be between 1 and 100")
		return
	}
	minConfidence := defaultMinConfidence
	if req.MinConfidence != nil {
		minConfidence = *req.MinConfidence
	}
	if minConfidence < 0 || minConfidence > 1 {
		writeDetail(w, http.StatusBadRequest, "min_confidence must be in [0, 1]")
		return
	}
	model := req.Model
	if model == "" {
		model = "default"
	}

	start := time.Now()
	suggestions, err := s.scorer.Score(r.Context(), req.Text, req.EntityTypes, maxSuggestions, float32(minConfidence))
	if err != nil {
		s.writeEngineError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nerResponse{
		Suggestions:      suggestions,
		Model:            model,
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	})
}

type qualityRequest struct {
	AnnotationData map[string]any `json:"annotation_data"`
	UserID         string         `json:"user_id"`
	TaskType       string         `json:"task_type"`
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With(zap.String("handler", "quality"))
	var req qualityRequest
	if !s.decodeBody(w, r, logger, &req) {
		return
	}
	if req.UserID == "" {
		writeDetail(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.TaskType == "" {
		writeDetail(w, http.StatusBadRequest, "task_type is required")
		return
	}

	// Historical actor signal is a store concern; the estimator only
	// consumes it. An annotator without history degrades to a zero signal.
	signal, err := s.annotators.Signal(r.Context(), req.UserID)
	if err != nil {
		logger.Error("Failed to load annotator signal", zap.String("user_id", req.UserID), zap.Error(err))
		writeDetail(w, http.StatusServiceUnavailable, "annotator history unavailable")
		return
	}

	estimate, err := s.estimator.Estimate(req.AnnotationData, req.UserID, req.TaskType, signal)
	if err != nil {
		s.writeEngineError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

type activeLearningRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Strategy  string `json:"strategy"`
	Count     *int   `json:"count"`
}

type activeLearningResponse struct {
	TaskIDs         []string           `json:"task_ids"`
	StrategyUsed    string             `json:"strategy_used"`
	SelectionScores map[string]float64 `json:"selection_scores"`
}

func (s *Server) handleActiveLearning(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With(zap.String("handler", "active-learning"))
	var req activeLearningRequest
	if !s.decodeBody(w, r, logger, &req) {
		return
	}
	if req.ProjectID == "" {
		writeDetail(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.Strategy == "" {
		req.Strategy = string(engine.StrategyUncertainty)
	}
	strategy, err := engine.ParseStrategy(req.Strategy)
	if err != nil {
		s.writeEngineError(w, logger, err)
		return
	}
	count := defaultCount
	if req.Count != nil {
		count = *req.Count
	}
	if count < 1 || count > maxRequestedItems {
		writeDetail(w, http.StatusBadRequest, "count must be between 1 and 100")
		return
	}

	snap := s.cfg.Snapshot()
	pool, err := s.tasks.Pool(r.Context(), req.ProjectID, snap.Selector.PoolLimit)
	if err != nil {
		logger.Error("Failed to load task pool", zap.String("project_id", req.ProjectID), zap.Error(err))
		writeDetail(w, http.StatusServiceUnavailable, "task pool unavailable")
		return
	}

	selector := engine.NewSelector(snap.SelectorConfig())
	selection, err := selector.Select(pool, strategy, count)
	if err != nil {
		s.writeEngineError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, activeLearningResponse{
		TaskIDs:         selection.TaskIDs,
		StrategyUsed:    string(strategy),
		SelectionScores: selection.Scores,
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := healthResponse{
		Status:  "healthy",
		Service: ServiceName,
		Version: s.cfg.Snapshot().Server.Version,
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("Health check: database unreachable", zap.Error(err))
			resp.Status = "unhealthy"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "Glyph ML Suggestions",
		"version": s.cfg.Snapshot().Server.Version,
	})
}

// decodeBody enforces POST with a JSON body and decodes into dst. It
// writes the error response itself and reports whether to continue.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		logger.Debug("Malformed request body", zap.Error(err))
		writeDetail(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// writeEngineError maps the engine error taxonomy onto status codes.
// Internal faults are logged and surfaced generically.
func (s *Server) writeEngineError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrUnavailable):
		logger.Warn("Engine collaborator unavailable", zap.Error(err))
		writeDetail(w, http.StatusServiceUnavailable, "suggestion model unavailable")
	default:
		logger.Error("Engine operation failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
