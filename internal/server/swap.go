package server

import (
	"context"
	"sync"

	"github.com/glyphml/suggestions/engine"
)

// ScorerSwap is an EntityScorer whose implementation can be replaced at
// runtime, so a configuration reload can rebuild the scorer (new lexicon,
// new weights) without restarting the listener.
type ScorerSwap struct {
	mu sync.RWMutex
	s  EntityScorer
}

func NewScorerSwap(s EntityScorer) *ScorerSwap {
	return &ScorerSwap{s: s}
}

// Swap installs the new scorer. Requests already in flight finish on the
// scorer they started with.
func (w *ScorerSwap) Swap(s EntityScorer) {
	w.mu.Lock()
	w.s = s
	w.mu.Unlock()
}

func (w *ScorerSwap) Score(ctx context.Context, text string, allowedTypes []string, maxResults int, minConfidence float32) ([]engine.Entity, error) {
	w.mu.RLock()
	s := w.s
	w.mu.RUnlock()
	return s.Score(ctx, text, allowedTypes, maxResults, minConfidence)
}
