package engine

import "context"

// Entity is a suggested entity span over an input text. Start and End are
// half-open byte offsets into the text the entity was scored against, so
// text[Start:End] == Text always holds.
type Entity struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// QualityEstimate is the result of scoring a completed annotation.
// Confidence describes how certain the estimator itself is, not the
// annotation quality.
type QualityEstimate struct {
	PredictedQuality float64  `json:"predicted_quality"`
	Confidence       float64  `json:"confidence"`
	RiskFactors      []string `json:"risk_factors"`
}

// ActorSignal carries the historical quality signal for an annotator.
// It is supplied by the caller; the engine never fetches it.
type ActorSignal struct {
	MeanQuality float64
	SampleCount int
}

// TaskDescriptor describes one unlabeled task eligible for selection.
type TaskDescriptor struct {
	ID string
	// Uncertainty is the model uncertainty on the task, valid only when
	// HasUncertainty is set. Tasks without a signal rank as zero, they are
	// never excluded.
	Uncertainty    float64
	HasUncertainty bool
	// Features is an optional embedding used by the diversity strategy.
	Features []float32
}

// Selection holds the chosen task identifiers, highest priority first,
// together with the scalar score that produced the ordering.
type Selection struct {
	TaskIDs []string
	Scores  map[string]float64
}

// Strategy selects the active-learning ranking policy.
type Strategy string

const (
	StrategyUncertainty Strategy = "uncertainty"
	StrategyDiversity   Strategy = "diversity"
	StrategyHybrid      Strategy = "hybrid"
)

// ParseStrategy validates a strategy name from the wire.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyUncertainty, StrategyDiversity, StrategyHybrid:
		return Strategy(s), nil
	}
	return "", invalidInputf("unknown strategy %q", s)
}

// Embedder is the capability interface the scorer depends on. The real
// implementation wraps an ONNX session; tests substitute a deterministic
// fake.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
