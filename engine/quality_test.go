package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nerAnnotation(entities ...map[string]any) map[string]any {
	list := make([]any, len(entities))
	for i, e := range entities {
		list[i] = any(e)
	}
	return map[string]any{"entities": list}
}

func TestEstimateIsDeterministic(t *testing.T) {
	est := NewEstimator()
	annotation := nerAnnotation(
		map[string]any{"start": float64(0), "end": float64(8), "text": "diabetes"},
		map[string]any{"start": float64(12), "end": float64(24)},
	)
	signal := ActorSignal{MeanQuality: 0.8, SampleCount: 12}

	first, err := est.Estimate(annotation, "user-123", "ner", signal)
	require.NoError(t, err)
	second, err := est.Estimate(annotation, "user-123", "ner", signal)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEstimateEmptyAnnotationStaysInRange(t *testing.T) {
	est := NewEstimator()

	out, err := est.Estimate(nerAnnotation(), "user-123", "ner", ActorSignal{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.PredictedQuality, 0.0)
	assert.LessOrEqual(t, out.PredictedQuality, 1.0)
	assert.GreaterOrEqual(t, out.Confidence, 0.0)
	assert.LessOrEqual(t, out.Confidence, 1.0)
	assert.Contains(t, out.RiskFactors, RiskEmptyAnnotation)

	seen := make(map[string]struct{}, len(out.RiskFactors))
	for _, f := range out.RiskFactors {
		_, dup := seen[f]
		assert.False(t, dup, "duplicate risk factor %q", f)
		seen[f] = struct{}{}
	}
}

func TestEstimateRejectsMalformedAnnotation(t *testing.T) {
	est := NewEstimator()

	cases := []struct {
		name       string
		annotation map[string]any
	}{
		{"nil payload", nil},
		{"missing entities for ner", map[string]any{"labels": []any{}}},
		{"entities not a list", map[string]any{"entities": "nope"}},
		{"reference_entities not a list", map[string]any{"entities": []any{}, "reference_entities": "nope"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := est.Estimate(tc.annotation, "user-123", "ner", ActorSignal{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestEstimateFlagsRiskFactors(t *testing.T) {
	est := NewEstimator()

	t.Run("invalid and overlapping spans", func(t *testing.T) {
		annotation := nerAnnotation(
			map[string]any{"start": float64(10), "end": float64(4)},
			map[string]any{"start": float64(0), "end": float64(8)},
			map[string]any{"start": float64(5), "end": float64(12)},
		)
		out, err := est.Estimate(annotation, "user-123", "ner", ActorSignal{MeanQuality: 0.9, SampleCount: 10})
		require.NoError(t, err)
		assert.Contains(t, out.RiskFactors, RiskInvalidSpans)
		assert.Contains(t, out.RiskFactors, RiskOverlappingSpans)
		assert.NotContains(t, out.RiskFactors, RiskNewAnnotator)
	})

	t.Run("short task time", func(t *testing.T) {
		annotation := nerAnnotation(map[string]any{"start": float64(0), "end": float64(8)})
		annotation["time_spent_ms"] = float64(500)
		out, err := est.Estimate(annotation, "user-123", "ner", ActorSignal{})
		require.NoError(t, err)
		assert.Contains(t, out.RiskFactors, RiskShortTaskTime)
	})

	t.Run("low agreement against reference", func(t *testing.T) {
		annotation := nerAnnotation(map[string]any{"start": float64(0), "end": float64(8)})
		annotation["reference_entities"] = []any{
			map[string]any{"start": float64(50), "end": float64(60)},
		}
		out, err := est.Estimate(annotation, "user-123", "ner", ActorSignal{})
		require.NoError(t, err)
		assert.Contains(t, out.RiskFactors, RiskLowAgreement)
	})

	t.Run("unreliable annotator", func(t *testing.T) {
		annotation := nerAnnotation(map[string]any{"start": float64(0), "end": float64(8)})
		out, err := est.Estimate(annotation, "user-123", "ner", ActorSignal{MeanQuality: 0.4, SampleCount: 20})
		require.NoError(t, err)
		assert.Contains(t, out.RiskFactors, RiskUnreliableAnnotator)
	})
}

func TestEstimateAgreementRaisesQuality(t *testing.T) {
	est := NewEstimator()
	span := map[string]any{"start": float64(0), "end": float64(8)}

	agreeing := nerAnnotation(span)
	agreeing["reference_entities"] = []any{map[string]any{"start": float64(0), "end": float64(8)}}

	disjoint := nerAnnotation(span)
	disjoint["reference_entities"] = []any{map[string]any{"start": float64(40), "end": float64(60)}}

	high, err := est.Estimate(agreeing, "user-123", "ner", ActorSignal{})
	require.NoError(t, err)
	low, err := est.Estimate(disjoint, "user-123", "ner", ActorSignal{})
	require.NoError(t, err)
	assert.Greater(t, high.PredictedQuality, low.PredictedQuality)
}

func TestEstimateActorPriorShiftsQuality(t *testing.T) {
	est := NewEstimator()
	annotation := nerAnnotation(map[string]any{"start": float64(0), "end": float64(8)})

	strong, err := est.Estimate(annotation, "a", "ner", ActorSignal{MeanQuality: 0.95, SampleCount: 30})
	require.NoError(t, err)
	weak, err := est.Estimate(annotation, "b", "ner", ActorSignal{MeanQuality: 0.2, SampleCount: 30})
	require.NoError(t, err)
	assert.Greater(t, strong.PredictedQuality, weak.PredictedQuality)
	assert.Greater(t, strong.Confidence, baseConfidence)
}

func TestEstimateNonNERTaskNeedsNoEntities(t *testing.T) {
	est := NewEstimator()
	out, err := est.Estimate(map[string]any{"label": "positive"}, "user-123", "classification", ActorSignal{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.PredictedQuality, 0.0)
	assert.LessOrEqual(t, out.PredictedQuality, 1.0)
	assert.NotContains(t, out.RiskFactors, RiskEmptyAnnotation)
}
