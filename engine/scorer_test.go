package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps each token to a fixed dimension, giving deterministic
// bag-of-words vectors. Phrases sharing tokens with a type prototype land
// close to it, which is all the scorer needs.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("encoder offline")
	}
	vec := make([]float32, 64)
	for _, tok := range strings.Fields(text) {
		vec[fnv32(tok)%64]++
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		inv := 1 / float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func newTestScorer(t *testing.T, emb *fakeEmbedder) *Scorer {
	t.Helper()
	scorer, err := NewScorer(context.Background(), emb, NewLexicon(), &CounterSource{}, ScorerConfig{})
	require.NoError(t, err)
	return scorer
}

const clinicalNote = "Patient has diabetes and hypertension, prescribed metformin 500 mg twice daily."

func TestScorerEmptyTextYieldsEmptyResult(t *testing.T) {
	scorer := newTestScorer(t, &fakeEmbedder{})
	for _, text := range []string{"", "   \t\n"} {
		out, err := scorer.Score(context.Background(), text, []string{"condition"}, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, out)
	}
}

func TestScorerRejectsInvalidArguments(t *testing.T) {
	scorer := newTestScorer(t, &fakeEmbedder{})
	ctx := context.Background()

	cases := []struct {
		name    string
		types   []string
		max     int
		minConf float32
	}{
		{"empty types", nil, 10, 0},
		{"unknown type", []string{"condition", "starship"}, 10, 0},
		{"zero max results", []string{"condition"}, 0, 0},
		{"negative min confidence", []string{"condition"}, 10, -0.1},
		{"min confidence above one", []string{"condition"}, 10, 1.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := scorer.Score(ctx, clinicalNote, tc.types, tc.max, tc.minConf)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestScorerSpanInvariantAndBounds(t *testing.T) {
	scorer := newTestScorer(t, &fakeEmbedder{})
	types := []string{"condition", "medication", "dosage"}

	out, err := scorer.Score(context.Background(), clinicalNote, types, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	allowed := map[string]struct{}{"condition": {}, "medication": {}, "dosage": {}}
	for _, e := range out {
		assert.GreaterOrEqual(t, e.Start, 0)
		assert.Less(t, e.Start, e.End)
		assert.LessOrEqual(t, e.End, len(clinicalNote))
		assert.Equal(t, clinicalNote[e.Start:e.End], e.Text)
		assert.Contains(t, allowed, e.Type)
		assert.GreaterOrEqual(t, e.Confidence, float32(0))
		assert.LessOrEqual(t, e.Confidence, float32(1))
	}
}

func TestScorerTruncatesToMaxResults(t *testing.T) {
	scorer := newTestScorer(t, &fakeEmbedder{})
	types := []string{"condition", "medication", "dosage"}
	ctx := context.Background()

	full, err := scorer.Score(ctx, clinicalNote, types, 10, 0)
	require.NoError(t, err)
	require.Greater(t, len(full), 1)

	top, err := scorer.Score(ctx, clinicalNote, types, 1, 0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, full[0].Text, top[0].Text)
	assert.Equal(t, full[0].Confidence, top[0].Confidence)

	// Ordering: confidence descending, then earliest start, then shortest.
	for i := 1; i < len(full); i++ {
		prev, cur := full[i-1], full[i]
		if prev.Confidence == cur.Confidence {
			assert.LessOrEqual(t, prev.Start, cur.Start)
		} else {
			assert.Greater(t, prev.Confidence, cur.Confidence)
		}
	}
}

func TestScorerRespectsMinConfidence(t *testing.T) {
	scorer := newTestScorer(t, &fakeEmbedder{})
	types := []string{"condition", "medication", "dosage"}
	ctx := context.Background()

	full, err := scorer.Score(ctx, clinicalNote, types, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, full)

	threshold := full[0].Confidence
	filtered, err := scorer.Score(ctx, clinicalNote, types, 10, threshold)
	require.NoError(t, err)
	for _, e := range filtered {
		assert.GreaterOrEqual(t, e.Confidence, threshold)
	}
	assert.Less(t, len(filtered), len(full)+1)
}

func TestScorerSuppressesSameTypeOverlaps(t *testing.T) {
	scorer := newTestScorer(t, &fakeEmbedder{})

	// "type 2 diabetes" and "diabetes" are both strong condition terms and
	// overlap above the IoU threshold; only the better-scored one survives.
	out, err := scorer.Score(context.Background(), "Patient with type 2 diabetes.", []string{"condition"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestScorerSignalsUnavailableModel(t *testing.T) {
	emb := &fakeEmbedder{}
	scorer := newTestScorer(t, emb)

	emb.fail = true
	_, err := scorer.Score(context.Background(), clinicalNote, []string{"condition"}, 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScorerAssignsInjectedIDs(t *testing.T) {
	scorer := newTestScorer(t, &fakeEmbedder{})

	out, err := scorer.Score(context.Background(), clinicalNote, []string{"condition", "medication"}, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	seen := make(map[string]struct{}, len(out))
	for i, e := range out {
		assert.Equal(t, fmt.Sprintf("suggestion-%d", i+1), e.ID)
		_, dup := seen[e.ID]
		assert.False(t, dup)
		seen[e.ID] = struct{}{}
	}
}
