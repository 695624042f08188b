package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexiconDefaultsCoverCoreTypes(t *testing.T) {
	lex := NewLexicon()
	for _, typ := range []string{"condition", "medication", "procedure", "symptom", "anatomy", "dosage"} {
		assert.True(t, lex.Has(typ), "missing default type %q", typ)
	}
	assert.False(t, lex.Has("spaceship"))

	names := lex.Types()
	assert.True(t, sort.StringsAreSorted(names))
}

func TestLexiconMatchWeights(t *testing.T) {
	lex := NewLexicon()
	assert.Equal(t, float32(strongTermWeight), lex.match("condition", "diabetes"))
	assert.Equal(t, float32(weakTermWeight), lex.match("condition", "chronic"))
	assert.Equal(t, float32(0), lex.match("condition", "bicycle"))
	assert.Equal(t, float32(0), lex.match("nonexistent", "diabetes"))
}

func TestLexiconNormalizesTypesAndTerms(t *testing.T) {
	lex := NewLexicon()
	assert.True(t, lex.Has("  Condition "))
	assert.Equal(t, float32(strongTermWeight), lex.match("condition", normalizeTerm("  DIABETES ")))
}

func TestLoadLexiconMergesOverrides(t *testing.T) {
	overrides := map[string]TermSet{
		"gene": {
			Strong: []string{"BRCA1", "TP53"},
			Weak:   []string{"mutation"},
		},
		"condition": {
			Strong: []string{"lupus"},
		},
	}
	data, err := json.Marshal(overrides)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "lexicon.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	lex, err := LoadLexicon(path)
	require.NoError(t, err)

	assert.True(t, lex.Has("gene"))
	assert.Equal(t, float32(strongTermWeight), lex.match("gene", "brca1"))

	// Overriding a type replaces its term sets instead of merging them.
	assert.Equal(t, float32(strongTermWeight), lex.match("condition", "lupus"))
	assert.Equal(t, float32(0), lex.match("condition", "diabetes"))

	// Untouched defaults survive.
	assert.Equal(t, float32(strongTermWeight), lex.match("medication", "metformin"))
}

func TestLoadLexiconEmptyPathUsesDefaults(t *testing.T) {
	lex, err := LoadLexicon("   ")
	require.NoError(t, err)
	assert.True(t, lex.Has("condition"))
}

func TestLoadLexiconErrors(t *testing.T) {
	_, err := LoadLexicon(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadLexicon(path)
	assert.Error(t, err)
}

func TestPrototypeTextIsDeterministic(t *testing.T) {
	lex := NewLexicon()
	first := lex.prototypeText("condition")
	second := lex.prototypeText("condition")
	assert.Equal(t, first, second)
	assert.Contains(t, first, "condition")
	assert.Contains(t, first, "diabetes")
}
