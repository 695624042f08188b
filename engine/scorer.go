package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"unicode"
)

// Rule weights applied when a candidate phrase hits the lexicon. Strong
// terms carry the full bonus, weak terms a quarter of it.
const (
	strongTermWeight float32 = 1.0
	weakTermWeight   float32 = 0.25
)

// ScorerConfig tunes candidate scoring.
type ScorerConfig struct {
	// Alpha weights the embedding similarity, Beta the lexicon bonus.
	Alpha float32 `json:"alpha"`
	Beta  float32 `json:"beta"`
	// MaxSpanTokens caps the candidate n-gram width.
	MaxSpanTokens int `json:"maxSpanTokens"`
	// OverlapThreshold is the span IoU above which two candidates of the
	// same type are considered duplicates; the lower-scored one is dropped.
	// Overlaps across different types are always allowed.
	OverlapThreshold float64 `json:"overlapThreshold"`
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *ScorerConfig) ApplyDefaults() {
	if c.Alpha == 0 {
		c.Alpha = 0.8
	}
	if c.Beta == 0 {
		c.Beta = 0.2
	}
	if c.MaxSpanTokens <= 0 {
		c.MaxSpanTokens = 4
	}
	if c.OverlapThreshold == 0 {
		c.OverlapThreshold = 0.5
	}
}

// Scorer produces candidate entity spans with confidence scores. Candidate
// generation is lexicon-driven: token n-grams that hit a type's term set are
// scored against the type's prototype embedding. The scorer is stateless per
// call; prototype vectors are embedded once at construction and never
// mutated afterwards, so concurrent Score calls need no locking.
type Scorer struct {
	embedder Embedder
	lexicon  *Lexicon
	ids      IDSource
	cfg      ScorerConfig
	protos   map[string][]float32
}

// NewScorer embeds a prototype vector per vocabulary type and returns a
// ready scorer.
func NewScorer(ctx context.Context, embedder Embedder, lexicon *Lexicon, ids IDSource, cfg ScorerConfig) (*Scorer, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if lexicon == nil {
		lexicon = NewLexicon()
	}
	if ids == nil {
		ids = UUIDSource{}
	}
	cfg.ApplyDefaults()

	names := lexicon.Types()
	texts := make([]string, len(names))
	for i, name := range names {
		texts[i] = lexicon.prototypeText(name)
	}
	vecs, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed type prototypes: %w", err)
	}
	protos := make(map[string][]float32, len(names))
	for i, name := range names {
		protos[name] = vecs[i]
	}
	return &Scorer{
		embedder: embedder,
		lexicon:  lexicon,
		ids:      ids,
		cfg:      cfg,
		protos:   protos,
	}, nil
}

type candidate struct {
	span   Span
	typ    string
	normed string
	conf   float32
}

// Score returns candidate entities over text whose type is in allowedTypes
// and whose confidence is at least minConfidence, at most maxResults of
// them, ordered by confidence descending with ties broken by earliest start
// offset and then shortest span.
func (s *Scorer) Score(ctx context.Context, text string, allowedTypes []string, maxResults int, minConfidence float32) ([]Entity, error) {
	types, err := s.checkTypes(allowedTypes)
	if err != nil {
		return nil, err
	}
	if maxResults < 1 {
		return nil, invalidInputf("max_results must be >= 1, got %d", maxResults)
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, invalidInputf("min_confidence must be in [0,1], got %v", minConfidence)
	}
	if normalizeTerm(text) == "" {
		return []Entity{}, nil
	}

	cands := s.generate(text, types)
	if len(cands) == 0 {
		return []Entity{}, nil
	}
	if err := s.scoreCandidates(ctx, cands); err != nil {
		return nil, err
	}

	kept := cands[:0]
	for _, c := range cands {
		if c.conf >= minConfidence {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].conf != kept[j].conf {
			return kept[i].conf > kept[j].conf
		}
		if kept[i].span.Start != kept[j].span.Start {
			return kept[i].span.Start < kept[j].span.Start
		}
		return kept[i].span.len() < kept[j].span.len()
	})
	kept = s.suppressDuplicates(kept)

	if len(kept) > maxResults {
		kept = kept[:maxResults]
	}
	out := make([]Entity, len(kept))
	for i, c := range kept {
		out[i] = Entity{
			ID:         s.ids.NextID(),
			Type:       c.typ,
			Start:      c.span.Start,
			End:        c.span.End,
			Text:       text[c.span.Start:c.span.End],
			Confidence: c.conf,
		}
	}
	return out, nil
}

// checkTypes normalizes the requested types and rejects the whole request
// when the set is empty or any type is missing from the vocabulary; a single
// bad type is never silently ignored.
func (s *Scorer) checkTypes(allowedTypes []string) ([]string, error) {
	if len(allowedTypes) == 0 {
		return nil, invalidInputf("entity_types must not be empty")
	}
	seen := make(map[string]struct{}, len(allowedTypes))
	types := make([]string, 0, len(allowedTypes))
	for _, raw := range allowedTypes {
		normed := normalizeTerm(raw)
		if !s.lexicon.Has(normed) {
			return nil, invalidInputf("unknown entity type %q", raw)
		}
		if _, ok := seen[normed]; ok {
			continue
		}
		seen[normed] = struct{}{}
		types = append(types, normed)
	}
	sort.Strings(types)
	return types, nil
}

func (s *Scorer) generate(text string, types []string) []candidate {
	toks := tokenize(text)
	var cands []candidate
	for i := range toks {
		for n := 1; n <= s.cfg.MaxSpanTokens && i+n <= len(toks); n++ {
			sp := Span{Start: toks[i].start, End: toks[i+n-1].end}
			normed := normalizeTerm(text[sp.Start:sp.End])
			if normed == "" {
				continue
			}
			for _, typ := range types {
				if s.lexicon.match(typ, normed) > 0 {
					cands = append(cands, candidate{span: sp, typ: typ, normed: normed})
				}
			}
		}
	}
	return cands
}

// scoreCandidates embeds each distinct candidate phrase once and combines
// prototype similarity with the lexicon bonus.
func (s *Scorer) scoreCandidates(ctx context.Context, cands []candidate) error {
	distinct := make([]string, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.normed]; ok {
			continue
		}
		seen[c.normed] = struct{}{}
		distinct = append(distinct, c.normed)
	}
	sort.Strings(distinct)

	vecs, err := s.embedder.EmbedTexts(ctx, distinct)
	if err != nil {
		return unavailablef("embed candidates: %v", err)
	}
	byPhrase := make(map[string][]float32, len(distinct))
	for i, phrase := range distinct {
		byPhrase[phrase] = vecs[i]
	}

	for i := range cands {
		c := &cands[i]
		sim := cosine32(byPhrase[c.normed], s.protos[c.typ])
		if sim < 0 {
			sim = 0
		}
		bonus := s.lexicon.match(c.typ, c.normed) / strongTermWeight
		c.conf = clamp01(s.cfg.Alpha*sim + s.cfg.Beta*bonus + tinyBias(c.typ+":"+c.normed))
	}
	return nil
}

// suppressDuplicates drops same-type candidates that heavily overlap an
// already accepted higher-scored candidate. Input must be sorted best-first.
func (s *Scorer) suppressDuplicates(cands []candidate) []candidate {
	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		dup := false
		for _, k := range kept {
			if k.typ == c.typ && k.span.IoU(c.span) >= s.cfg.OverlapThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}

type token struct {
	start int
	end   int
}

// tokenize splits text into word tokens with byte offsets. Hyphens and
// slashes stay inside tokens so terms like "x-ray" and "mg/dl" survive.
func tokenize(text string) []token {
	var toks []token
	start := -1
	for i, r := range text {
		if isTokenRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			toks = append(toks, token{start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		toks = append(toks, token{start: start, end: len(text)})
	}
	return toks
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '/'
}
