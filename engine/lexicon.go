package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TermSet holds the lexicon terms for a single entity type. Strong terms
// identify the type on their own; weak terms only support a candidate.
type TermSet struct {
	Strong []string `json:"strong"`
	Weak   []string `json:"weak"`
}

type compiledTermSet struct {
	strong map[string]struct{}
	weak   map[string]struct{}
}

// Lexicon maps entity types to their term sets and anchors candidate
// generation: only spans hitting a term become scoring candidates.
type Lexicon struct {
	types map[string]compiledTermSet
	names []string
}

// Default clinical vocabulary for the annotation platform's NER projects.
// Projects override or extend it through a JSON lexicon file.
var defaultTermSets = map[string]TermSet{
	"condition": {
		Strong: []string{
			"diabetes", "type 2 diabetes", "hypertension", "asthma",
			"pneumonia", "copd", "heart failure", "atrial fibrillation",
			"anemia", "sepsis", "stroke", "depression", "anxiety",
			"chronic kidney disease", "obesity", "arthritis", "cancer",
			"hyperlipidemia", "hypothyroidism", "migraine",
		},
		Weak: []string{
			"disease", "disorder", "syndrome", "infection", "failure",
			"chronic", "acute", "insufficiency", "deficiency",
		},
	},
	"medication": {
		Strong: []string{
			"metformin", "lisinopril", "atorvastatin", "aspirin",
			"insulin", "amoxicillin", "ibuprofen", "omeprazole",
			"warfarin", "albuterol", "prednisone", "levothyroxine",
			"amlodipine", "gabapentin", "sertraline", "furosemide",
		},
		Weak: []string{
			"tablet", "capsule", "injection", "dose", "medication",
			"drug", "therapy", "treatment",
		},
	},
	"procedure": {
		Strong: []string{
			"appendectomy", "colonoscopy", "biopsy", "mri", "ct scan",
			"x-ray", "echocardiogram", "dialysis", "intubation",
			"catheterization", "endoscopy", "angioplasty", "bypass surgery",
		},
		Weak: []string{
			"surgery", "scan", "imaging", "screening", "resection",
			"transplant", "procedure",
		},
	},
	"symptom": {
		Strong: []string{
			"chest pain", "shortness of breath", "fatigue", "nausea",
			"vomiting", "dizziness", "headache", "fever", "cough",
			"palpitations", "abdominal pain", "weight loss", "edema",
		},
		Weak: []string{
			"pain", "ache", "discomfort", "swelling", "weakness",
		},
	},
	"anatomy": {
		Strong: []string{
			"left ventricle", "right atrium", "liver", "kidney", "lung",
			"pancreas", "spleen", "aorta", "femur", "thyroid", "colon",
			"gallbladder",
		},
		Weak: []string{
			"artery", "vein", "muscle", "bone", "lobe", "valve",
		},
	},
	"dosage": {
		Strong: []string{
			"mg", "mcg", "ml", "units", "mg/dl", "twice daily",
			"once daily", "every 8 hours", "as needed",
		},
		Weak: []string{
			"daily", "weekly", "hourly",
		},
	},
}

// NewLexicon compiles the default vocabulary.
func NewLexicon() *Lexicon {
	return compileLexicon(defaultTermSets)
}

// LoadLexicon compiles the defaults merged with overrides from a JSON file.
// An empty path returns the defaults unchanged.
func LoadLexicon(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return NewLexicon(), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	overrides := make(map[string]TermSet)
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	merged := make(map[string]TermSet, len(defaultTermSets)+len(overrides))
	for name, set := range defaultTermSets {
		merged[name] = set
	}
	for name, set := range overrides {
		merged[name] = set
	}
	return compileLexicon(merged), nil
}

func compileLexicon(raw map[string]TermSet) *Lexicon {
	lex := &Lexicon{types: make(map[string]compiledTermSet, len(raw))}
	for name, set := range raw {
		key := normalizeTerm(name)
		if key == "" {
			continue
		}
		lex.types[key] = compiledTermSet{
			strong: termIndex(set.Strong),
			weak:   termIndex(set.Weak),
		}
		lex.names = append(lex.names, key)
	}
	sort.Strings(lex.names)
	return lex
}

func termIndex(terms []string) map[string]struct{} {
	idx := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		normed := normalizeTerm(t)
		if normed == "" {
			continue
		}
		idx[normed] = struct{}{}
	}
	return idx
}

// Has reports whether the entity type is part of the vocabulary.
func (l *Lexicon) Has(entityType string) bool {
	_, ok := l.types[normalizeTerm(entityType)]
	return ok
}

// Types returns the vocabulary type names in sorted order.
func (l *Lexicon) Types() []string {
	return append([]string(nil), l.names...)
}

// match returns the rule weight of a normalized phrase for the given type:
// strongTermWeight, weakTermWeight or 0 when the phrase is not in the
// lexicon.
func (l *Lexicon) match(entityType, normedPhrase string) float32 {
	set, ok := l.types[entityType]
	if !ok {
		return 0
	}
	if _, ok := set.strong[normedPhrase]; ok {
		return strongTermWeight
	}
	if _, ok := set.weak[normedPhrase]; ok {
		return weakTermWeight
	}
	return 0
}

// prototypeText builds the phrase embedded as the type's prototype vector.
// Strong terms define the type; the type name itself is included so sparse
// lexicons still produce a usable direction.
func (l *Lexicon) prototypeText(entityType string) string {
	set, ok := l.types[entityType]
	if !ok {
		return entityType
	}
	terms := make([]string, 0, len(set.strong)+1)
	terms = append(terms, entityType)
	for t := range set.strong {
		terms = append(terms, t)
	}
	sort.Strings(terms[1:])
	return strings.Join(terms, " ")
}
