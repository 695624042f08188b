package engine

// Quality blend weights and risk predicate thresholds. The blend
// renormalizes over the evidence actually present, so a missing agreement
// signal or an unseen annotator shifts weight to the remaining terms
// instead of dragging the estimate down.
const (
	validityWeight  = 0.40
	agreementWeight = 0.35
	priorWeight     = 0.25

	baseConfidence      = 0.35
	agreementConfidence = 0.25
	historyConfidence   = 0.40
	historySaturation   = 20

	lowAgreementLevel  = 0.5
	shortTaskMillis    = 2000.0
	unreliableMean     = 0.6
	unreliableMinCount = 5
	newAnnotatorCount  = 3
	overlapPenaltyStep = 0.1
	overlapPenaltyCap  = 0.5
	emptyNERValidity   = 0.5
)

// Risk factor vocabulary. Predicates are independent; an estimate may carry
// any subset, always in this order.
const (
	RiskEmptyAnnotation     = "empty_annotation"
	RiskInvalidSpans        = "invalid_spans"
	RiskOverlappingSpans    = "overlapping_spans"
	RiskLowAgreement        = "low_agreement"
	RiskShortTaskTime       = "short_task_time"
	RiskUnreliableAnnotator = "unreliable_annotator"
	RiskNewAnnotator        = "new_annotator"
)

// Estimator predicts annotation quality from a small feature vector derived
// from the annotation payload plus a caller-supplied actor signal. It holds
// no state; identical inputs always yield identical estimates.
type Estimator struct{}

// NewEstimator returns a ready estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

type annotationFeatures struct {
	taskType     string
	entityCount  int
	invalidCount int
	overlapCount int
	agreement    float64
	hasAgreement bool
	durationMS   float64
	hasDuration  bool
}

// Estimate scores a completed annotation. The annotation payload is an
// opaque JSON object; only the minimal shape the estimator reads is
// validated. The actor signal is passed in by the caller, the engine never
// fetches history itself.
func (e *Estimator) Estimate(annotation map[string]any, actorID, taskType string, signal ActorSignal) (QualityEstimate, error) {
	feats, err := extractFeatures(annotation, taskType)
	if err != nil {
		return QualityEstimate{}, err
	}

	quality := blendQuality(feats, signal)
	confidence := baseConfidence
	if feats.hasAgreement {
		confidence += agreementConfidence
	}
	history := float64(signal.SampleCount) / historySaturation
	if history > 1 {
		history = 1
	}
	confidence += historyConfidence * history

	return QualityEstimate{
		PredictedQuality: clamp01f64(quality),
		Confidence:       clamp01f64(confidence),
		RiskFactors:      riskFactors(feats, signal),
	}, nil
}

func blendQuality(feats annotationFeatures, signal ActorSignal) float64 {
	validity := spanValidity(feats)

	total := validityWeight
	sum := validityWeight * validity
	if feats.hasAgreement {
		total += agreementWeight
		sum += agreementWeight * feats.agreement
	}
	if signal.SampleCount > 0 {
		total += priorWeight
		sum += priorWeight * clamp01f64(signal.MeanQuality)
	}
	return sum / total
}

func spanValidity(feats annotationFeatures) float64 {
	if feats.entityCount == 0 {
		if feats.taskType == "ner" {
			return emptyNERValidity
		}
		return 1
	}
	valid := float64(feats.entityCount-feats.invalidCount) / float64(feats.entityCount)
	penalty := overlapPenaltyStep * float64(feats.overlapCount)
	if penalty > overlapPenaltyCap {
		penalty = overlapPenaltyCap
	}
	return clamp01f64(valid * (1 - penalty))
}

func riskFactors(feats annotationFeatures, signal ActorSignal) []string {
	factors := make([]string, 0, 4)
	if feats.taskType == "ner" && feats.entityCount == 0 {
		factors = append(factors, RiskEmptyAnnotation)
	}
	if feats.invalidCount > 0 {
		factors = append(factors, RiskInvalidSpans)
	}
	if feats.overlapCount > 0 {
		factors = append(factors, RiskOverlappingSpans)
	}
	if feats.hasAgreement && feats.agreement < lowAgreementLevel {
		factors = append(factors, RiskLowAgreement)
	}
	if feats.hasDuration && feats.durationMS < shortTaskMillis {
		factors = append(factors, RiskShortTaskTime)
	}
	if signal.SampleCount >= unreliableMinCount && signal.MeanQuality < unreliableMean {
		factors = append(factors, RiskUnreliableAnnotator)
	}
	if signal.SampleCount < newAnnotatorCount {
		factors = append(factors, RiskNewAnnotator)
	}
	return factors
}

func extractFeatures(annotation map[string]any, taskType string) (annotationFeatures, error) {
	feats := annotationFeatures{taskType: normalizeTerm(taskType)}
	if annotation == nil {
		return feats, invalidInputf("annotation_data must be an object")
	}

	spans, count, invalid, err := readEntitySpans(annotation, "entities", feats.taskType == "ner")
	if err != nil {
		return feats, err
	}
	feats.entityCount = count
	feats.invalidCount = invalid
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].Overlaps(spans[j]) {
				feats.overlapCount++
			}
		}
	}

	refs, refCount, _, err := readEntitySpans(annotation, "reference_entities", false)
	if err != nil {
		return feats, err
	}
	if refCount > 0 {
		feats.agreement = averageIoU(spans, refs)
		feats.hasAgreement = true
	}

	for _, key := range []string{"time_spent_ms", "duration_ms"} {
		if v, ok := annotation[key]; ok {
			if ms, ok := asNumber(v); ok {
				feats.durationMS = ms
				feats.hasDuration = true
				break
			}
		}
	}
	return feats, nil
}

// readEntitySpans pulls the span list stored under key. When required is
// set, a missing or malformed list is an InvalidInput error; otherwise it
// degrades to an empty result. Entries without numeric start/end count
// toward the total but not toward the span list.
func readEntitySpans(annotation map[string]any, key string, required bool) ([]Span, int, int, error) {
	raw, ok := annotation[key]
	if !ok {
		if required {
			return nil, 0, 0, invalidInputf("annotation_data missing %q list", key)
		}
		return nil, 0, 0, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, 0, 0, invalidInputf("annotation_data field %q must be a list", key)
	}

	spans := make([]Span, 0, len(list))
	invalid := 0
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			invalid++
			continue
		}
		start, okS := asNumber(entry["start"])
		end, okE := asNumber(entry["end"])
		if !okS || !okE {
			invalid++
			continue
		}
		sp := Span{Start: int(start), End: int(end)}
		if sp.Start < 0 || sp.End <= sp.Start {
			invalid++
			continue
		}
		spans = append(spans, sp)
	}
	return spans, len(list), invalid, nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
