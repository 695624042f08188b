package engine

import "sort"

// Span is a half-open byte range [Start, End) into an input text.
type Span struct {
	Start int
	End   int
}

// Valid reports whether the span satisfies 0 <= Start < End <= textLen.
func (s Span) Valid(textLen int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= textLen
}

func (s Span) len() int {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Overlaps reports whether two spans share at least one position.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// IoU returns the intersection-over-union of two spans in [0, 1].
func (s Span) IoU(other Span) float64 {
	start := s.Start
	if other.Start > start {
		start = other.Start
	}
	end := s.End
	if other.End < end {
		end = other.End
	}
	inter := 0
	if end > start {
		inter = end - start
	}
	union := s.len() + other.len() - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// averageIoU greedily matches spans between two sets by descending IoU and
// averages matched pairs over the larger set, counting unmatched spans as
// zero agreement.
func averageIoU(a, b []Span) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	type pair struct {
		i, j int
		iou  float64
	}
	pairs := make([]pair, 0, len(a)*len(b))
	for i, sa := range a {
		for j, sb := range b {
			if iou := sa.IoU(sb); iou > 0 {
				pairs = append(pairs, pair{i, j, iou})
			}
		}
	}
	sort.SliceStable(pairs, func(x, y int) bool { return pairs[x].iou > pairs[y].iou })

	matchedA := make([]bool, len(a))
	matchedB := make([]bool, len(b))
	total := 0.0
	for _, p := range pairs {
		if matchedA[p.i] || matchedB[p.j] {
			continue
		}
		matchedA[p.i] = true
		matchedB[p.j] = true
		total += p.iou
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return total / float64(denom)
}
