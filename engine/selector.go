package engine

import "sort"

// SelectorConfig tunes the hybrid strategy's score combination.
type SelectorConfig struct {
	UncertaintyWeight float64 `json:"uncertaintyWeight"`
	DiversityWeight   float64 `json:"diversityWeight"`
}

// ApplyDefaults falls back to equal weights.
func (c *SelectorConfig) ApplyDefaults() {
	if c.UncertaintyWeight <= 0 && c.DiversityWeight <= 0 {
		c.UncertaintyWeight = 0.5
		c.DiversityWeight = 0.5
	}
	if c.UncertaintyWeight < 0 {
		c.UncertaintyWeight = 0
	}
	if c.DiversityWeight < 0 {
		c.DiversityWeight = 0
	}
}

// Selector picks the tasks most valuable to annotate next. It never mutates
// the pool and keeps no state between calls.
type Selector struct {
	cfg SelectorConfig
}

// NewSelector returns a selector with the given hybrid weights.
func NewSelector(cfg SelectorConfig) *Selector {
	cfg.ApplyDefaults()
	return &Selector{cfg: cfg}
}

// Select returns up to count task identifiers from the pool under the given
// strategy, highest priority first. Duplicate pool identifiers keep their
// first occurrence; all ties resolve by original pool order.
func (s *Selector) Select(pool []TaskDescriptor, strategy Strategy, count int) (Selection, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return Selection{}, err
	}
	if count < 1 {
		return Selection{}, invalidInputf("count must be >= 1, got %d", count)
	}

	tasks := dedupeTasks(pool)
	if len(tasks) == 0 {
		return Selection{TaskIDs: []string{}, Scores: map[string]float64{}}, nil
	}

	var ranked []scoredTask
	switch strategy {
	case StrategyUncertainty:
		ranked = rankByUncertainty(tasks)
	case StrategyDiversity:
		ranked = rankByDiversity(tasks)
	case StrategyHybrid:
		ranked = s.rankHybrid(tasks)
	}

	if len(ranked) > count {
		ranked = ranked[:count]
	}
	sel := Selection{
		TaskIDs: make([]string, len(ranked)),
		Scores:  make(map[string]float64, len(ranked)),
	}
	for i, st := range ranked {
		sel.TaskIDs[i] = st.id
		sel.Scores[st.id] = st.score
	}
	return sel, nil
}

type scoredTask struct {
	id    string
	score float64
	order int
}

func dedupeTasks(pool []TaskDescriptor) []TaskDescriptor {
	seen := make(map[string]struct{}, len(pool))
	tasks := make([]TaskDescriptor, 0, len(pool))
	for _, t := range pool {
		if t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		tasks = append(tasks, t)
	}
	return tasks
}

func uncertaintyOf(t TaskDescriptor) float64 {
	if !t.HasUncertainty {
		return 0
	}
	return t.Uncertainty
}

// rankByUncertainty orders tasks by descending model uncertainty. Tasks
// without a signal rank as zero so unscored tasks are never starved out of
// the tail of a selection.
func rankByUncertainty(tasks []TaskDescriptor) []scoredTask {
	ranked := make([]scoredTask, len(tasks))
	for i, t := range tasks {
		ranked[i] = scoredTask{id: t.ID, score: uncertaintyOf(t), order: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})
	return ranked
}

// rankByDiversity runs farthest-point selection over the task feature
// vectors: the most uncertain task seeds the set, then each step adds the
// task maximizing its minimum cosine dissimilarity to everything selected
// so far. Tasks without features contribute zero dissimilarity and fill in
// last, in pool order.
func rankByDiversity(tasks []TaskDescriptor) []scoredTask {
	seed := 0
	for i, t := range tasks {
		if uncertaintyOf(t) > uncertaintyOf(tasks[seed]) {
			seed = i
		}
	}

	selected := make([]scoredTask, 0, len(tasks))
	selected = append(selected, scoredTask{id: tasks[seed].ID, score: 1, order: seed})
	chosen := map[int]struct{}{seed: {}}

	for len(selected) < len(tasks) {
		best := -1
		bestDist := -1.0
		for i, t := range tasks {
			if _, ok := chosen[i]; ok {
				continue
			}
			dist := minDissimilarity(t, tasks, chosen)
			if dist > bestDist {
				best = i
				bestDist = dist
			}
		}
		chosen[best] = struct{}{}
		selected = append(selected, scoredTask{id: tasks[best].ID, score: bestDist, order: best})
	}
	return selected
}

func minDissimilarity(t TaskDescriptor, tasks []TaskDescriptor, chosen map[int]struct{}) float64 {
	if len(t.Features) == 0 {
		return 0
	}
	min := 1.0
	for i := range chosen {
		other := tasks[i]
		if len(other.Features) == 0 {
			continue
		}
		d := 1 - float64(cosine32(t.Features, other.Features))
		if d < 0 {
			d = 0
		}
		if d < min {
			min = d
		}
	}
	return min
}

// rankHybrid combines a normalized uncertainty score with a normalized
// diversity rank under the configured weights.
func (s *Selector) rankHybrid(tasks []TaskDescriptor) []scoredTask {
	maxU := 0.0
	for _, t := range tasks {
		if u := uncertaintyOf(t); u > maxU {
			maxU = u
		}
	}

	divRank := make(map[string]int, len(tasks))
	for i, st := range rankByDiversity(tasks) {
		divRank[st.id] = i
	}

	denom := float64(len(tasks) - 1)
	if denom <= 0 {
		denom = 1
	}
	wTotal := s.cfg.UncertaintyWeight + s.cfg.DiversityWeight

	ranked := make([]scoredTask, len(tasks))
	for i, t := range tasks {
		uScore := 0.0
		if maxU > 0 {
			uScore = uncertaintyOf(t) / maxU
		}
		dScore := 1 - float64(divRank[t.ID])/denom
		combined := (s.cfg.UncertaintyWeight*uScore + s.cfg.DiversityWeight*dScore) / wTotal
		ranked[i] = scoredTask{id: t.ID, score: combined, order: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})
	return ranked
}
