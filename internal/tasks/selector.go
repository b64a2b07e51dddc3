package tasks

import (
	"math"

	"github.com/MJE43/lingo-ladders/internal/engine"
)

const (
	// RecentTypeWindow is how many recent draws feed the type penalty.
	RecentTypeWindow = 4
	// RecentIDWindow is how many recent draws are excluded from candidates.
	RecentIDWindow = 10

	// SpiceFactor boosts speaking on a six and error correction on a one.
	SpiceFactor = 1.4

	unknownWeight = 1.0
)

// Weights maps task types to their base selection weight.
type Weights map[Type]float64

// DefaultWeights returns the stock weight table.
func DefaultWeights() Weights {
	return Weights{
		TypeSpeaking:        3,
		TypeErrorCorrection: 2,
		TypeTranslateCaEn:   2,
		TypeTranslateEnCa:   2,
	}
}

// Base returns the weight for t, or 1 when t is not in the table. Negative
// and non-finite entries are treated as zero.
func (w Weights) Base(t Type) float64 {
	v, ok := w[t]
	if !ok {
		return unknownWeight
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Merge returns a copy of w with overrides applied on top.
func (w Weights) Merge(overrides map[string]float64) Weights {
	out := make(Weights, len(w)+len(overrides))
	for k, v := range w {
		out[k] = v
	}
	for k, v := range overrides {
		out[Type(k)] = v
	}
	return out
}

// Selector draws tasks with type weights, a recency penalty, and a small
// roll-dependent bias.
type Selector struct {
	weights Weights
}

// NewSelector creates a selector. A nil table uses DefaultWeights.
func NewSelector(w Weights) *Selector {
	if w == nil {
		w = DefaultWeights()
	}
	return &Selector{weights: w}
}

// Weights returns the selector's table.
func (s *Selector) Weights() Weights { return s.weights }

// Candidate is a task paired with the weight it was given.
type Candidate struct {
	Task   TaskRecord `json:"task"`
	Weight float64    `json:"weight"`
}

// Candidates returns the filtered candidate list with weights, in pool
// order. history is most-recent-first.
func (s *Selector) Candidates(pool []TaskRecord, history []DrawEvent, roll int) []Candidate {
	typeCounts := map[Type]int{}
	for i := 0; i < len(history) && i < RecentTypeWindow; i++ {
		typeCounts[history[i].Task.Type]++
	}

	recentIDs := map[string]bool{}
	for i := 0; i < len(history) && i < RecentIDWindow; i++ {
		recentIDs[history[i].Task.ID] = true
	}

	candidates := make([]TaskRecord, 0, len(pool))
	for _, t := range pool {
		if !recentIDs[t.ID] {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		candidates = pool
	}

	out := make([]Candidate, len(candidates))
	for i, t := range candidates {
		out[i] = Candidate{Task: t, Weight: s.weight(t.Type, typeCounts[t.Type], roll)}
	}
	return out
}

// Weight returns the weight a task of type t receives when t appeared count
// times in the recent window and the die shows roll.
func (s *Selector) Weight(t Type, count, roll int) float64 {
	return s.weight(t, count, roll)
}

func (s *Selector) weight(t Type, count, roll int) float64 {
	penalty := 1 / (1 + float64(count))
	return s.weights.Base(t) * penalty * spice(t, roll)
}

func spice(t Type, roll int) float64 {
	switch {
	case roll == 6 && t == TypeSpeaking:
		return SpiceFactor
	case roll == 1 && t == TypeErrorCorrection:
		return SpiceFactor
	default:
		return 1
	}
}

// Select draws one task. It consumes exactly one float from rng. ok is false
// only for an empty pool, in which case rng is not touched.
func (s *Selector) Select(pool []TaskRecord, history []DrawEvent, roll int, rng engine.Float) (TaskRecord, bool) {
	if len(pool) == 0 {
		return TaskRecord{}, false
	}

	candidates := s.Candidates(pool, history, roll)

	total := 0.0
	for _, c := range candidates {
		total += c.Weight
	}

	r := rng.Next()
	if total <= 0 {
		idx := int(math.Floor(r * float64(len(candidates))))
		if idx >= len(candidates) {
			idx = len(candidates) - 1
		}
		return candidates[idx].Task, true
	}

	target := r * total
	last := -1
	for i, c := range candidates {
		if c.Weight <= 0 {
			continue
		}
		last = i
		target -= c.Weight
		if target <= 0 {
			return c.Task, true
		}
	}
	// Float drift can leave a sliver after the last subtraction.
	return candidates[last].Task, true
}
