package tasks

import (
	"fmt"
	"math"
	"testing"

	"github.com/MJE43/lingo-ladders/internal/engine"
)

// scripted returns queued floats in order and counts calls.
type scripted struct {
	vals  []float64
	calls int
}

func (s *scripted) Next() float64 {
	v := s.vals[s.calls%len(s.vals)]
	s.calls++
	return v
}

func mixedPool() []TaskRecord {
	return []TaskRecord{
		{ID: "s1", Type: TypeSpeaking, Prompt: "Describe your weekend"},
		{ID: "e1", Type: TypeErrorCorrection, Prompt: "Fix: he go to school"},
		{ID: "t1", Type: TypeTranslateCaEn, Prompt: "Bon dia"},
		{ID: "t2", Type: TypeTranslateEnCa, Prompt: "Good night"},
		{ID: "x1", Type: Type("role_play"), Prompt: "Order a coffee"},
	}
}

func draws(ids ...string) []DrawEvent {
	pool := mixedPool()
	out := make([]DrawEvent, 0, len(ids))
	for _, id := range ids {
		t, ok := FindByID(pool, id)
		if !ok {
			t = TaskRecord{ID: id, Type: TypeSpeaking}
		}
		out = append(out, DrawEvent{Task: t, RollValue: 3})
	}
	return out
}

func TestSelectWalksCumulativeWeights(t *testing.T) {
	sel := NewSelector(nil)
	pool := mixedPool()
	// weights with roll 3 and no history: 3, 2, 2, 2, 1 -> total 10

	tests := []struct {
		r    float64
		want string
	}{
		{0.0, "s1"},
		{0.29, "s1"},
		{0.31, "e1"},
		{0.5, "e1"},
		{0.69, "t1"},
		{0.85, "t2"},
		{0.95, "x1"},
		{0.9999, "x1"},
	}
	for _, tt := range tests {
		rng := &scripted{vals: []float64{tt.r}}
		got, ok := sel.Select(pool, nil, 3, rng)
		if !ok {
			t.Fatalf("Select(r=%v) reported empty pool", tt.r)
		}
		if got.ID != tt.want {
			t.Errorf("Select(r=%v) = %s, want %s", tt.r, got.ID, tt.want)
		}
		if rng.calls != 1 {
			t.Errorf("Select(r=%v) consumed %d floats, want 1", tt.r, rng.calls)
		}
	}
}

func TestSelectEmptyPool(t *testing.T) {
	rng := &scripted{vals: []float64{0.5}}
	if _, ok := NewSelector(nil).Select(nil, nil, 4, rng); ok {
		t.Error("Select on empty pool should report ok=false")
	}
	if rng.calls != 0 {
		t.Errorf("empty pool consumed %d floats, want 0", rng.calls)
	}
}

func TestSelectExcludesRecentIDs(t *testing.T) {
	sel := NewSelector(nil)
	pool := mixedPool()
	history := draws("s1", "e1", "t1")

	cands := sel.Candidates(pool, history, 3)
	for _, c := range cands {
		switch c.Task.ID {
		case "s1", "e1", "t1":
			t.Errorf("recent task %s was offered", c.Task.ID)
		}
	}
	if len(cands) != 2 {
		t.Errorf("got %d candidates, want 2", len(cands))
	}
}

func TestSelectFallsBackToFullPool(t *testing.T) {
	sel := NewSelector(nil)
	pool := mixedPool()
	history := draws("s1", "e1", "t1", "t2", "x1")

	cands := sel.Candidates(pool, history, 3)
	if len(cands) != len(pool) {
		t.Fatalf("got %d candidates, want full pool of %d", len(cands), len(pool))
	}

	src := engine.NewSource(99)
	for i := 0; i < 200; i++ {
		got, ok := sel.Select(pool, history, engine.Roll(src), src)
		if !ok {
			t.Fatal("Select returned ok=false on non-empty pool")
		}
		if _, found := FindByID(pool, got.ID); !found {
			t.Fatalf("Select returned %q which is not in the pool", got.ID)
		}
	}
}

func TestSelectOnlyRecentWindowExcluded(t *testing.T) {
	sel := NewSelector(nil)
	pool := mixedPool()
	// s1 is 11th most recent, so it is eligible again.
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "s1"}
	cands := sel.Candidates(pool, draws(ids...), 3)
	found := false
	for _, c := range cands {
		if c.Task.ID == "s1" {
			found = true
		}
	}
	if !found {
		t.Error("s1 outside the 10-draw window should be a candidate")
	}
}

func TestSingleTypePoolNeverStarves(t *testing.T) {
	pool := []TaskRecord{
		{ID: "a", Type: TypeSpeaking},
		{ID: "b", Type: TypeSpeaking},
	}
	history := draws("a", "b", "a", "b")
	src := engine.NewSource(5)
	for i := 0; i < 50; i++ {
		got, ok := NewSelector(nil).Select(pool, history, 2, src)
		if !ok || (got.ID != "a" && got.ID != "b") {
			t.Fatalf("Select = %+v, %v", got, ok)
		}
	}
}

func TestPenaltyDecreasesWithRepetition(t *testing.T) {
	sel := NewSelector(nil)
	unseen := sel.Weight(TypeSpeaking, 0, 3)
	prev := unseen
	for count := 1; count <= RecentTypeWindow; count++ {
		w := sel.Weight(TypeSpeaking, count, 3)
		if w >= prev {
			t.Errorf("weight with %d repeats = %v, not below %v", count, w, prev)
		}
		if w <= 0 {
			t.Errorf("weight with %d repeats reached zero", count)
		}
		prev = w
	}

	history := draws("q1", "q2", "q3", "q4")
	pool := append(mixedPool(), TaskRecord{ID: "s2", Type: TypeSpeaking})
	var speaking, translate float64
	for _, c := range sel.Candidates(pool, history, 3) {
		switch c.Task.Type {
		case TypeSpeaking:
			speaking = c.Weight
		case TypeTranslateCaEn:
			translate = c.Weight
		}
	}
	if math.Abs(speaking-0.6) > 1e-12 {
		t.Errorf("speaking weight after 4 repeats = %v, want 0.6", speaking)
	}
	if speaking >= unseen || speaking >= translate {
		t.Errorf("speaking weight %v should be below unseen %v and translate %v", speaking, unseen, translate)
	}
}

func TestSpice(t *testing.T) {
	sel := NewSelector(nil)
	tests := []struct {
		typ  Type
		roll int
		want float64
	}{
		{TypeSpeaking, 6, 3 * SpiceFactor},
		{TypeSpeaking, 1, 3},
		{TypeErrorCorrection, 1, 2 * SpiceFactor},
		{TypeErrorCorrection, 6, 2},
		{TypeTranslateEnCa, 6, 2},
		{Type("other"), 6, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.typ, tt.roll), func(t *testing.T) {
			if got := sel.Weight(tt.typ, 0, tt.roll); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Weight = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZeroWeightsFallBackToUniform(t *testing.T) {
	sel := NewSelector(Weights{TypeSpeaking: 0, TypeErrorCorrection: 0})
	pool := []TaskRecord{
		{ID: "a", Type: TypeSpeaking},
		{ID: "b", Type: TypeErrorCorrection},
		{ID: "c", Type: TypeSpeaking},
	}
	tests := []struct {
		r    float64
		want string
	}{
		{0.0, "a"},
		{0.4, "b"},
		{0.99, "c"},
	}
	for _, tt := range tests {
		rng := &scripted{vals: []float64{tt.r}}
		got, _ := sel.Select(pool, nil, 3, rng)
		if got.ID != tt.want {
			t.Errorf("Select(r=%v) = %s, want %s", tt.r, got.ID, tt.want)
		}
	}
}

func TestZeroWeightTypeIsSkipped(t *testing.T) {
	sel := NewSelector(Weights{TypeSpeaking: 0, TypeErrorCorrection: 2})
	pool := []TaskRecord{
		{ID: "a", Type: TypeSpeaking},
		{ID: "b", Type: TypeErrorCorrection},
	}
	got, _ := sel.Select(pool, nil, 3, &scripted{vals: []float64{0}})
	if got.ID != "b" {
		t.Errorf("Select = %s, want b", got.ID)
	}
}

func TestWeightsMergeAndBase(t *testing.T) {
	w := DefaultWeights().Merge(map[string]float64{"speaking": 5, "role_play": 4})
	if w.Base(TypeSpeaking) != 5 {
		t.Errorf("Base(speaking) = %v, want 5", w.Base(TypeSpeaking))
	}
	if w.Base(Type("role_play")) != 4 {
		t.Errorf("Base(role_play) = %v, want 4", w.Base(Type("role_play")))
	}
	if w.Base(Type("missing")) != 1 {
		t.Errorf("Base(missing) = %v, want 1", w.Base(Type("missing")))
	}
	if DefaultWeights().Base(TypeSpeaking) != 3 {
		t.Error("Merge mutated the receiver")
	}
	if (Weights{TypeSpeaking: -2}).Base(TypeSpeaking) != 0 {
		t.Error("negative weight should read as zero")
	}
}
