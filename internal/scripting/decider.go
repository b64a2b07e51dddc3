package scripting

import (
	"fmt"

	"github.com/MJE43/lingo-ladders/internal/engine"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// Decider decides the outcome of one turn. Oracle is the scripted form.
type Decider interface {
	Decide(Turn) (bool, error)
}

// Always answers every task the same way.
type Always bool

func (a Always) Decide(Turn) (bool, error) { return bool(a), nil }

// Rates succeeds with a fixed probability per task type, drawn from its own
// seeded stream.
type Rates struct {
	def    float64
	byType map[tasks.Type]float64
	rng    *engine.Source
}

// NewRates returns a Rates decider. Probabilities must lie in [0, 1].
func NewRates(def float64, byType map[tasks.Type]float64, seed uint32) (*Rates, error) {
	if def < 0 || def > 1 {
		return nil, fmt.Errorf("scripting: default rate %v out of [0, 1]", def)
	}
	for t, p := range byType {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("scripting: rate for %s %v out of [0, 1]", t, p)
		}
	}
	return &Rates{def: def, byType: byType, rng: engine.NewSource(seed)}, nil
}

func (r *Rates) Decide(t Turn) (bool, error) {
	p, ok := r.byType[t.Task.Type]
	if !ok {
		p = r.def
	}
	return r.rng.Next() < p, nil
}

// Factory builds a fresh Decider for one worker or game.
type Factory func(seed uint32) (Decider, error)

// ScriptFactory compiles source once per call, giving each worker its own
// runtime.
func ScriptFactory(source string) Factory {
	return func(seed uint32) (Decider, error) {
		return NewOracle(source, seed)
	}
}

// RatesFactory builds Rates deciders sharing one rate table.
func RatesFactory(def float64, byType map[tasks.Type]float64) Factory {
	return func(seed uint32) (Decider, error) {
		return NewRates(def, byType, seed)
	}
}
