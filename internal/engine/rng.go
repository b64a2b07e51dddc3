package engine

import "math"

// Source is a seeded Mulberry32 stream of floats in [0, 1).
// The same seed always yields the same sequence, which is what makes
// sessions and simulations replayable.
type Source struct {
	seed  uint32
	state uint32
	draws uint64
}

// Float is the minimal interface the selector and session need from a
// random stream.
type Float interface {
	Next() float64
}

// NewSource creates a source positioned at the start of the seed's stream.
func NewSource(seed uint32) *Source {
	return &Source{seed: seed, state: seed}
}

// RestoreSource recreates a source from a persisted state word.
// draws is informational and only carried through for diagnostics.
func RestoreSource(seed, state uint32, draws uint64) *Source {
	return &Source{seed: seed, state: state, draws: draws}
}

// increment is the Mulberry32 state step. The state after n draws is
// seed + n*increment, so a position can be reached without replaying.
const increment = 0x6D2B79F5

// ReplaySource positions a source draws floats into the seed's stream. It is
// the fallback when a persisted state word is missing.
func ReplaySource(seed uint32, draws uint64) *Source {
	return &Source{seed: seed, state: seed + uint32(draws)*increment, draws: draws}
}

// next32 advances the generator and returns the raw 32-bit output.
func (s *Source) next32() uint32 {
	s.state += increment
	t := s.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return t ^ (t >> 14)
}

// Next returns the next float in [0, 1).
func (s *Source) Next() float64 {
	s.draws++
	return float64(s.next32()) / 4294967296.0
}

// Seed returns the seed the stream was created from.
func (s *Source) Seed() uint32 { return s.seed }

// State returns the internal state word; NewSource(seed) followed by n calls
// to Next reaches the same State as any other instance doing the same.
func (s *Source) State() uint32 { return s.state }

// Draws returns how many floats have been consumed.
func (s *Source) Draws() uint64 { return s.draws }

// Floats returns the next count floats from the stream.
func (s *Source) Floats(count int) []float64 {
	return s.FloatsInto(nil, count)
}

// FloatsInto fills dst with the next count floats, avoiding allocation when
// dst is large enough.
func (s *Source) FloatsInto(dst []float64, count int) []float64 {
	if cap(dst) < count {
		dst = make([]float64, count)
	}
	dst = dst[:count]
	for i := range dst {
		dst[i] = s.Next()
	}
	return dst
}

// DieFaces is the number of faces on the game die.
const DieFaces = 6

// Roll consumes one float and maps it to a die face in [1, 6].
func Roll(src Float) int {
	v := 1 + int(math.Floor(src.Next()*DieFaces))
	if v > DieFaces {
		v = DieFaces
	}
	return v
}
