// Package board models the playing surface: which squares jump where, and
// how squares are laid out on a grid.
package board

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

const (
	// MinSize and MaxSize bound the board sizes the jump builder accepts.
	MinSize = 40
	MaxSize = 100

	// CanonicalSize is the size the canonical jump table is drawn for.
	CanonicalSize = 100

	// DefaultColumns is the grid width used by the front end.
	DefaultColumns = 10
)

// ErrBoardSize is returned for sizes outside [MinSize, MaxSize].
var ErrBoardSize = errors.New("board size out of range")

// Sizes lists the board sizes offered to players.
var Sizes = []int{40, 50, 60, 70, 80, 90, 100}

// Jump is a single board edge. It is a ladder when To > From and a snake
// otherwise.
type Jump struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Ladder reports whether the jump moves the player forward.
func (j Jump) Ladder() bool { return j.To > j.From }

// Kind returns "ladder" or "snake".
func (j Jump) Kind() string {
	if j.Ladder() {
		return "ladder"
	}
	return "snake"
}

// canonical is the 100-square layout; table order is the tie-break when
// scaled starts collide.
var canonical = []Jump{
	{4, 14}, {9, 31}, {21, 42}, {28, 84}, {51, 67}, {71, 91}, {80, 99},
	{17, 7}, {54, 34}, {62, 19}, {64, 60}, {87, 24}, {93, 73}, {95, 75}, {98, 79},
}

// Canonical returns a copy of the 100-square jump table in table order.
func Canonical() []Jump {
	out := make([]Jump, len(canonical))
	copy(out, canonical)
	return out
}

// Jumps is the jump graph for one board size: a partial function from start
// square to destination square.
type Jumps struct {
	size  int
	edges map[int]int
}

// Size returns the board size the graph was built for.
func (j *Jumps) Size() int { return j.size }

// Len returns the number of edges.
func (j *Jumps) Len() int { return len(j.edges) }

// Lookup returns the destination for a start square.
func (j *Jumps) Lookup(square int) (int, bool) {
	to, ok := j.edges[square]
	return to, ok
}

// Resolve applies at most one jump to square. Destinations are never chased
// further even when they are themselves starts.
func (j *Jumps) Resolve(square int) int {
	if to, ok := j.edges[square]; ok {
		return to
	}
	return square
}

// Edges returns the jumps sorted by start square.
func (j *Jumps) Edges() []Jump {
	out := make([]Jump, 0, len(j.edges))
	for from, to := range j.edges {
		out = append(out, Jump{From: from, To: to})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].From < out[b].From })
	return out
}

// Map returns a copy of the edges as a map.
func (j *Jumps) Map() map[int]int {
	out := make(map[int]int, len(j.edges))
	for k, v := range j.edges {
		out[k] = v
	}
	return out
}

// Chains lists the jumps whose destination is itself a start square. Scaling
// can produce these on small boards; movement still resolves a single hop.
func (j *Jumps) Chains() []Jump {
	var out []Jump
	for _, e := range j.Edges() {
		if _, ok := j.edges[e.To]; ok {
			out = append(out, e)
		}
	}
	return out
}

// BuildJumps derives the jump graph for size by scaling the canonical table.
// The result is deterministic in size.
func BuildJumps(size int) (*Jumps, error) {
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrBoardSize, size, MinSize, MaxSize)
	}

	g := &Jumps{size: size, edges: make(map[int]int, len(canonical))}
	if size == CanonicalSize {
		for _, c := range canonical {
			g.edges[c.From] = c.To
		}
		return g, nil
	}

	scale := float64(size) / CanonicalSize
	minDelta := max(3, int(math.Round(6*scale)))

	for _, c := range canonical {
		sf := math.Round(float64(c.From) * scale)
		ef := math.Round(float64(c.To) * scale)
		if math.IsNaN(sf) || math.IsInf(sf, 0) || math.IsNaN(ef) || math.IsInf(ef, 0) {
			continue
		}
		s, e := int(sf), int(ef)

		s = clamp(s, 2, size-2)
		if c.Ladder() {
			e = clamp(max(e, s+minDelta), 2, size-1)
		} else {
			e = clamp(min(e, s-minDelta), 2, size-1)
		}
		if e == size {
			e = size - 1
		}

		if s <= 1 || s >= size || e <= 1 || e >= size || e == s {
			continue
		}
		if _, taken := g.edges[s]; taken {
			continue
		}
		g.edges[s] = e
	}
	return g, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampSize pulls size into [MinSize, MaxSize].
func ClampSize(size int) int {
	return clamp(size, MinSize, MaxSize)
}

var (
	cacheMu sync.Mutex
	cache   = map[int]*Jumps{}
)

// JumpsFor returns the cached graph for size, building it on first use.
// Sizes out of range are clamped.
func JumpsFor(size int) *Jumps {
	size = ClampSize(size)

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if g, ok := cache[size]; ok {
		return g
	}
	g, _ := BuildJumps(size)
	cache[size] = g
	return g
}
