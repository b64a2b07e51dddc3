// Package tasks holds the language-practice challenge records and the
// weighted selector that draws them.
package tasks

import (
	"sort"
	"strings"
)

// Type classifies a task. Values outside the known set are kept verbatim and
// weighted as unknown.
type Type string

const (
	TypeSpeaking        Type = "speaking"
	TypeErrorCorrection Type = "error_correction"
	TypeTranslateCaEn   Type = "translate_ca_en"
	TypeTranslateEnCa   Type = "translate_en_ca"
)

// KnownTypes lists the closed set of task types.
var KnownTypes = []Type{TypeSpeaking, TypeErrorCorrection, TypeTranslateCaEn, TypeTranslateEnCa}

// Known reports whether t is one of KnownTypes.
func (t Type) Known() bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// DefaultFocus is the pack name for tasks that do not name one.
const DefaultFocus = "General"

// AllPacks selects every pack.
const AllPacks = ""

// TaskRecord is one challenge. Records are immutable once loaded.
type TaskRecord struct {
	ID          string   `json:"id"`
	Level       string   `json:"level"`
	Focus       string   `json:"focus"`
	Prompt      string   `json:"prompt"`
	Target      string   `json:"target,omitempty"`
	Type        Type     `json:"type"`
	GrammarTags []string `json:"grammarTags,omitempty"`
	Connectors  []string `json:"connectors,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// DrawEvent records one draw: the task shown and the die value that drew it.
type DrawEvent struct {
	Task      TaskRecord `json:"task"`
	RollValue int        `json:"rollValue"`
}

// Pack is a focus group and how many tasks it holds.
type Pack struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListPacks groups tasks by focus, sorted by name.
func ListPacks(pool []TaskRecord) []Pack {
	counts := map[string]int{}
	for _, t := range pool {
		counts[focusOf(t)]++
	}
	out := make([]Pack, 0, len(counts))
	for name, n := range counts {
		out = append(out, Pack{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListLevels returns the distinct non-empty levels, sorted.
func ListLevels(pool []TaskRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range pool {
		lvl := strings.TrimSpace(t.Level)
		if lvl == "" || seen[lvl] {
			continue
		}
		seen[lvl] = true
		out = append(out, lvl)
	}
	sort.Strings(out)
	return out
}

// Filter narrows the pool to a pack and a set of levels. An empty pack
// matches all packs; an empty level set matches all levels.
type Filter struct {
	Pack   string   `json:"pack"`
	Levels []string `json:"levels"`
}

// Apply returns the tasks that pass the filter, preserving pool order.
func (f Filter) Apply(pool []TaskRecord) []TaskRecord {
	levels := map[string]bool{}
	for _, l := range f.Levels {
		if l = strings.TrimSpace(l); l != "" {
			levels[l] = true
		}
	}

	out := make([]TaskRecord, 0, len(pool))
	for _, t := range pool {
		if f.Pack != AllPacks && focusOf(t) != f.Pack {
			continue
		}
		if len(levels) > 0 && !levels[strings.TrimSpace(t.Level)] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FindByID returns the task with the given id.
func FindByID(pool []TaskRecord, id string) (TaskRecord, bool) {
	for _, t := range pool {
		if t.ID == id {
			return t, true
		}
	}
	return TaskRecord{}, false
}

func focusOf(t TaskRecord) string {
	if f := strings.TrimSpace(t.Focus); f != "" {
		return f
	}
	return DefaultFocus
}
