// Package taskbank turns an external task feed (a published spreadsheet as
// CSV, or a JSON export) into canonical task records. Field names are
// matched case-insensitively with a few aliases; everything downstream only
// ever sees tasks.TaskRecord.
package taskbank

import (
	"fmt"
	"strings"

	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// fieldAliases maps each canonical field to the header names accepted for
// it, in priority order. Headers are compared after lowercasing and
// stripping spaces, underscores and hyphens.
var fieldAliases = map[string][]string{
	"id":          {"id", "taskid", "key"},
	"level":       {"level", "cefr"},
	"focus":       {"focus", "pack", "topic"},
	"prompt":      {"prompt", "question", "task"},
	"target":      {"target", "answer", "solution"},
	"type":        {"type", "tasktype", "kind"},
	"grammarTags": {"grammartags", "grammar", "tags"},
	"connectors":  {"connectors", "connector"},
	"notes":       {"notes", "note", "hint"},
	"source":      {"source"},
}

func canonicalHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// Issue describes a row that was skipped or repaired.
type Issue struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Report summarizes a load.
type Report struct {
	Rows     int     `json:"rows"`
	Loaded   int     `json:"loaded"`
	Skipped  []Issue `json:"skipped,omitempty"`
	Repaired []Issue `json:"repaired,omitempty"`
}

func (r *Report) skip(row int, format string, args ...any) {
	r.Skipped = append(r.Skipped, Issue{Row: row, Reason: fmt.Sprintf(format, args...)})
}

func (r *Report) repair(row int, format string, args ...any) {
	r.Repaired = append(r.Repaired, Issue{Row: row, Reason: fmt.Sprintf(format, args...)})
}

// rawRecord is one row with canonical header keys.
type rawRecord map[string]string

func (r rawRecord) get(field string) string {
	for _, alias := range fieldAliases[field] {
		if v, ok := r[alias]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// normalizer applies the canonical schema row by row and tracks IDs seen.
type normalizer struct {
	report *Report
	seen   map[string]bool
	out    []tasks.TaskRecord
}

func newNormalizer(report *Report) *normalizer {
	return &normalizer{report: report, seen: map[string]bool{}}
}

func (n *normalizer) add(row int, raw rawRecord) {
	n.report.Rows++

	prompt := raw.get("prompt")
	if prompt == "" {
		n.report.skip(row, "missing prompt")
		return
	}

	id := raw.get("id")
	if id == "" {
		id = fmt.Sprintf("row-%d", row)
		n.report.repair(row, "missing id, assigned %s", id)
	}
	if n.seen[id] {
		n.report.skip(row, "duplicate id %q", id)
		return
	}
	n.seen[id] = true

	focus := raw.get("focus")
	if focus == "" {
		focus = tasks.DefaultFocus
	}

	n.out = append(n.out, tasks.TaskRecord{
		ID:          id,
		Level:       strings.ToUpper(raw.get("level")),
		Focus:       focus,
		Prompt:      prompt,
		Target:      raw.get("target"),
		Type:        NormalizeType(raw.get("type")),
		GrammarTags: SplitTags(raw.get("grammarTags")),
		Connectors:  SplitTags(raw.get("connectors")),
		Notes:       raw.get("notes"),
		Source:      raw.get("source"),
	})
	n.report.Loaded++
}

// NormalizeType maps free-form type labels onto the known set. Unrecognized
// labels are kept (lowercased, underscored) and weighted as unknown; an
// empty label means speaking.
func NormalizeType(s string) tasks.Type {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_", ">", "_", "→", "_").Replace(key)
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	switch key {
	case "", "speak", "speaking", "oral":
		return tasks.TypeSpeaking
	case "error", "error_correction", "correction", "fix":
		return tasks.TypeErrorCorrection
	case "translate_ca_en", "ca_en", "translation_ca_en", "translate_cat_eng":
		return tasks.TypeTranslateCaEn
	case "translate_en_ca", "en_ca", "translation_en_ca", "translate_eng_cat":
		return tasks.TypeTranslateEnCa
	}
	return tasks.Type(key)
}

// SplitTags splits a tag cell on commas, semicolons or pipes, trimming and
// dropping empties. Order is kept; duplicates are removed.
func SplitTags(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	var out []string
	seen := map[string]bool{}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
