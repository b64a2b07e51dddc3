package taskbank

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// Format names a feed encoding.
type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrNoHeader is returned for a CSV feed without a prompt column.
var ErrNoHeader = errors.New("taskbank: feed has no prompt column")

// Parse reads a feed in the given format. FormatAuto sniffs the first
// non-space byte: '[' or '{' means JSON, anything else CSV.
func Parse(r io.Reader, format Format) ([]tasks.TaskRecord, Report, error) {
	if format == FormatAuto {
		br := bufio.NewReader(r)
		format = sniff(br)
		r = br
	}
	switch format {
	case FormatJSON:
		return ParseJSON(r)
	case FormatCSV:
		return ParseCSV(r)
	}
	return nil, Report{}, fmt.Errorf("taskbank: unknown format %q", format)
}

func sniff(br *bufio.Reader) Format {
	peek, _ := br.Peek(512)
	peek = bytes.TrimPrefix(peek, []byte("\ufeff"))
	peek = bytes.TrimSpace(peek)
	if len(peek) > 0 && (peek[0] == '[' || peek[0] == '{') {
		return FormatJSON
	}
	return FormatCSV
}

// ParseCSV reads a header row followed by task rows. Rows are numbered from
// 1 for the first data row. Ragged rows are accepted; missing trailing cells
// read as empty.
func ParseCSV(r io.Reader) ([]tasks.TaskRecord, Report, error) {
	var report Report
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, report, nil
	}
	if err != nil {
		return nil, report, fmt.Errorf("taskbank: read header: %w", err)
	}
	cols := make([]string, len(header))
	hasPrompt := false
	for i, h := range header {
		cols[i] = canonicalHeader(h)
		for _, alias := range fieldAliases["prompt"] {
			if cols[i] == alias {
				hasPrompt = true
			}
		}
	}
	if !hasPrompt {
		return nil, report, ErrNoHeader
	}

	n := newNormalizer(&report)
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				report.Rows++
				report.skip(row, "malformed row: %v", perr.Err)
				continue
			}
			return n.out, report, fmt.Errorf("taskbank: read row %d: %w", row, err)
		}
		if blank(rec) {
			continue
		}
		raw := rawRecord{}
		for i, v := range rec {
			if i < len(cols) && cols[i] != "" {
				if _, dup := raw[cols[i]]; !dup {
					raw[cols[i]] = v
				}
			}
		}
		n.add(row, raw)
	}
	return n.out, report, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseJSON reads either an array of task objects or an object with a
// "tasks" array. Values may be strings, numbers, booleans or string arrays.
func ParseJSON(r io.Reader) ([]tasks.TaskRecord, Report, error) {
	var report Report
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, report, fmt.Errorf("taskbank: read feed: %w", err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var wrapped struct {
			Tasks []json.RawMessage `json:"tasks"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Tasks == nil {
			return nil, report, fmt.Errorf("taskbank: decode JSON feed: %w", err)
		}
		items = wrapped.Tasks
	}

	n := newNormalizer(&report)
	for i, item := range items {
		row := i + 1
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			report.Rows++
			report.skip(row, "not an object")
			continue
		}
		raw := rawRecord{}
		for k, v := range fields {
			key := canonicalHeader(k)
			if _, dup := raw[key]; dup {
				continue
			}
			raw[key] = jsonText(v)
		}
		n.add(row, raw)
	}
	return n.out, report, nil
}

// jsonText flattens a JSON value into cell text. Arrays become a
// comma-joined list so they share the CSV tag splitting.
func jsonText(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	var f float64
	if json.Unmarshal(v, &f) == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	var b bool
	if json.Unmarshal(v, &b) == nil {
		return strconv.FormatBool(b)
	}
	var list []json.RawMessage
	if json.Unmarshal(v, &list) == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if t := jsonText(item); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, ",")
	}
	return ""
}
