package board

import (
	"encoding/json"
	"fmt"
)

// Cell is one grid slot. Square is 0 for placeholders that pad an
// incomplete final row.
type Cell struct {
	Square int
}

// Empty reports whether the cell is a placeholder.
func (c Cell) Empty() bool { return c.Square == 0 }

// MarshalJSON encodes placeholders as null and squares as numbers.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.Empty() {
		return []byte("null"), nil
	}
	return json.Marshal(c.Square)
}

// UnmarshalJSON accepts null or a square number.
func (c *Cell) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		c.Square = 0
		return nil
	}
	return json.Unmarshal(data, &c.Square)
}

// Grid is the visual order of squares, row-major from the top-left.
type Grid struct {
	Size    int    `json:"size"`
	Columns int    `json:"columns"`
	Cells   []Cell `json:"cells"`
}

// Rows returns the number of grid rows.
func (g Grid) Rows() int {
	if g.Columns <= 0 {
		return 0
	}
	return len(g.Cells) / g.Columns
}

// Row returns the cells of row r.
func (g Grid) Row(r int) []Cell {
	return g.Cells[r*g.Columns : (r+1)*g.Columns]
}

// Position returns the row and column of square, or ok=false when it is not
// on the grid.
func (g Grid) Position(square int) (row, col int, ok bool) {
	for i, c := range g.Cells {
		if c.Square == square && !c.Empty() {
			return i / g.Columns, i % g.Columns, true
		}
	}
	return 0, 0, false
}

// Layout returns the serpentine placement of squares size..1 on a grid of
// the given width. Row 0 runs left-to-right from size, odd rows run the other
// way, and the last row is padded with placeholders after its squares.
// This is presentation order only; it has no bearing on movement.
func Layout(size, columns int) (Grid, error) {
	if size <= 0 {
		return Grid{}, fmt.Errorf("board: layout size must be positive, got %d", size)
	}
	if columns <= 0 {
		return Grid{}, fmt.Errorf("board: layout columns must be positive, got %d", columns)
	}

	rows := (size + columns - 1) / columns
	cells := make([]Cell, 0, rows*columns)

	next := size
	for r := 0; r < rows; r++ {
		row := make([]Cell, columns)
		for c := 0; c < columns && next > 0; c++ {
			row[c] = Cell{Square: next}
			next--
		}
		if r%2 == 1 {
			for i, j := 0, columns-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = row[j], row[i]
			}
		}
		cells = append(cells, row...)
	}

	return Grid{Size: size, Columns: columns, Cells: cells}, nil
}
