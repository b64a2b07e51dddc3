package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/session"
)

var (
	ladderColor = lipgloss.Color("#10B981")
	snakeColor  = lipgloss.Color("#F87171")
	mutedColor  = lipgloss.Color("#9CA3AF")
	tokenColor  = lipgloss.Color("#FBBF24")
	titleColor  = lipgloss.Color("#A78BFA")

	cellStyle = lipgloss.NewStyle().
			Width(7).
			Align(lipgloss.Center).
			Border(lipgloss.NormalBorder(), false, true, true, false).
			BorderForeground(mutedColor)

	ladderStyle = lipgloss.NewStyle().Foreground(ladderColor).Bold(true)
	snakeStyle  = lipgloss.NewStyle().Foreground(snakeColor).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	tokenStyle  = lipgloss.NewStyle().Foreground(tokenColor).Bold(true)
	titleStyle  = lipgloss.NewStyle().Foreground(titleColor).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(ladderColor)
	failStyle   = lipgloss.NewStyle().Foreground(snakeColor)
)

// renderBoard draws the grid with jump markers and player tokens. Players
// at square 0 are listed under the board.
func renderBoard(grid board.Grid, jumps *board.Jumps, players []session.Player) string {
	at := map[int][]int{}
	for i, p := range players {
		at[p.Position] = append(at[p.Position], i)
	}

	rows := make([]string, 0, grid.Rows())
	for r := 0; r < grid.Rows(); r++ {
		cells := make([]string, 0, grid.Columns)
		for _, c := range grid.Row(r) {
			cells = append(cells, cellStyle.Render(renderCell(c, jumps, at[c.Square])))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	out := lipgloss.JoinVertical(lipgloss.Left, rows...)
	if waiting := at[0]; len(waiting) > 0 {
		out += "\n" + mutedStyle.Render("start: ") + tokens(waiting)
	}
	return out
}

func renderCell(c board.Cell, jumps *board.Jumps, here []int) string {
	if c.Empty() {
		return mutedStyle.Render("·")
	}
	label := fmt.Sprintf("%d", c.Square)
	if to, ok := jumps.Lookup(c.Square); ok {
		if to > c.Square {
			label = ladderStyle.Render(fmt.Sprintf("%d▲", c.Square))
		} else {
			label = snakeStyle.Render(fmt.Sprintf("%d▼", c.Square))
		}
	}
	if len(here) == 0 {
		return label + "\n "
	}
	return label + "\n" + tokens(here)
}

func tokens(idx []int) string {
	var b strings.Builder
	for _, i := range idx {
		b.WriteString(tokenStyle.Render(fmt.Sprintf("%d", i+1)))
	}
	return b.String()
}

// renderLegend lists ladders then snakes.
func renderLegend(jumps *board.Jumps) string {
	var ladders, snakes []string
	for _, j := range jumps.Edges() {
		s := fmt.Sprintf("%d→%d", j.From, j.To)
		if j.Ladder() {
			ladders = append(ladders, s)
		} else {
			snakes = append(snakes, s)
		}
	}
	return ladderStyle.Render("ladders: ") + strings.Join(ladders, " ") + "\n" +
		snakeStyle.Render("snakes:  ") + strings.Join(snakes, " ")
}
