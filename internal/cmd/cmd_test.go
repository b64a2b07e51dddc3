package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/simulate"
	"github.com/MJE43/lingo-ladders/internal/store"
)

// executeCommand runs a fresh command tree with args and returns captured output
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeBank(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bank.csv")
	csv := "ID,Level,Pack,Question,Answer,Task Type\n" +
		"t1,A1,Daily,Bon dia,Good morning,translate_ca_en\n" +
		"t2,A1,Daily,Thank you,Gràcies,translate_en_ca\n" +
		"s1,A2,Travel,Explica el teu últim viatge,,speaking\n" +
		"e1,B1,Grammar,Jo ha anat,Jo he anat,error_correction\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()
	if root.Use != "ladders" {
		t.Errorf("Use = %q, want ladders", root.Use)
	}

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "board", "simulate", "packs", "play", "token"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestBoardCommand(t *testing.T) {
	out, err := executeCommand(t, "", "board", "--size", "40", "--json")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	var got struct {
		Grid  board.Grid   `json:"grid"`
		Jumps []board.Jump `json:"jumps"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Grid.Size != 40 || got.Grid.Columns != board.DefaultColumns || len(got.Jumps) == 0 {
		t.Errorf("board = size %d columns %d jumps %d", got.Grid.Size, got.Grid.Columns, len(got.Jumps))
	}

	out, err = executeCommand(t, "", "board", "--size", "50")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	for _, want := range []string{"Board 50", "ladders:", "snakes:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBoardCommandRejectsBadSize(t *testing.T) {
	if _, err := executeCommand(t, "", "board", "--size", "20"); err == nil {
		t.Fatal("expected error for size 20")
	}
}

func TestSimulateCommand(t *testing.T) {
	run := func(workers string) simulate.Result {
		out, err := executeCommand(t, "", "simulate", "--size", "40", "--games", "25", "--seed", "9", "--workers", workers, "--json")
		if err != nil {
			t.Fatalf("simulate: %v", err)
		}
		var got struct {
			Result simulate.Result `json:"result"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode: %v\n%s", err, out)
		}
		return got.Result
	}

	one := run("1")
	four := run("4")
	if one.Summary.Games != 25 || one.Summary.Completed != 25 {
		t.Errorf("summary = %+v", one.Summary)
	}
	if !one.Summary.MeanTurns.Equal(four.Summary.MeanTurns) || one.Summary.MaxTurns != four.Summary.MaxTurns {
		t.Errorf("worker count changed the result: %s vs %s", one.Summary.MeanTurns, four.Summary.MeanTurns)
	}
}

func TestSimulateCommandSavesRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := executeCommand(t, "", "simulate", "--size", "60", "--games", "5", "--rate", "0.7", "--db", db, "--save", "--json")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var got struct {
		RunID string `json:"runId"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	st, err := store.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	run, err := st.GetRun(got.RunID)
	if err != nil {
		t.Fatalf("GetRun(%q): %v", got.RunID, err)
	}
	if run.BoardSize != 60 || run.Games != 5 {
		t.Errorf("run = %+v", run)
	}
}

func TestSimulateCommandValidation(t *testing.T) {
	script := filepath.Join(t.TempDir(), "bad.js")
	if err := os.WriteFile(script, []byte("outcome = function( {"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"rate above one", []string{"simulate", "--rate", "1.5"}},
		{"bad script", []string{"simulate", "--script", script}},
		{"missing script", []string{"simulate", "--script", filepath.Join(t.TempDir(), "none.js")}},
		{"bank without source", []string{"simulate", "--use-bank"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(t, "", tt.args...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPacksCommand(t *testing.T) {
	out, err := executeCommand(t, "", "packs", "--tasks", writeBank(t))
	if err != nil {
		t.Fatalf("packs: %v", err)
	}
	for _, want := range []string{"4 tasks", "Daily", "Grammar", "Travel", "Levels: A1, A2, B1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPlayToWin(t *testing.T) {
	input := strings.Repeat("\ny\n", 500)
	out, err := executeCommand(t, input, "play", "--tasks", writeBank(t), "--size", "40", "--players", "1", "--names", "Ana", "--seed", "11")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	for _, want := range []string{"seed 11", " on 0. Enter to roll", "Rolled", "Ana wins on turn", "Stats"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestPlayQuitAndSave(t *testing.T) {
	db := filepath.Join(t.TempDir(), "play.db")
	input := "\nmaybe\nn\nq\n"
	out, err := executeCommand(t, input, "play", "--tasks", writeBank(t), "--seed", "2", "--names", "Ana,Biel", "--save", "--db", db, "--name", "lesson")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !strings.Contains(out, "Ana stays on 0.") || !strings.Contains(out, "Biel") {
		t.Errorf("unexpected output:\n%s", out)
	}

	st, err := store.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	list, total, err := st.ListSessions(10, 0)
	if err != nil || total != 1 {
		t.Fatalf("ListSessions = %d, %v", total, err)
	}
	if list[0].Name != "lesson" {
		t.Errorf("name = %q", list[0].Name)
	}
	moves, err := st.GetMoves(list[0].ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if moves.TotalCount != 1 || moves.Moves[0].Success {
		t.Errorf("moves = %+v", moves)
	}
}

func TestPlayEmptyPool(t *testing.T) {
	_, err := executeCommand(t, "", "play", "--tasks", writeBank(t), "--pack", "Nowhere")
	if !errors.Is(err, session.ErrEmptyPool) {
		t.Fatalf("err = %v, want ErrEmptyPool", err)
	}
}

func TestDescribeMove(t *testing.T) {
	ladder := board.Jump{From: 4, To: 14}
	snake := board.Jump{From: 17, To: 7}
	tests := []struct {
		name string
		res  session.MoveResult
		want string
	}{
		{"fail", session.MoveResult{PlayerName: "Ana", From: 3, To: 3}, "Ana stays on 3."},
		{"overshoot", session.MoveResult{PlayerName: "Ana", Success: true, Overshoot: true, From: 98, To: 98}, "needs an exact roll"},
		{"ladder", session.MoveResult{PlayerName: "Ana", Success: true, From: 1, Landed: 4, To: 14, Jump: &ladder}, "climbs a ladder to 14"},
		{"snake", session.MoveResult{PlayerName: "Ana", Success: true, From: 12, Landed: 17, To: 7, Jump: &snake}, "slides down a snake to 7"},
		{"plain", session.MoveResult{PlayerName: "Ana", Success: true, From: 5, Landed: 8, To: 8}, "Ana moves 5 → 8."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeMove(tt.res); !strings.Contains(got, tt.want) {
				t.Errorf("describeMove = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenCommands(t *testing.T) {
	keyring.MockInit()

	first, err := executeCommand(t, "", "token", "show", "--profile", "test")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	first = lastLine(first)
	if len(first) != 64 {
		t.Fatalf("token = %q, want 64 hex chars", first)
	}

	again, err := executeCommand(t, "", "token", "show", "--profile", "test")
	if err != nil || lastLine(again) != first {
		t.Fatalf("second show = %q, %v; want %q", again, err, first)
	}

	rotated, err := executeCommand(t, "", "token", "rotate", "--profile", "test")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if lastLine(rotated) == first {
		t.Error("rotate kept the old token")
	}

	if _, err := executeCommand(t, "", "token", "delete", "--profile", "test"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	fresh, err := executeCommand(t, "", "token", "show", "--profile", "test")
	if err != nil {
		t.Fatalf("show after delete: %v", err)
	}
	if !strings.Contains(fresh, "created a new token") || lastLine(fresh) == lastLine(rotated) {
		t.Errorf("show after delete = %q", fresh)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
