package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/store"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

const testToken = "secret-token"

func testBank() []tasks.TaskRecord {
	return []tasks.TaskRecord{
		{ID: "s1", Type: tasks.TypeSpeaking, Prompt: "Parla del teu dia", Focus: "Daily", Level: "A2"},
		{ID: "e1", Type: tasks.TypeErrorCorrection, Prompt: "Jo ha anat", Target: "Jo he anat", Focus: "Grammar", Level: "B1"},
		{ID: "t1", Type: tasks.TypeTranslateCaEn, Prompt: "Bon dia", Target: "Good morning", Focus: "Daily", Level: "A1"},
		{ID: "t2", Type: tasks.TypeTranslateEnCa, Prompt: "Thank you", Target: "Gràcies", Focus: "Daily", Level: "A1"},
	}
}

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *store.Store
}

func newTestEnv(t *testing.T, bank []tasks.TaskRecord) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ladders.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	manager := NewManager(st, bank, tasks.DefaultWeights(), 1, nil)
	srv := NewServer(manager, st, Options{Token: testToken, Workers: 2}, nil)
	t.Cleanup(func() {
		manager.Close()
		st.Close()
	})
	return &testEnv{server: srv, handler: srv.Routes(), store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, testToken)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func (e *testEnv) createSession(t *testing.T, req CreateSessionRequest) SessionView {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/sessions", req)
	expectStatus(t, w, http.StatusCreated)
	return decodeBody[SessionView](t, w)
}

func seed(v uint32) *uint32 { return &v }

func ptr[T any](v T) *T { return &v }

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, testBank())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)

	resp := decodeBody[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusHealthy {
		t.Errorf("status = %s, want healthy", resp.Status)
	}
	if resp.Checks["database"].Status != HealthStatusHealthy {
		t.Errorf("database check = %+v", resp.Checks["database"])
	}
	if resp.EngineVersion == "" {
		t.Error("expected engine version")
	}
}

func TestHealthDegradedWithoutTasks(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", nil)
	expectStatus(t, w, http.StatusOK)
	if resp := decodeBody[HealthCheckResponse](t, w); resp.Status != HealthStatusDegraded {
		t.Errorf("status = %s, want degraded", resp.Status)
	}
}

func TestTokenRequired(t *testing.T) {
	env := newTestEnv(t, testBank())

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/boards", nil)
			if tt.token != "" {
				req.Header.Set(TokenHeader, tt.token)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			expectStatus(t, w, tt.want)
			if tt.want == http.StatusUnauthorized && w.Header().Get("X-Error-Type") != ErrTypeUnauthorized {
				t.Errorf("X-Error-Type = %q", w.Header().Get("X-Error-Type"))
			}
		})
	}
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t, testBank())

	view := env.createSession(t, CreateSessionRequest{Name: "class", Seed: seed(7), PlayerNames: []string{"Ana", "Biel"}})
	if view.ID == "" {
		t.Fatal("expected session id")
	}
	if view.Phase != session.PhaseIdle || !view.CanRoll {
		t.Fatalf("new session phase = %s canRoll = %v", view.Phase, view.CanRoll)
	}
	if view.PoolSize != len(testBank()) {
		t.Errorf("pool size = %d, want %d", view.PoolSize, len(testBank()))
	}
	base := "/api/v1/sessions/" + view.ID

	w := env.do(t, http.MethodPost, base+"/roll", nil)
	expectStatus(t, w, http.StatusOK)
	roll := decodeBody[RollResponse](t, w)
	if roll.Draw.RollValue < 1 || roll.Draw.RollValue > 6 {
		t.Fatalf("roll = %d", roll.Draw.RollValue)
	}
	if roll.Session.PendingTask == nil || roll.Session.PendingTask.ID != roll.Draw.Task.ID {
		t.Fatalf("pending task = %+v, draw = %+v", roll.Session.PendingTask, roll.Draw.Task)
	}

	// A second roll before the move resolves is rejected.
	w = env.do(t, http.MethodPost, base+"/roll", nil)
	expectStatus(t, w, http.StatusConflict)
	if got := decodeBody[EngineError](t, w); got.Type != ErrTypeInvalidTransition {
		t.Errorf("error type = %s", got.Type)
	}

	w = env.do(t, http.MethodPost, base+"/move", MoveRequest{Success: ptr(true)})
	expectStatus(t, w, http.StatusOK)
	move := decodeBody[MoveResponse](t, w)
	if move.Result.Roll != roll.Draw.RollValue {
		t.Errorf("move roll = %d, want %d", move.Result.Roll, roll.Draw.RollValue)
	}
	if move.Result.PlayerName != "Ana" || move.Result.From != 0 {
		t.Errorf("result = %+v", move.Result)
	}
	if len(move.Frames) == 0 {
		t.Error("expected movement frames")
	}
	if move.Session.CurrentPlayer != 1 {
		t.Errorf("current player = %d, want 1", move.Session.CurrentPlayer)
	}

	w = env.do(t, http.MethodGet, base+"/stats", nil)
	expectStatus(t, w, http.StatusOK)
	if stats := decodeBody[StatsResponse](t, w); stats.Turns != 1 || len(stats.Players) != 2 {
		t.Errorf("stats = %+v", stats)
	}

	w = env.do(t, http.MethodGet, base+"/moves", nil)
	expectStatus(t, w, http.StatusOK)
	moves := decodeBody[store.MovesPage](t, w)
	if moves.TotalCount != 1 || moves.Moves[0].To != move.Result.To {
		t.Errorf("moves = %+v", moves)
	}

	// The snapshot survives a fresh manager.
	fresh := NewManager(env.store, testBank(), tasks.DefaultWeights(), 1, nil)
	err := fresh.View(view.ID, func(s *session.Session) error {
		if got := s.State().Players[0].Position; got != move.Result.To {
			t.Errorf("restored position = %d, want %d", got, move.Result.To)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestMoveRequiresSuccess(t *testing.T) {
	env := newTestEnv(t, testBank())
	view := env.createSession(t, CreateSessionRequest{Seed: seed(1)})

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/move", map[string]any{})
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/move", MoveRequest{Success: ptr(false)})
	expectStatus(t, w, http.StatusConflict)
}

func TestRollWithEmptyPool(t *testing.T) {
	env := newTestEnv(t, nil)
	view := env.createSession(t, CreateSessionRequest{Seed: seed(1)})

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/roll", nil)
	expectStatus(t, w, http.StatusConflict)
	if got := decodeBody[EngineError](t, w); got.Type != ErrTypeEmptyPool {
		t.Errorf("error type = %s, want %s", got.Type, ErrTypeEmptyPool)
	}
}

func TestSessionNotFound(t *testing.T) {
	env := newTestEnv(t, testBank())

	for _, path := range []string{"/api/v1/sessions/missing", "/api/v1/sessions/missing/stats"} {
		w := env.do(t, http.MethodGet, path, nil)
		expectStatus(t, w, http.StatusNotFound)
	}
	w := env.do(t, http.MethodDelete, "/api/v1/sessions/missing", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t, testBank())

	tests := []struct {
		name string
		body any
		want int
	}{
		{"board too small", CreateSessionRequest{BoardSize: 20}, http.StatusBadRequest},
		{"too many players", CreateSessionRequest{Players: 9}, http.StatusBadRequest},
		{"unknown field", map[string]any{"colour": "red"}, http.StatusBadRequest},
		{"defaults", CreateSessionRequest{}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/sessions", tt.body)
			expectStatus(t, w, tt.want)
		})
	}
}

func TestSettingsResetGame(t *testing.T) {
	env := newTestEnv(t, testBank())
	view := env.createSession(t, CreateSessionRequest{Seed: seed(3)})
	base := "/api/v1/sessions/" + view.ID

	expectStatus(t, env.do(t, http.MethodPost, base+"/roll", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, base+"/move", MoveRequest{Success: ptr(true)}), http.StatusOK)

	// Cosmetic settings keep the game.
	w := env.do(t, http.MethodPut, base+"/settings", SettingsRequest{ShowAnswer: ptr(true), Pack: ptr("Daily")})
	expectStatus(t, w, http.StatusOK)
	got := decodeBody[SessionView](t, w)
	if !got.State.ShowAnswer || got.State.Filter.Pack != "Daily" {
		t.Errorf("state = %+v", got.State)
	}
	if got.PoolSize != 3 {
		t.Errorf("pool size = %d, want 3", got.PoolSize)
	}
	if got.State.Players[0].Position == 0 && got.State.TurnIndex == 0 {
		t.Error("cosmetic settings should not reset the game")
	}

	w = env.do(t, http.MethodPut, base+"/settings", SettingsRequest{BoardSize: ptr(60), Players: ptr(3)})
	expectStatus(t, w, http.StatusOK)
	got = decodeBody[SessionView](t, w)
	if got.State.BoardSize != 60 || len(got.State.Players) != 3 {
		t.Fatalf("state = %+v", got.State)
	}
	for _, p := range got.State.Players {
		if p.Position != 0 {
			t.Errorf("player %s at %d after reset", p.Name, p.Position)
		}
	}

	w = env.do(t, http.MethodGet, base+"/moves", nil)
	expectStatus(t, w, http.StatusOK)
	if moves := decodeBody[store.MovesPage](t, w); moves.TotalCount != 0 {
		t.Errorf("move log has %d rows after reset", moves.TotalCount)
	}

	w = env.do(t, http.MethodPut, base+"/settings", SettingsRequest{BoardSize: ptr(30)})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestListAndDeleteSessions(t *testing.T) {
	env := newTestEnv(t, testBank())
	a := env.createSession(t, CreateSessionRequest{Name: "a", Seed: seed(1)})
	env.createSession(t, CreateSessionRequest{Name: "b", Seed: seed(2)})

	w := env.do(t, http.MethodGet, "/api/v1/sessions?limit=10", nil)
	expectStatus(t, w, http.StatusOK)
	if list := decodeBody[SessionListResponse](t, w); list.Total != 2 || len(list.Sessions) != 2 {
		t.Fatalf("list = %+v", list)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/sessions/"+a.ID, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/sessions/"+a.ID, nil), http.StatusNotFound)
}

func TestBoardEndpoints(t *testing.T) {
	env := newTestEnv(t, testBank())

	w := env.do(t, http.MethodGet, "/api/v1/boards", nil)
	expectStatus(t, w, http.StatusOK)
	if boards := decodeBody[BoardsResponse](t, w); len(boards.Sizes) == 0 || boards.Min != 40 || boards.Max != 100 {
		t.Errorf("boards = %+v", boards)
	}

	w = env.do(t, http.MethodGet, "/api/v1/boards/100", nil)
	expectStatus(t, w, http.StatusOK)
	b := decodeBody[BoardResponse](t, w)
	if b.Size != 100 || b.Columns != 10 || len(b.Rows) != 10 {
		t.Fatalf("board = size %d columns %d rows %d", b.Size, b.Columns, len(b.Rows))
	}
	if b.Rows[0][0].Square != 100 || b.Rows[9][0].Square != 1 {
		t.Errorf("corners = %d, %d", b.Rows[0][0].Square, b.Rows[9][0].Square)
	}
	if len(b.Jumps) == 0 {
		t.Error("expected jumps")
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/boards/12", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/boards/abc", nil), http.StatusBadRequest)
}

func TestPacksAndReload(t *testing.T) {
	env := newTestEnv(t, testBank())

	w := env.do(t, http.MethodGet, "/api/v1/packs", nil)
	expectStatus(t, w, http.StatusOK)
	packs := decodeBody[PacksResponse](t, w)
	if packs.Total != 4 || len(packs.Packs) != 2 || len(packs.Levels) != 3 {
		t.Fatalf("packs = %+v", packs)
	}

	feed := filepath.Join(t.TempDir(), "bank.csv")
	csv := "ID,Level,Pack,Question,Answer,Task Type\n" +
		"x1,A1,Travel,On és l'estació?,Where is the station?,translate_ca_en\n" +
		"x2,A2,Travel,Explica el teu últim viatge,,speaking\n"
	if err := os.WriteFile(feed, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	w = env.do(t, http.MethodPost, "/api/v1/tasks/reload", ReloadTasksRequest{Source: feed})
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody[ReloadTasksResponse](t, w); got.Total != 2 {
		t.Fatalf("reload = %+v", got)
	}

	w = env.do(t, http.MethodGet, "/api/v1/packs", nil)
	if packs := decodeBody[PacksResponse](t, w); packs.Total != 2 || packs.Packs[0].Name != "Travel" {
		t.Errorf("packs after reload = %+v", packs)
	}

	w = env.do(t, http.MethodPost, "/api/v1/tasks/reload", ReloadTasksRequest{Source: filepath.Join(t.TempDir(), "missing.csv")})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestSimulateAndRuns(t *testing.T) {
	env := newTestEnv(t, testBank())

	req := SimulateRequest{BoardSize: 40, Players: 2, Games: 20, SeedStart: 5, Save: true}
	w := env.do(t, http.MethodPost, "/api/v1/simulate", req)
	expectStatus(t, w, http.StatusOK)
	first := decodeBody[SimulateResponse](t, w)
	if first.RunID == "" || first.Result == nil {
		t.Fatalf("response = %+v", first)
	}
	if first.Result.Summary.Games != 20 || first.Result.Summary.Completed != 20 {
		t.Errorf("summary = %+v", first.Result.Summary)
	}

	// Same seeds, same summary.
	req.Save = false
	w = env.do(t, http.MethodPost, "/api/v1/simulate", req)
	expectStatus(t, w, http.StatusOK)
	second := decodeBody[SimulateResponse](t, w)
	if !second.Result.Summary.MeanTurns.Equal(first.Result.Summary.MeanTurns) {
		t.Errorf("mean turns %s != %s", second.Result.Summary.MeanTurns, first.Result.Summary.MeanTurns)
	}

	w = env.do(t, http.MethodGet, "/api/v1/runs?boardSize=40", nil)
	expectStatus(t, w, http.StatusOK)
	if runs := decodeBody[RunsResponse](t, w); len(runs.Runs) != 1 || runs.Runs[0].ID != first.RunID {
		t.Fatalf("runs = %+v", runs)
	}

	w = env.do(t, http.MethodGet, "/api/v1/runs/"+first.RunID, nil)
	expectStatus(t, w, http.StatusOK)
	if run := decodeBody[store.Run](t, w); run.MeanTurns != first.Result.Summary.MeanTurns.String() {
		t.Errorf("run mean turns = %s", run.MeanTurns)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/runs/nope", nil), http.StatusNotFound)
}

func TestSimulateValidation(t *testing.T) {
	env := newTestEnv(t, testBank())

	tests := []struct {
		name string
		req  SimulateRequest
		want int
	}{
		{"bad script", SimulateRequest{Games: 1, Script: "function outcome( {"}, http.StatusBadRequest},
		{"bad rate", SimulateRequest{Games: 1, SuccessRate: ptr(1.5)}, http.StatusBadRequest},
		{"bad board", SimulateRequest{Games: 1, BoardSize: 500}, http.StatusBadRequest},
		{"script", SimulateRequest{Games: 3, MaxTurns: 50, Script: "outcome = function(t) { return t.roll % 2 === 0 }"}, http.StatusOK},
		{"rate with bank", SimulateRequest{Games: 3, MaxTurns: 50, SuccessRate: ptr(0.5), UseBank: true}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, http.MethodPost, "/api/v1/simulate", tt.req), tt.want)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "ladders.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	srv := NewServer(NewManager(st, testBank(), nil, 1, nil), st, Options{
		Token:          testToken,
		AllowedOrigins: []string{"http://localhost:5173"},
	}, nil)
	h := srv.Routes()

	tests := []struct {
		name       string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", "http://localhost:5173", http.StatusNoContent, "http://localhost:5173"},
		{"other origin", "http://evil.example", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			expectStatus(t, w, tt.wantStatus)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}
