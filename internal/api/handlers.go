package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/scripting"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/simulate"
	"github.com/MJE43/lingo-ladders/internal/store"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// GET /api/v1/boards
func (s *Server) handleBoards(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, BoardsResponse{Sizes: board.Sizes, Min: board.MinSize, Max: board.MaxSize})
}

// GET /api/v1/boards/{size}?columns=
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(chi.URLParam(r, "size"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "size", "size must be an integer")
		return
	}
	jumps, err := board.BuildJumps(size)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	columns := clampInt(qInt(r, "columns", s.opts.Columns), 1, size)
	grid, err := board.Layout(size, columns)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	resp := BoardResponse{
		Size:    size,
		Columns: columns,
		Jumps:   jumps.Edges(),
		Chains:  jumps.Chains(),
		Rows:    make([][]board.Cell, grid.Rows()),
	}
	for i := range resp.Rows {
		resp.Rows[i] = grid.Row(i)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/packs
func (s *Server) handlePacks(w http.ResponseWriter, r *http.Request) {
	bank := s.manager.Bank()
	s.writeJSON(w, http.StatusOK, PacksResponse{
		Packs:  tasks.ListPacks(bank),
		Levels: tasks.ListLevels(bank),
		Total:  len(bank),
	})
}

// POST /api/v1/tasks/reload
func (s *Server) handleReloadTasks(w http.ResponseWriter, r *http.Request) {
	var req ReloadTasksRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		s.errorHandler.HandleValidationError(w, r, "source", "source is required")
		return
	}

	bank, report, err := s.loader.Load(r.Context(), req.Source)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errTimeout
		} else {
			err = NewError(ErrTypeValidation, "could not load task bank").
				WithContext("source", req.Source).
				WithCause(err).
				Build()
		}
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if len(bank) == 0 {
		s.errorHandler.HandleError(w, r,
			NewError(ErrTypeValidation, "task bank has no usable rows").
				WithContext("skipped", len(report.Skipped)).
				Build())
		return
	}

	s.manager.SetBank(bank)
	s.logger.Info("task bank reloaded",
		"source", req.Source,
		"loaded", report.Loaded,
		"skipped", len(report.Skipped),
		"repaired", len(report.Repaired),
	)
	s.writeJSON(w, http.StatusOK, ReloadTasksResponse{Source: req.Source, Report: report, Total: len(bank)})
}

// POST /api/v1/simulate
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Games > s.opts.MaxGames {
		s.errorHandler.HandleError(w, r,
			NewError(ErrTypeValidation, "too many games").
				WithContext("games", req.Games).
				WithContext("max", s.opts.MaxGames).
				Build())
		return
	}

	sim := simulate.Request{
		BoardSize: req.BoardSize,
		Players:   req.Players,
		Games:     req.Games,
		SeedStart: req.SeedStart,
		MaxTurns:  req.MaxTurns,
		TimeoutMs: req.TimeoutMs,
	}
	switch {
	case req.Script != "":
		if _, err := scripting.NewOracle(req.Script, 0); err != nil {
			s.errorHandler.HandleError(w, r,
				NewError(ErrTypeValidation, "script does not compile").WithCause(err).Build())
			return
		}
		sim.Decider = scripting.ScriptFactory(req.Script)
	case req.SuccessRate != nil:
		if *req.SuccessRate < 0 || *req.SuccessRate > 1 {
			s.errorHandler.HandleValidationError(w, r, "successRate", "successRate must be between 0 and 1")
			return
		}
		sim.Decider = scripting.RatesFactory(*req.SuccessRate, nil)
	}
	if req.UseBank {
		sim.Tasks = s.manager.Bank()
		sim.Weights = s.manager.weights
		if len(sim.Tasks) == 0 {
			s.errorHandler.HandleError(w, r, session.ErrEmptyPool)
			return
		}
	}

	res, err := s.runner.Run(r.Context(), sim)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	resp := SimulateResponse{Result: res, EngineVersion: EngineVersion}
	if req.Save {
		summary, err := json.Marshal(res.Summary)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		run := &store.Run{
			BoardSize: res.Echo.BoardSize,
			Players:   res.Echo.Players,
			Games:     res.Echo.Games,
			SeedStart: res.Echo.SeedStart,
			Script:    req.Script,
			MeanTurns: res.Summary.MeanTurns.String(),
			Summary:   summary,
		}
		if err := s.store.SaveRun(run); err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		resp.RunID = run.ID
	}

	s.logger.Info("simulation finished",
		"games", res.Summary.Games,
		"capped", res.Summary.Capped,
		"failed", res.Summary.Failed,
		"mean_turns", res.Summary.MeanTurns.String(),
		"timed_out", res.Summary.TimedOut,
		"elapsed", res.Elapsed,
	)
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/runs?boardSize=&limit=
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(qInt(r, "boardSize", 0), clampInt(qInt(r, "limit", 50), 1, 500))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	s.writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

// GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}
