package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// GET /api/v1/sessions?limit=&offset=
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(qInt(r, "limit", 50), 1, 500)
	offset := max(qInt(r, "offset", 0), 0)
	list, total, err := s.store.ListSessions(limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SessionListResponse{Sessions: list, Total: total, Limit: limit, Offset: offset})
}

// POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.BoardSize != 0 && (req.BoardSize < board.MinSize || req.BoardSize > board.MaxSize) {
		s.errorHandler.HandleValidationError(w, r, "boardSize", "board size must be between 40 and 100")
		return
	}
	if len(req.PlayerNames) > session.MaxPlayers {
		s.errorHandler.HandleValidationError(w, r, "playerNames", "too many player names")
		return
	}

	seed := uint32(time.Now().UnixNano())
	if req.Seed != nil {
		seed = *req.Seed
	}
	id, view, err := s.manager.Create(req.Name, session.Options{
		Seed:        seed,
		BoardSize:   req.BoardSize,
		NumPlayers:  req.Players,
		PlayerNames: req.PlayerNames,
		Filter:      tasks.Filter{Pack: req.Pack, Levels: req.Levels},
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sessions/"+id)
	s.writeJSON(w, http.StatusCreated, view)
}

// GET /api/v1/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var view SessionView
	err := s.manager.View(id, func(sess *session.Session) error {
		view = viewOf(id, sess)
		return nil
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// DELETE /api/v1/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(chi.URLParam(r, "id")); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/sessions/{id}/roll
func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var resp RollResponse
	err := s.manager.Update(id, func(sess *session.Session) error {
		ev, err := sess.RollAndDraw()
		if err != nil {
			return err
		}
		resp = RollResponse{Draw: ev, Session: viewOf(id, sess)}
		return nil
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/sessions/{id}/move {"success": bool}
//
// The whole move is computed and committed in one request; frames are
// returned for the client to animate at its own pace.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Success == nil {
		s.errorHandler.HandleValidationError(w, r, "success", "success is required")
		return
	}

	id := chi.URLParam(r, "id")
	var resp MoveResponse
	err := s.manager.Update(id, func(sess *session.Session) error {
		mv, err := sess.BeginMove(*req.Success)
		if err != nil {
			return err
		}
		for f := range mv.Frames() {
			resp.Frames = append(resp.Frames, f)
		}
		res, err := mv.Commit()
		if err != nil {
			return err
		}
		resp.Result = res
		resp.Session = viewOf(id, sess)
		return nil
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if resp.Result.Won {
		s.logger.Info("game won", "session_id", id, "player", resp.Result.PlayerName, "turn", resp.Result.Turn)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/sessions/{id}/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Reset(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// PUT /api/v1/sessions/{id}/settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.BoardSize != nil && (*req.BoardSize < board.MinSize || *req.BoardSize > board.MaxSize) {
		s.errorHandler.HandleValidationError(w, r, "boardSize", "board size must be between 40 and 100")
		return
	}
	if req.Players != nil && (*req.Players < session.MinPlayers || *req.Players > session.MaxPlayers) {
		s.errorHandler.HandleValidationError(w, r, "players", "players must be between 1 and 6")
		return
	}

	id := chi.URLParam(r, "id")
	apply := func(sess *session.Session) error {
		st := sess.State()
		if req.BoardSize != nil && *req.BoardSize != st.BoardSize {
			if err := sess.SetBoardSize(*req.BoardSize); err != nil {
				return err
			}
		}
		if req.Players != nil && *req.Players != len(st.Players) {
			if err := sess.SetPlayerCount(*req.Players); err != nil {
				return err
			}
		}
		if req.PlayerNames != nil {
			if err := sess.SetPlayerNames(req.PlayerNames); err != nil {
				return err
			}
		}
		if req.Pack != nil {
			if err := sess.SetPack(*req.Pack); err != nil {
				return err
			}
		}
		if req.Levels != nil {
			if err := sess.SetLevels(*req.Levels); err != nil {
				return err
			}
		}
		if req.ShowAnswer != nil {
			return sess.SetShowAnswer(*req.ShowAnswer)
		}
		return nil
	}

	update := s.manager.Update
	if req.BoardSize != nil || req.Players != nil {
		update = s.manager.UpdateAndReset
	}
	var view SessionView
	err := update(id, func(sess *session.Session) error {
		if err := apply(sess); err != nil {
			return err
		}
		view = viewOf(id, sess)
		return nil
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// GET /api/v1/sessions/{id}/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse
	err := s.manager.View(chi.URLParam(r, "id"), func(sess *session.Session) error {
		resp = statsView(sess.Stats())
		return nil
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/sessions/{id}/moves?page=&perPage=
func (s *Server) handleMoves(w http.ResponseWriter, r *http.Request) {
	page := max(qInt(r, "page", 1), 1)
	perPage := clampInt(qInt(r, "perPage", 50), 1, 500)
	moves, err := s.manager.Moves(chi.URLParam(r, "id"), page, perPage)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, moves)
}
