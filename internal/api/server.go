// Package api serves the session engine over a loopback HTTP API for a
// single local front end.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/lingo-ladders/internal/authtoken"
	"github.com/MJE43/lingo-ladders/internal/logging"
	"github.com/MJE43/lingo-ladders/internal/simulate"
	"github.com/MJE43/lingo-ladders/internal/store"
	"github.com/MJE43/lingo-ladders/internal/taskbank"
)

// TokenHeader carries the API token.
const TokenHeader = "X-Ladders-Token"

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Addr           string
	Token          string // empty disables token checks
	AllowedOrigins []string
	RequestTimeout time.Duration
	Columns        int
	Workers        int
	MaxGames       int
	Loader         *taskbank.Loader
}

// Server handles HTTP requests.
type Server struct {
	manager      *Manager
	store        *store.Store
	runner       *simulate.Runner
	loader       *taskbank.Loader
	errorHandler *ErrorHandler
	logger       *logging.Logger
	opts         Options
	startTime    time.Time
	httpServer   *http.Server
}

// NewServer wires a server over manager and st.
func NewServer(manager *Manager, st *store.Store, opts Options, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Columns <= 0 {
		opts.Columns = 10
	}
	if opts.MaxGames <= 0 {
		opts.MaxGames = simulate.MaxGames
	}
	if opts.Loader == nil {
		opts.Loader = taskbank.NewLoader(taskbank.Config{})
	}
	logger = logger.WithComponent("api")
	return &Server{
		manager:      manager,
		store:        st,
		runner:       simulate.NewRunner(opts.Workers),
		loader:       opts.Loader,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		opts:         opts,
		startTime:    time.Now(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.corsMiddleware)
	r.Use(s.logRequest)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/version", s.handleVersion)
		r.Get("/boards", s.handleBoards)
		r.Get("/boards/{size}", s.handleBoard)
		r.Get("/packs", s.handlePacks)
		r.Post("/tasks/reload", s.handleReloadTasks)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/roll", s.handleRoll)
				r.Post("/move", s.handleMove)
				r.Post("/reset", s.handleReset)
				r.Put("/settings", s.handleSettings)
				r.Get("/stats", s.handleStats)
				r.Get("/moves", s.handleMoves)
			})
		})

		r.Post("/simulate", s.handleSimulate)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() (net.Addr, error) {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "error", err)
		}
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Shutdown stops accepting requests and flushes move logs.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.manager.Close()
	return err
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" && !authtoken.Equal(r.Header.Get(TokenHeader), s.opts.Token) {
			s.errorHandler.HandleError(w, r,
				NewError(ErrTypeUnauthorized, "missing or invalid "+TokenHeader).Build())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.errorHandler.HandleError(w, r,
			NewError(ErrTypeInvalidParams, "invalid JSON body").WithCause(err).Build())
		return false
	}
	return true
}

func qInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
