package config

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/logging"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/simulate"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// ValidationError is one bad setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every bad setting found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Validate checks every section and returns all problems found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, c.validateGame()...)
	errs = append(errs, c.validateTasks()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateAPI()...)
	errs = append(errs, c.validateSimulate()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateGame() []ValidationError {
	var errs []ValidationError
	g := c.Game
	if g.BoardSize < board.MinSize || g.BoardSize > board.MaxSize {
		errs = append(errs, ValidationError{"game.board_size", g.BoardSize,
			fmt.Sprintf("must be between %d and %d", board.MinSize, board.MaxSize)})
	}
	if g.Columns < 1 || g.Columns > g.BoardSize {
		errs = append(errs, ValidationError{"game.columns", g.Columns, "must be between 1 and the board size"})
	}
	if g.Players < session.MinPlayers || g.Players > session.MaxPlayers {
		errs = append(errs, ValidationError{"game.players", g.Players,
			fmt.Sprintf("must be between %d and %d", session.MinPlayers, session.MaxPlayers)})
	}
	if len(g.PlayerNames) > session.MaxPlayers {
		errs = append(errs, ValidationError{"game.player_names", len(g.PlayerNames),
			fmt.Sprintf("at most %d names", session.MaxPlayers)})
	}
	for k, w := range g.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			errs = append(errs, ValidationError{"game.weights." + k, w, "must be a finite non-negative number"})
		}
		if !tasks.Type(k).Known() {
			errs = append(errs, ValidationError{"game.weights." + k, k, "unknown task type"})
		}
	}
	return errs
}

func (c *Config) validateTasks() []ValidationError {
	var errs []ValidationError
	if c.Tasks.MaxRetries < 0 || c.Tasks.MaxRetries > 10 {
		errs = append(errs, ValidationError{"tasks.max_retries", c.Tasks.MaxRetries, "must be between 0 and 10"})
	}
	if c.Tasks.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{"tasks.timeout_seconds", c.Tasks.TimeoutSeconds, "must be positive"})
	}
	return errs
}

func (c *Config) validateStore() []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, ValidationError{"store.path", c.Store.Path, "must not be empty"})
	}
	if c.Store.FlushSize < 1 {
		errs = append(errs, ValidationError{"store.flush_size", c.Store.FlushSize, "must be at least 1"})
	}
	return errs
}

func (c *Config) validateAPI() []ValidationError {
	var errs []ValidationError
	if _, _, err := net.SplitHostPort(c.API.Addr); err != nil {
		errs = append(errs, ValidationError{"api.addr", c.API.Addr, "must be host:port"})
	}
	if c.API.RequestTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{"api.request_timeout_seconds", c.API.RequestTimeoutSeconds, "must be positive"})
	}
	for _, o := range c.API.AllowedOrigins {
		u, err := url.Parse(o)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || (u.Path != "" && u.Path != "/") {
			errs = append(errs, ValidationError{"api.allowed_origins", o, "must be an http(s) origin such as http://localhost:5173"})
		}
	}
	return errs
}

func (c *Config) validateSimulate() []ValidationError {
	var errs []ValidationError
	s := c.Simulate
	if s.Workers < 0 {
		errs = append(errs, ValidationError{"simulate.workers", s.Workers, "must be zero (auto) or positive"})
	}
	if s.Games < 1 || s.Games > simulate.MaxGames {
		errs = append(errs, ValidationError{"simulate.games", s.Games,
			fmt.Sprintf("must be between 1 and %d", simulate.MaxGames)})
	}
	if s.MaxTurns < 1 {
		errs = append(errs, ValidationError{"simulate.max_turns", s.MaxTurns, "must be positive"})
	}
	if s.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{"simulate.timeout_seconds", s.TimeoutSeconds, "must not be negative"})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	if !logging.ValidLevel(c.Logging.Level) {
		return []ValidationError{{"logging.level", c.Logging.Level, "must be one of debug, info, warn, error"}}
	}
	return nil
}
