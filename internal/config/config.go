// Package config loads ladders.yaml and LADDERS_* environment variables
// through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

const (
	appDirName = "lingo-ladders"
	fileName   = "ladders"
	envPrefix  = "LADDERS"
)

// Config is the full application configuration.
type Config struct {
	Game     GameConfig     `mapstructure:"game"`
	Tasks    TasksConfig    `mapstructure:"tasks"`
	Store    StoreConfig    `mapstructure:"store"`
	API      APIConfig      `mapstructure:"api"`
	Simulate SimulateConfig `mapstructure:"simulate"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// GameConfig holds defaults for new sessions.
type GameConfig struct {
	BoardSize   int                `mapstructure:"board_size"`
	Columns     int                `mapstructure:"columns"`
	Players     int                `mapstructure:"players"`
	PlayerNames []string           `mapstructure:"player_names"`
	Weights     map[string]float64 `mapstructure:"weights"`
}

// TasksConfig points at the task bank.
type TasksConfig struct {
	// Source is a file path or http(s) URL of a CSV or JSON bank.
	Source         string `mapstructure:"source"`
	MaxRetries     int    `mapstructure:"max_retries"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	FlushSize int    `mapstructure:"flush_size"`
}

// APIConfig configures the local HTTP API.
type APIConfig struct {
	Addr                  string `mapstructure:"addr"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	RequireToken          bool   `mapstructure:"require_token"`

	// AllowedOrigins lists browser origins allowed to call the API, for a
	// front end served from a dev server.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SimulateConfig holds simulation defaults.
type SimulateConfig struct {
	Workers        int `mapstructure:"workers"`
	Games          int `mapstructure:"games"`
	MaxTurns       int `mapstructure:"max_turns"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig controls the slog logger. An empty Dir logs to stderr.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	weights := map[string]float64{}
	for t, w := range tasks.DefaultWeights() {
		weights[string(t)] = w
	}
	return &Config{
		Game: GameConfig{
			BoardSize:   session.DefaultBoardSize,
			Columns:     board.DefaultColumns,
			Players:     session.DefaultPlayers,
			PlayerNames: []string{},
			Weights:     weights,
		},
		Tasks: TasksConfig{
			MaxRetries:     3,
			TimeoutSeconds: 20,
		},
		Store: StoreConfig{
			Path:      filepath.Join(ConfigDir(), "ladders.db"),
			FlushSize: 20,
		},
		API: APIConfig{
			Addr:                  "127.0.0.1:17890",
			RequestTimeoutSeconds: 30,
			RequireToken:          true,
			AllowedOrigins:        []string{},
		},
		Simulate: SimulateConfig{
			Workers:        0, // GOMAXPROCS
			Games:          1000,
			MaxTurns:       2000,
			TimeoutSeconds: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("game.board_size", d.Game.BoardSize)
	v.SetDefault("game.columns", d.Game.Columns)
	v.SetDefault("game.players", d.Game.Players)
	v.SetDefault("game.player_names", d.Game.PlayerNames)
	v.SetDefault("game.weights", d.Game.Weights)

	v.SetDefault("tasks.source", d.Tasks.Source)
	v.SetDefault("tasks.max_retries", d.Tasks.MaxRetries)
	v.SetDefault("tasks.timeout_seconds", d.Tasks.TimeoutSeconds)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.flush_size", d.Store.FlushSize)

	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("api.request_timeout_seconds", d.API.RequestTimeoutSeconds)
	v.SetDefault("api.require_token", d.API.RequireToken)
	v.SetDefault("api.allowed_origins", d.API.AllowedOrigins)

	v.SetDefault("simulate.workers", d.Simulate.Workers)
	v.SetDefault("simulate.games", d.Simulate.Games)
	v.SetDefault("simulate.max_turns", d.Simulate.MaxTurns)
	v.SetDefault("simulate.timeout_seconds", d.Simulate.TimeoutSeconds)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)
}

// NewViper returns a viper instance with defaults, env binding and the
// config file read. cfgFile overrides the search path; a missing file in the
// search path is not an error, a missing explicit file is.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}

	// LADDERS_API_ADDR overrides api.addr.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// ConfigDir is $XDG_CONFIG_HOME/lingo-ladders, falling back to the user
// config dir.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "." + appDirName
	}
	return filepath.Join(dir, appDirName)
}

// Weights returns the configured weight table over the stock one.
func (c *Config) Weights() tasks.Weights {
	return tasks.DefaultWeights().Merge(c.Game.Weights)
}

func (c *TasksConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *SimulateConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
