// Package config holds the server configuration and its layered loading:
// built-in defaults, an optional config file, then GOSCHED_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/me/gosched/pkg/model"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. GOSCHED_ADDR or
// GOSCHED_SIMULATION_QUANTUM.
const EnvPrefix = "GOSCHED"

// ServerConfig holds configuration for the gosched server.
type ServerConfig struct {
	Addr      string // Listen address (default ":8080")
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json
	DBPath    string // SQLite database path (default ~/.gosched/gosched.db, ":memory:" for testing)

	SessionTTL  time.Duration // Idle interactive sessions are dropped after this long
	MaxSessions int           // Upper bound on concurrently open sessions

	Simulation SimulationDefaults
}

// SimulationDefaults fill the engine settings a submitted workload leaves
// unset.
type SimulationDefaults struct {
	Quantum    int64
	MaxTicks   int
	Aging      model.AgingSpec
	VerifyHeap bool
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:        ":8080",
		LogLevel:    "info",
		LogFormat:   "text",
		SessionTTL:  30 * time.Minute,
		MaxSessions: 256,
		Simulation: SimulationDefaults{
			Quantum: 4,
		},
	}
}

// Apply fills zero-valued engine settings of w from the defaults. An empty
// aging block takes the default policy; a workload opts out with
// aging.disabled.
func (d SimulationDefaults) Apply(w *model.Workload) {
	if w.Quantum == 0 {
		w.Quantum = d.Quantum
	}
	if w.MaxTicks == 0 {
		w.MaxTicks = d.MaxTicks
	}
	if w.Aging == (model.AgingSpec{}) {
		w.Aging = d.Aging
	}
}

// Load layers an optional config file (YAML, JSON or TOML, chosen by
// extension) and GOSCHED_* environment variables over the defaults.
// An empty path skips the file.
func Load(path string) (ServerConfig, error) {
	v := viper.New()
	setDefaults(v, DefaultServerConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := ServerConfig{
		Addr:        v.GetString("addr"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		DBPath:      v.GetString("db"),
		SessionTTL:  v.GetDuration("session_ttl"),
		MaxSessions: v.GetInt("max_sessions"),
		Simulation: SimulationDefaults{
			Quantum:  v.GetInt64("simulation.quantum"),
			MaxTicks: v.GetInt("simulation.max_ticks"),
			Aging: model.AgingSpec{
				Interval:   v.GetInt64("simulation.aging.interval"),
				Step:       v.GetInt("simulation.aging.step"),
				Cap:        v.GetInt("simulation.aging.cap"),
				Expression: v.GetString("simulation.aging.expression"),
			},
			VerifyHeap: v.GetBool("simulation.verify_heap"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, d ServerConfig) {
	v.SetDefault("addr", d.Addr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("db", d.DBPath)
	v.SetDefault("session_ttl", d.SessionTTL)
	v.SetDefault("max_sessions", d.MaxSessions)
	v.SetDefault("simulation.quantum", d.Simulation.Quantum)
	v.SetDefault("simulation.max_ticks", d.Simulation.MaxTicks)
	v.SetDefault("simulation.aging.interval", d.Simulation.Aging.Interval)
	v.SetDefault("simulation.aging.step", d.Simulation.Aging.Step)
	v.SetDefault("simulation.aging.cap", d.Simulation.Aging.Cap)
	v.SetDefault("simulation.aging.expression", d.Simulation.Aging.Expression)
	v.SetDefault("simulation.verify_heap", d.Simulation.VerifyHeap)
}

// Validate rejects settings the server cannot start with.
func (c ServerConfig) Validate() error {
	switch {
	case c.Addr == "":
		return &model.ConfigError{Field: "addr", Reason: "must not be empty"}
	case c.SessionTTL <= 0:
		return &model.ConfigError{Field: "session_ttl", Reason: "must be > 0"}
	case c.MaxSessions <= 0:
		return &model.ConfigError{Field: "max_sessions", Reason: "must be > 0"}
	case c.Simulation.Quantum <= 0:
		return &model.ConfigError{Field: "simulation.quantum", Reason: "must be > 0"}
	case c.Simulation.MaxTicks < 0:
		return &model.ConfigError{Field: "simulation.max_ticks", Reason: "must be >= 0"}
	}
	return nil
}
