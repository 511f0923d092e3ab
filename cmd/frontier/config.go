package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peter-kozarec/frontier/pkg/frontier"
	"github.com/peter-kozarec/frontier/pkg/optimize/qp"
	"github.com/spf13/viper"
)

const (
	Version = "0.1.0"

	EnvPrefix  = "FRONTIER"
	DateLayout = "2006-01-02"

	ProviderDuckDB = "duckdb"
	ProviderMapped = "mapped"
)

type Config struct {
	Provider string       `mapstructure:"provider"`
	DSN      string       `mapstructure:"dsn"`
	DataDir  string       `mapstructure:"data_dir"`
	Symbols  []string     `mapstructure:"symbols"`
	From     string       `mapstructure:"from"`
	To       string       `mapstructure:"to"`
	GridSize int          `mapstructure:"grid_size"`
	Workers  int          `mapstructure:"workers"`
	Output   string       `mapstructure:"output"`
	Solver   SolverConfig `mapstructure:"solver"`
	Log      LogConfig    `mapstructure:"log"`
}

type SolverConfig struct {
	Tolerance     float64       `mapstructure:"tolerance"`
	MaxIterations int           `mapstructure:"max_iterations"`
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	MaxCondition  float64       `mapstructure:"max_condition"`
}

type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// Period returns the half-open range [from, to) covering every close stamped
// on the configured dates, including the whole of the to day.
func (c Config) Period() (time.Time, time.Time, error) {
	from, err := time.Parse(DateLayout, c.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
	}
	to, err := time.Parse(DateLayout, c.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("period %s..%s is reversed", c.From, c.To)
	}
	return from, to.AddDate(0, 0, 1), nil
}

func (c Config) SolverOptions() qp.Options {
	return qp.Options{
		Tolerance:     c.Solver.Tolerance,
		MaxIterations: c.Solver.MaxIterations,
		MaxDuration:   c.Solver.MaxDuration,
		MaxCondition:  c.Solver.MaxCondition,
	}
}

// loadConfig reads path, or frontier.yaml from the working directory when
// path is empty, and applies FRONTIER_* environment overrides.
func loadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("frontier")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("unable to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.Provider = strings.ToLower(cfg.Provider)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderDuckDB)
	v.SetDefault("dsn", "data/closes.duckdb")
	v.SetDefault("data_dir", "data")
	v.SetDefault("symbols", []string{})
	v.SetDefault("from", "2020-01-01")
	v.SetDefault("to", time.Now().UTC().Format(DateLayout))
	v.SetDefault("grid_size", frontier.DefaultGridSize)
	v.SetDefault("workers", 0)
	v.SetDefault("output", "")

	v.SetDefault("solver.tolerance", qp.DefaultTolerance)
	v.SetDefault("solver.max_iterations", qp.DefaultMaxIterations)
	v.SetDefault("solver.max_duration", "0s")
	v.SetDefault("solver.max_condition", qp.DefaultMaxCondition)

	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.level", "")
}

func (c Config) validate() error {
	switch c.Provider {
	case ProviderDuckDB:
		if c.DSN == "" {
			return errors.New("duckdb provider requires a dsn")
		}
	case ProviderMapped:
		if c.DataDir == "" {
			return errors.New("mapped provider requires a data_dir")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	if len(c.Symbols) == 0 {
		return errors.New("no symbols configured")
	}
	if c.GridSize < 1 {
		return fmt.Errorf("grid_size must be positive, got %d", c.GridSize)
	}
	if _, _, err := c.Period(); err != nil {
		return err
	}
	return nil
}
