// Package config loads run settings for the coordinator and worker binaries.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// environment variables, then command-line flags. Later layers win. Call
// Validate once every layer has been applied.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/forestfire/internal/coordinator"
	"github.com/dreamware/forestfire/internal/forest"
)

// ErrInvalidConfig is wrapped by every error returned from Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Strategy selects how the coordinator binary computes iterations.
type Strategy string

const (
	StrategyDistributed Strategy = "distributed" // Bands over TCP workers
	StrategyParallel    Strategy = "parallel"    // In-process goroutine pool
	StrategySequential  Strategy = "sequential"  // Single goroutine baseline
)

// Duration is a time.Duration written as a string ("30s", "1m") in YAML.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration back as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds every setting either binary understands. Fields a binary
// does not use are ignored by it.
type Config struct {
	// Addr is the coordinator endpoint: the listen address for the
	// coordinator and the dial target for workers.
	Addr string `yaml:"addr"`

	Size       int      `yaml:"size"`
	Iterations int      `yaml:"iterations"`
	Workers    int      `yaml:"workers"`
	Strategy   Strategy `yaml:"strategy"`
	Density    float64  `yaml:"density"`
	Seed       uint64   `yaml:"seed"` // 0 picks a time-based seed

	Params forest.Params `yaml:"params"`

	FailurePolicy coordinator.FailurePolicy `yaml:"failure_policy"`
	Dispatch      coordinator.Dispatch      `yaml:"dispatch"`
	AcceptTimeout Duration                  `yaml:"accept_timeout"`
	IOTimeout     Duration                  `yaml:"io_timeout"`
	ReportEvery   int                       `yaml:"report_every"`

	// Threads is the goroutine count for the parallel strategy and for
	// workers computing their own band.
	Threads int `yaml:"threads"`

	DialAttempts int      `yaml:"dial_attempts"`
	DialDelay    Duration `yaml:"dial_delay"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Addr:          "localhost:8000",
		Size:          300,
		Iterations:    20,
		Workers:       2,
		Strategy:      StrategyDistributed,
		Density:       forest.DefaultDensity,
		Params:        forest.DefaultParams(),
		FailurePolicy: coordinator.PolicyAbort,
		Dispatch:      coordinator.DispatchSerial,
		AcceptTimeout: Duration(60 * time.Second),
		IOTimeout:     Duration(30 * time.Second),
		ReportEvery:   coordinator.DefaultReportEvery,
		Threads:       4,
		DialAttempts:  10,
		DialDelay:     Duration(400 * time.Millisecond),
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// decode overlays YAML onto cfg; keys absent from data keep their value.
// Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Parse builds a Config from every layer in order: defaults, the YAML file
// named by -config (or FOREST_CONFIG), the environment, then the flags in
// args. bind registers the binary's flags, usually a method expression such
// as (*Config).BindWorker. The result is validated.
func Parse(name string, args []string, getenv func(string) string, bind func(*Config, *flag.FlagSet)) (Config, error) {
	// First pass only finds the config file; flag values are discarded.
	path := getenv("FOREST_CONFIG")
	scratch := Default()
	pre := flag.NewFlagSet(name, flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	bind(&scratch, pre)
	pre.StringVar(&path, "config", path, "")
	if err := pre.Parse(args); err != nil && !errors.Is(err, flag.ErrHelp) {
		return Config{}, err
	}

	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(getenv)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	bind(&cfg, fs)
	fs.String("config", path, "YAML config file (env FOREST_CONFIG)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides settings from the environment. getenv is usually
// os.Getenv.
//
// Recognised variables:
//   - COORDINATOR_ADDR: Addr
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("COORDINATOR_ADDR"); v != "" {
		c.Addr = v
	}
}

// BindCoordinator registers the coordinator's flags on fs, using the current
// values as defaults.
func (c *Config) BindCoordinator(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "listen", c.Addr, "address to accept workers on")
	fs.IntVar(&c.Size, "size", c.Size, "grid side length")
	fs.IntVar(&c.Iterations, "iterations", c.Iterations, "number of iterations")
	fs.IntVar(&c.Workers, "workers", c.Workers, "workers to wait for (distributed)")
	fs.StringVar((*string)(&c.Strategy), "strategy", string(c.Strategy), "distributed, parallel or sequential")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed (0 = time based)")
	fs.Float64Var(&c.Density, "density", c.Density, "initial tree density")
	fs.StringVar((*string)(&c.FailurePolicy), "policy", string(c.FailurePolicy), "worker failure policy: abort or freeze")
	fs.StringVar((*string)(&c.Dispatch), "dispatch", string(c.Dispatch), "worker dispatch: serial or concurrent")
	fs.DurationVar((*time.Duration)(&c.AcceptTimeout), "accept-timeout", time.Duration(c.AcceptTimeout), "time to wait for all workers (0 = no limit)")
	fs.DurationVar((*time.Duration)(&c.IOTimeout), "io-timeout", time.Duration(c.IOTimeout), "per-exchange deadline (0 = none)")
	fs.IntVar(&c.Threads, "threads", c.Threads, "goroutines for the parallel strategy")
	c.bindParams(fs)
}

// BindWorker registers the worker's flags on fs.
func (c *Config) BindWorker(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "coordinator address")
	fs.IntVar(&c.Threads, "threads", c.Threads, "goroutines per band (1 = sequential)")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed (0 = time based)")
	fs.IntVar(&c.DialAttempts, "dial-attempts", c.DialAttempts, "connection attempts before giving up")
	fs.DurationVar((*time.Duration)(&c.DialDelay), "dial-delay", time.Duration(c.DialDelay), "delay between connection attempts")
}

func (c *Config) bindParams(fs *flag.FlagSet) {
	fs.Float64Var(&c.Params.GrowthProb, "growth", c.Params.GrowthProb, "probability an empty cell grows a tree")
	fs.Float64Var(&c.Params.IgniteProb, "ignite", c.Params.IgniteProb, "probability a tree ignites spontaneously")
}

// Validate checks every setting and reports the first problem.
func (c Config) Validate() error {
	switch {
	case c.Size < 1:
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidConfig, c.Size)
	case c.Iterations < 0:
		return fmt.Errorf("%w: iterations %d must not be negative", ErrInvalidConfig, c.Iterations)
	case c.Density < 0 || c.Density > 1:
		return fmt.Errorf("%w: density %v out of [0,1]", ErrInvalidConfig, c.Density)
	case c.Threads < 1:
		return fmt.Errorf("%w: threads %d must be positive", ErrInvalidConfig, c.Threads)
	case c.ReportEvery < 0:
		return fmt.Errorf("%w: report_every %d must not be negative", ErrInvalidConfig, c.ReportEvery)
	case c.AcceptTimeout < 0 || c.IOTimeout < 0 || c.DialDelay < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Strategy {
	case StrategyDistributed:
		if c.Workers < 1 || c.Workers > c.Size {
			return fmt.Errorf("%w: workers %d must be in [1, %d]", ErrInvalidConfig, c.Workers, c.Size)
		}
		if c.Addr == "" {
			return fmt.Errorf("%w: addr is required", ErrInvalidConfig)
		}
	case StrategyParallel, StrategySequential:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}

	if err := c.FailurePolicy.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Coordinator converts the settings into a coordinator configuration.
func (c Config) Coordinator() coordinator.Config {
	return coordinator.Config{
		ListenAddr:    c.Addr,
		Workers:       c.Workers,
		Params:        c.Params,
		AcceptTimeout: time.Duration(c.AcceptTimeout),
		IOTimeout:     time.Duration(c.IOTimeout),
		FailurePolicy: c.FailurePolicy,
		Dispatch:      c.Dispatch,
		ReportEvery:   c.ReportEvery,
	}
}
