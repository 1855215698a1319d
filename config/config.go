// Package config loads loopgraph settings from YAML with environment
// overrides.
//
// Example config.yaml:
//
//	engine:
//	  max_steps: 25
//	  deadline: 5m
//	gate:
//	  threshold: 7.0
//	  max_iterations: 3
//	llm:
//	  provider: anthropic
//	  model: claude-3-5-sonnet-20241022
//	store:
//	  driver: sqlite
//	  dsn: ./loopgraph.db
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// Duration is a time.Duration written as "30s" or "5m" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete configuration.
type Config struct {
	Engine     Engine     `yaml:"engine"`
	Gate       Gate       `yaml:"gate"`
	Supervisor Supervisor `yaml:"supervisor"`
	Research   Research   `yaml:"research"`
	LLM        LLM        `yaml:"llm"`
	Store      Store      `yaml:"store"`
	Metrics    Metrics    `yaml:"metrics"`
	Log        Log        `yaml:"log"`
}

// Engine bounds every run.
type Engine struct {
	MaxSteps int      `yaml:"max_steps"`
	Deadline Duration `yaml:"deadline"`
}

// Gate configures the research quality gate.
type Gate struct {
	Threshold     float64 `yaml:"threshold"`
	MaxIterations int     `yaml:"max_iterations"`
	NeutralScore  float64 `yaml:"neutral_score"`
}

// Supervisor configures the supervisor workflow.
type Supervisor struct {
	MaxIterations int `yaml:"max_iterations"`
}

// Research configures the research workflow's collaborators.
type Research struct {
	SearchURL   string   `yaml:"search_url"`
	MaxPapers   int      `yaml:"max_papers"`
	NodeTimeout Duration `yaml:"node_timeout"`
	Retries     int      `yaml:"retries"`
}

// LLM selects the chat model provider.
type LLM struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// Store selects checkpoint persistence.
type Store struct {
	Driver string   `yaml:"driver"`
	DSN    string   `yaml:"dsn"`
	Prefix string   `yaml:"prefix"`
	TTL    Duration `yaml:"ttl"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Providers lists the accepted llm.provider values.
func Providers() []string { return []string{"mock", "anthropic", "openai", "google"} }

// StoreDrivers lists the accepted store.driver values.
func StoreDrivers() []string { return []string{"memory", "sqlite", "mysql", "redis"} }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine:     Engine{MaxSteps: 25},
		Gate:       Gate{Threshold: 7.0, MaxIterations: 3, NeutralScore: 5.0},
		Supervisor: Supervisor{MaxIterations: 10},
		Research:   Research{MaxPapers: 10},
		LLM:        LLM{Provider: "mock"},
		Store:      Store{Driver: "memory", Prefix: "loopgraph:"},
		Log:        Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path loads only defaults and environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	setInt("LOOPGRAPH_MAX_STEPS", &c.Engine.MaxSteps)
	setFloat("LOOPGRAPH_QUALITY_THRESHOLD", &c.Gate.Threshold)
	setInt("LOOPGRAPH_MAX_ITERATIONS", &c.Gate.MaxIterations)
	setInt("LOOPGRAPH_SUPERVISOR_MAX_ITERATIONS", &c.Supervisor.MaxIterations)
	setString("LOOPGRAPH_STORE_DRIVER", &c.Store.Driver)
	setString("LOOPGRAPH_STORE_DSN", &c.Store.DSN)
	setString("LOOPGRAPH_SEARCH_URL", &c.Research.SearchURL)
	setString("LOOPGRAPH_LLM_PROVIDER", &c.LLM.Provider)
	setString("LOOPGRAPH_LLM_MODEL", &c.LLM.Model)
	setString("LOOPGRAPH_METRICS_ADDR", &c.Metrics.Addr)
	setString("LOOPGRAPH_LOG_LEVEL", &c.Log.Level)

	if c.LLM.APIKey == "" {
		if key := APIKeyEnv(c.LLM.Provider); key != "" {
			setString(key, &c.LLM.APIKey)
		}
	}
	return errors.Join(errs...)
}

// APIKeyEnv names the environment variable holding provider's API key.
func APIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	}
	return ""
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be >= 1, got %d", c.Engine.MaxSteps))
	}
	if c.Engine.Deadline < 0 {
		errs = append(errs, errors.New("engine.deadline cannot be negative"))
	}
	if c.Gate.Threshold < 0 || c.Gate.Threshold > 10 {
		errs = append(errs, fmt.Errorf("gate.threshold must be within [0, 10], got %g", c.Gate.Threshold))
	}
	if c.Gate.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("gate.max_iterations must be >= 1, got %d", c.Gate.MaxIterations))
	}
	if c.Gate.NeutralScore < 0 || c.Gate.NeutralScore > 10 {
		errs = append(errs, fmt.Errorf("gate.neutral_score must be within [0, 10], got %g", c.Gate.NeutralScore))
	}
	if c.Supervisor.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("supervisor.max_iterations must be >= 1, got %d", c.Supervisor.MaxIterations))
	}
	if c.Research.MaxPapers < 1 {
		errs = append(errs, fmt.Errorf("research.max_papers must be >= 1, got %d", c.Research.MaxPapers))
	}
	if c.Research.Retries < 0 {
		errs = append(errs, errors.New("research.retries cannot be negative"))
	}
	if !slices.Contains(Providers(), c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of %v", c.LLM.Provider, Providers()))
	} else if c.LLM.Provider != "mock" && c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider))
	}
	if !slices.Contains(StoreDrivers(), c.Store.Driver) {
		errs = append(errs, fmt.Errorf("store.driver %q is not one of %v", c.Store.Driver, StoreDrivers()))
	} else if c.Store.Driver != "memory" && c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
