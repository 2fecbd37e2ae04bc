package compiler

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultApplicabilityThreshold aborts a run when more than this fraction of
// generated drafts fail transform applicability, which usually means an
// allowlist glob swept in a branch of the taxonomy it should not have.
const DefaultApplicabilityThreshold = 0.05

// Config carries everything a compile run needs beyond the rule files
// themselves.
type Config struct {
	RulesDir               string  `yaml:"rules_dir"`
	Workers                int     `yaml:"workers"`
	ApplicabilityThreshold float64 `yaml:"applicability_threshold"`
	PostgresDSN            string  `yaml:"postgres_dsn"`
}

// FromEnv builds a config from environment variables.
//
//	FOODGRAPH_RULES_DIR: rule file directory (default ./rules)
//	FOODGRAPH_WORKERS: parallel fan-out width (default GOMAXPROCS)
//	FOODGRAPH_APPLICABILITY_THRESHOLD: abort fraction (default 0.05)
//	FOODGRAPH_POSTGRES_DSN: enable the relational mirror publish when set
func FromEnv() (Config, error) {
	cfg := Config{
		RulesDir:               os.Getenv("FOODGRAPH_RULES_DIR"),
		ApplicabilityThreshold: DefaultApplicabilityThreshold,
		PostgresDSN:            os.Getenv("FOODGRAPH_POSTGRES_DSN"),
	}
	if raw := os.Getenv("FOODGRAPH_WORKERS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid FOODGRAPH_WORKERS %q", raw)
		}
		cfg.Workers = n
	}
	if raw := os.Getenv("FOODGRAPH_APPLICABILITY_THRESHOLD"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("invalid FOODGRAPH_APPLICABILITY_THRESHOLD %q", raw)
		}
		cfg.ApplicabilityThreshold = f
	}
	return cfg.withDefaults(), nil
}

// LoadFile reads a YAML config file and fills defaults for anything unset.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Config{ApplicabilityThreshold: DefaultApplicabilityThreshold}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ApplicabilityThreshold < 0 || cfg.ApplicabilityThreshold > 1 {
		return Config{}, fmt.Errorf("applicability_threshold must be within [0,1], got %v", cfg.ApplicabilityThreshold)
	}
	if cfg.Workers < 0 {
		return Config{}, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.RulesDir == "" {
		c.RulesDir = "./rules"
	}
	if c.Workers < 1 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}
