package config

import (
	"fmt"
	"math"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for canonform-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values. Secrets (API keys,
// database passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3780"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Canonical schema catalog
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH" env-default:"canonical_schema.yaml"`

	// Tenant sample data directory (one subdirectory per tenant, CSV per table)
	SamplesDir string `yaml:"samples_dir" env:"SAMPLES_DIR" env-default:"tenant_samples"`

	// Scoring weights and decision thresholds
	Scoring ScoringConfig `yaml:"scoring"`

	// Column profiling limits
	Profiling ProfilingConfig `yaml:"profiling"`

	// Proposal Source (LLM) configuration
	LLM LLMConfig `yaml:"llm"`

	// Database configuration (PostgreSQL mapping store)
	Database DatabaseConfig `yaml:"database"`
}

// ScoringConfig holds the resolver's scoring weights and thresholds.
// Weights must sum to 1.0; thresholds must satisfy hitl <= auto_accept.
// Validated once at load time, never re-validated per call.
type ScoringConfig struct {
	WeightLLM     float64 `yaml:"weight_llm" env:"WEIGHT_LLM" env-default:"0.5"`
	WeightName    float64 `yaml:"weight_name" env:"WEIGHT_NAME" env-default:"0.2"`
	WeightType    float64 `yaml:"weight_type" env:"WEIGHT_TYPE" env-default:"0.2"`
	WeightProfile float64 `yaml:"weight_profile" env:"WEIGHT_PROFILE" env-default:"0.1"`

	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold" env:"AUTO_ACCEPT_THRESHOLD" env-default:"0.75"`
	HITLThreshold       float64 `yaml:"hitl_threshold" env:"HITL_THRESHOLD" env-default:"0.5"`

	// HeuristicFloor is the minimum heuristic-only score required to surface
	// a mapping for review when the Proposal Source returned no candidates.
	HeuristicFloor float64 `yaml:"heuristic_floor" env:"HEURISTIC_FLOOR" env-default:"0.6"`
}

// DefaultScoringConfig returns the scoring defaults used when no
// configuration file overrides them.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		WeightLLM:           0.5,
		WeightName:          0.2,
		WeightType:          0.2,
		WeightProfile:       0.1,
		AutoAcceptThreshold: 0.75,
		HITLThreshold:       0.5,
		HeuristicFloor:      0.6,
	}
}

// ProfilingConfig bounds what the profiler collects per column.
type ProfilingConfig struct {
	MaxSampleValues       int `yaml:"max_sample_values" env:"MAX_SAMPLE_VALUES" env-default:"10"`
	MaxCooccurringColumns int `yaml:"max_cooccurring_columns" env:"MAX_COOCCURRING_COLUMNS" env-default:"5"`
}

// LLMConfig holds Proposal Source endpoint configuration.
type LLMConfig struct {
	// Provider selects the client implementation: "openai", "anthropic", "mock".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`

	Endpoint    string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`

	// MaxConcurrent bounds parallel proposal calls in batch resolution.
	MaxConcurrent int `yaml:"max_concurrent" env:"LLM_MAX_CONCURRENT" env-default:"4"`
}

// DatabaseConfig holds PostgreSQL mapping store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"canonform"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"canonform_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}

	return cfg, nil
}

// weightSumTolerance is the floating-point tolerance for the weights-sum-to-one check.
const weightSumTolerance = 1e-9

// Validate checks the scoring weight and threshold invariants.
func (c *ScoringConfig) Validate() error {
	for name, w := range map[string]float64{
		"weight_llm":     c.WeightLLM,
		"weight_name":    c.WeightName,
		"weight_type":    c.WeightType,
		"weight_profile": c.WeightProfile,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, w)
		}
	}

	sum := c.WeightLLM + c.WeightName + c.WeightType + c.WeightProfile
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("scoring weights must sum to 1.0, got %v", sum)
	}

	if c.AutoAcceptThreshold < 0 || c.AutoAcceptThreshold > 1 {
		return fmt.Errorf("auto_accept_threshold must be in [0,1], got %v", c.AutoAcceptThreshold)
	}
	if c.HITLThreshold < 0 || c.HITLThreshold > 1 {
		return fmt.Errorf("hitl_threshold must be in [0,1], got %v", c.HITLThreshold)
	}
	if c.HITLThreshold > c.AutoAcceptThreshold {
		return fmt.Errorf("hitl_threshold (%v) must not exceed auto_accept_threshold (%v)",
			c.HITLThreshold, c.AutoAcceptThreshold)
	}
	if c.HeuristicFloor < 0 || c.HeuristicFloor > 1 {
		return fmt.Errorf("heuristic_floor must be in [0,1], got %v", c.HeuristicFloor)
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
