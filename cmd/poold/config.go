// config.go - Configuration management for the controller and prover daemons
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"privacypool/internal/poolclient"
)

// Config represents the application configuration
type Config struct {
	Controller  ControllerConfig  `yaml:"controller"`
	Prover      ProverConfig      `yaml:"prover"`
	PoolService PoolServiceConfig `yaml:"pool_service"`
	Logging     LoggingConfig     `yaml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

type ControllerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	StorePath       string        `yaml:"store_path"`
	KeystorePath    string        `yaml:"keystore_path"`
	ProverURL       string        `yaml:"prover_url"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	ProofTimeout    time.Duration `yaml:"proof_timeout"`
	DialInterval    time.Duration `yaml:"dial_interval"`
	DialAttempts    int           `yaml:"dial_attempts"`
}

type ProverConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	KeyDir          string        `yaml:"key_dir"`
	ArtifactTimeout time.Duration `yaml:"artifact_timeout"`
	// ArtifactDir is the only directory file:// artifact URLs may point into.
	// Empty refuses file:// URLs.
	ArtifactDir string `yaml:"artifact_dir"`
}

type PoolServiceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	AuditFile string `yaml:"audit_file"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			ListenAddr:      "127.0.0.1:8080",
			StorePath:       "data/operations",
			KeystorePath:    "data/keystore.json",
			ProverURL:       "ws://127.0.0.1:8090/proof-channel",
			ApprovalTimeout: 5 * time.Minute,
			ProofTimeout:    10 * time.Minute,
			DialInterval:    200 * time.Millisecond,
			DialAttempts:    10,
		},
		Prover: ProverConfig{
			ListenAddr:      "127.0.0.1:8090",
			KeyDir:          "keys",
			ArtifactTimeout: time.Minute,
			ArtifactDir:     "artifacts",
		},
		PoolService: PoolServiceConfig{
			BaseURL: poolclient.DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "poold.log",
			AuditFile: "audit.log",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	raw, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, raw, 0644); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	return nil
}

// LoadEnv reads a .env file when present. Existing variables win.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from POOLD_* environment variables.
func (c *Config) ApplyEnv() error {
	strVars := map[string]*string{
		"POOLD_CONTROLLER_LISTEN": &c.Controller.ListenAddr,
		"POOLD_STORE_PATH":        &c.Controller.StorePath,
		"POOLD_KEYSTORE_PATH":     &c.Controller.KeystorePath,
		"POOLD_PROVER_URL":        &c.Controller.ProverURL,
		"POOLD_PROVER_LISTEN":     &c.Prover.ListenAddr,
		"POOLD_KEY_DIR":           &c.Prover.KeyDir,
		"POOLD_ARTIFACT_DIR":      &c.Prover.ArtifactDir,
		"POOLD_POOL_SERVICE_URL":  &c.PoolService.BaseURL,
		"POOLD_LOG_LEVEL":         &c.Logging.Level,
		"POOLD_LOG_FILE":          &c.Logging.File,
		"POOLD_AUDIT_FILE":        &c.Logging.AuditFile,
	}
	for name, dst := range strVars {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	durVars := map[string]*time.Duration{
		"POOLD_APPROVAL_TIMEOUT": &c.Controller.ApprovalTimeout,
		"POOLD_PROOF_TIMEOUT":    &c.Controller.ProofTimeout,
	}
	for name, dst := range durVars {
		if v, ok := os.LookupEnv(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = d
		}
	}

	if v, ok := os.LookupEnv("POOLD_RATE_LIMIT_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("POOLD_RATE_LIMIT_RPS: %w", err)
		}
		c.RateLimit.RequestsPerSecond = rps
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Controller.ListenAddr == "" {
		return fmt.Errorf("controller.listen_addr is required")
	}
	if c.Controller.StorePath == "" {
		return fmt.Errorf("controller.store_path is required")
	}
	if c.Controller.ProverURL == "" {
		return fmt.Errorf("controller.prover_url is required")
	}
	if c.Controller.ApprovalTimeout <= 0 {
		return fmt.Errorf("controller.approval_timeout must be positive")
	}
	if c.Controller.ProofTimeout <= 0 {
		return fmt.Errorf("controller.proof_timeout must be positive")
	}
	if c.Controller.DialInterval <= 0 {
		return fmt.Errorf("controller.dial_interval must be positive")
	}
	if c.Controller.DialAttempts <= 0 {
		return fmt.Errorf("controller.dial_attempts must be positive")
	}
	if c.Prover.ListenAddr == "" {
		return fmt.Errorf("prover.listen_addr is required")
	}
	if c.Prover.KeyDir == "" {
		return fmt.Errorf("prover.key_dir is required")
	}
	if c.PoolService.BaseURL == "" {
		return fmt.Errorf("pool_service.base_url is required")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst must be positive")
	}
	return nil
}
