package svm

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
)

// Config holds the runtime configuration.
type Config struct {
	// ComputeUnitLimit overrides the per-transaction compute limit when no
	// compute budget instruction sets one. Zero derives the limit from the
	// instruction count.
	ComputeUnitLimit uint64 `yaml:"compute_unit_limit"`

	// LamportsPerSignature is the base fee per transaction signature.
	LamportsPerSignature uint64 `yaml:"lamports_per_signature"`

	// SigVerify enables transaction signature verification.
	SigVerify bool `yaml:"sig_verify"`

	// BlockhashCheck rejects transactions whose blockhash is not recent.
	BlockhashCheck bool `yaml:"blockhash_check"`

	// LamportsPerByteYear and ExemptionThreshold define rent exemption:
	// (128 + data_len) * LamportsPerByteYear * ExemptionThreshold.
	LamportsPerByteYear uint64 `yaml:"lamports_per_byte_year"`
	ExemptionThreshold  uint64 `yaml:"exemption_threshold"`

	// LogLevel is the zerolog level name for the runtime logger.
	LogLevel string `yaml:"log_level"`

	// Storage selects the accounts database backend.
	Storage StorageConfig `yaml:"storage"`

	// History selects the transaction history store.
	History HistoryConfig `yaml:"history"`
}

// StorageConfig selects the accounts database backend.
type StorageConfig struct {
	// Backend is "memory" or "badger".
	Backend string `yaml:"backend"`

	// Path is the badger directory. Empty keeps badger in memory.
	Path string `yaml:"path"`
}

// HistoryConfig selects the transaction history store.
type HistoryConfig struct {
	// Path is a bbolt database file. Empty keeps history in memory.
	Path string `yaml:"path"`
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		LamportsPerSignature: 5000,
		SigVerify:            true,
		BlockhashCheck:       true,
		LamportsPerByteYear:  3480,
		ExemptionThreshold:   2,
		LogLevel:             "info",
		Storage: StorageConfig{
			Backend: StorageMemory,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMemory, StorageBadger:
	default:
		return fmt.Errorf("invalid storage backend %q", c.Storage.Backend)
	}
	if c.ComputeUnitLimit > CUMax {
		return fmt.Errorf("compute unit limit %d exceeds maximum %d", c.ComputeUnitLimit, CUMax)
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
		}
	}
	return nil
}
