package prismdb

import (
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/exec"
	"github.com/turingworks/prismdb/internal/vector"
)

// NullOrder selects where NULLs sort by default.
type NullOrder string

const (
	NullOrderFirst NullOrder = "first"
	NullOrderLast  NullOrder = "last"
)

// Config consolidates engine settings.
type Config struct {
	Execution ExecutionConfig `json:"execution" toml:"execution"`
	Storage   StorageConfig   `json:"storage" toml:"storage"`
	Logging   LoggingConfig   `json:"logging" toml:"logging"`
}

// ExecutionConfig contains query execution settings.
type ExecutionConfig struct {
	// Threads is the worker count; defaults to the logical core count.
	Threads int `json:"threads" toml:"threads"`
	// VectorSize is fixed at 2048 and validated for completeness.
	VectorSize int `json:"vectorSize" toml:"vector_size"`
	// MorselSize is the parallel work-unit granularity in rows.
	MorselSize int `json:"morselSize" toml:"morsel_size"`
	// MemoryLimit caps operator memory in bytes; 0 disables the cap.
	MemoryLimit int64 `json:"memoryLimit" toml:"memory_limit"`
	// DefaultNullOrder applies when ORDER BY omits NULLS FIRST/LAST.
	DefaultNullOrder NullOrder `json:"defaultNullOrder" toml:"default_null_order"`
}

// StorageConfig contains storage settings.
type StorageConfig struct {
	// TempDirectory is reserved for spill support.
	TempDirectory string `json:"tempDirectory" toml:"temp_directory"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `json:"level" toml:"level"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Execution: ExecutionConfig{
			Threads:          runtime.NumCPU(),
			VectorSize:       vector.Size,
			MorselSize:       exec.DefaultMorselSize,
			DefaultNullOrder: NullOrderLast,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errorx.IOf("load config %s", path).WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c *Config) Validate() error {
	if c.Execution.Threads < 1 {
		return errorx.Parsef("threads must be at least 1, got %d", c.Execution.Threads)
	}
	if c.Execution.VectorSize != vector.Size {
		return errorx.Parsef("vector_size must be %d, got %d", vector.Size, c.Execution.VectorSize)
	}
	if c.Execution.MorselSize < vector.Size {
		return errorx.Parsef("morsel_size must be at least %d, got %d", vector.Size, c.Execution.MorselSize)
	}
	switch c.Execution.DefaultNullOrder {
	case NullOrderFirst, NullOrderLast:
	default:
		return errorx.Parsef("default_null_order must be first or last, got %q", c.Execution.DefaultNullOrder)
	}
	return nil
}
