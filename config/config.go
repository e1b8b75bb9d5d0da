// Package config handles corevm.toml runtime configuration: a TOML
// file with defaulted sections, loaded once at startup and handed to
// runtime.New.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is a runtime instance's full tunable surface: memory limits, GC
// scheduling, and lexer options.
type Config struct {
	Memory MemoryConfig `toml:"memory"`
	GC     GCConfig     `toml:"gc"`
	Lexer  LexerConfig  `toml:"lexer"`

	// Dir is the directory the config file was loaded from, if any.
	Dir string `toml:"-"`
}

// MemoryConfig configures package mem's allocator-facing behavior.
type MemoryConfig struct {
	// MaxBytes caps TrueUsage before every allocation fails (and
	// EmergencyCollect is tried) regardless of what the embedder's
	// allocator would otherwise permit. Zero means unlimited.
	MaxBytes int64 `toml:"max-bytes"`
}

// GCConfig mirrors the collector's tunable parameters.
type GCConfig struct {
	Mode         string `toml:"mode"` // "incremental" or "generational"
	Pause        int    `toml:"pause"`
	StepMul      int    `toml:"step-mul"`
	StepSizeLog2 int    `toml:"step-size-log2"`
	MinorMul     int    `toml:"minor-mul"`
	MajorMul     int    `toml:"major-mul"`
}

// LexerConfig configures package lexer's escape-sequence handling.
type LexerConfig struct {
	// MaxCodepoint bounds \u{...} escapes. Defaults to 0x10FFFF (valid
	// Unicode); set to 0x7FFFFFFF to opt into the reference
	// implementation's wider (non-Unicode-validating) ceiling.
	MaxCodepoint int64 `toml:"max-codepoint"`
}

// Default returns a Config with every field set to the runtime's
// built-in defaults.
func Default() Config {
	return Config{
		GC: GCConfig{
			Mode:         "incremental",
			Pause:        200,
			StepMul:      100,
			StepSizeLog2: 13,
			MinorMul:     20,
			MajorMul:     100,
		},
		Lexer: LexerConfig{
			MaxCodepoint: 0x10FFFF,
		},
	}
}

// Load parses corevm.toml from dir, filling in any field the file
// leaves unset with Default's value.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "corevm.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	return Parse(data, dir)
}

// Parse decodes TOML bytes directly, for embedders that keep their
// configuration somewhere other than a corevm.toml file on disk.
func Parse(data []byte, dir string) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse error: %w", err)
	}
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("config: cannot resolve path %s: %w", dir, err)
		}
		cfg.Dir = abs
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in any zero-valued field TOML decoding left
// unset.
func (c *Config) applyDefaults() {
	d := Default()
	if c.GC.Mode == "" {
		c.GC.Mode = d.GC.Mode
	}
	if c.GC.Pause == 0 {
		c.GC.Pause = d.GC.Pause
	}
	if c.GC.StepMul == 0 {
		c.GC.StepMul = d.GC.StepMul
	}
	if c.GC.StepSizeLog2 == 0 {
		c.GC.StepSizeLog2 = d.GC.StepSizeLog2
	}
	if c.GC.MinorMul == 0 {
		c.GC.MinorMul = d.GC.MinorMul
	}
	if c.GC.MajorMul == 0 {
		c.GC.MajorMul = d.GC.MajorMul
	}
	if c.Lexer.MaxCodepoint == 0 {
		c.Lexer.MaxCodepoint = d.Lexer.MaxCodepoint
	}
}

// FindAndLoad walks up from startDir looking for a corevm.toml file.
// Returns Default() with no error if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, "corevm.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			cfg := Default()
			return &cfg, nil
		}
		dir = parent
	}
}
