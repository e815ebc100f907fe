// Package config handles symtrace.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name Load and FindAndLoad look for.
const FileName = "symtrace.toml"

// Config represents a symtrace.toml file.
type Config struct {
	Trace   Trace   `toml:"trace"`
	Log     Log     `toml:"log"`
	Journal Journal `toml:"journal"`

	// Dir is the directory containing the symtrace.toml file (set at load time).
	Dir string `toml:"-"`
}

// Trace configures translation.
type Trace struct {
	Strict         bool     `toml:"strict"`
	HotThreshold   uint64   `toml:"hot-threshold"`
	MaxInlineDepth int      `toml:"max-inline-depth"`
	BreakGraph     bool     `toml:"break-graph"`
	Skip           []string `toml:"skip"`
}

// Log configures logging.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Journal configures the translation journal. An empty path disables it.
type Journal struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Trace: Trace{
			HotThreshold:   1,
			MaxInlineDepth: 64,
			BreakGraph:     true,
		},
	}
}

// Load parses a symtrace.toml file from the given directory. Keys missing
// from the file keep their defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse error in %s: %w", path, err)
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("config: cannot resolve path %s: %w", dir, err)
	}
	if c.Journal.Path != "" && !filepath.IsAbs(c.Journal.Path) {
		c.Journal.Path = filepath.Join(c.Dir, c.Journal.Path)
	}
	return c, nil
}

// Parse decodes TOML over the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys %s", strings.Join(keys, ", "))
	}
	if c.Trace.MaxInlineDepth < 0 {
		return nil, fmt.Errorf("trace.max-inline-depth must not be negative")
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a symtrace.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ApplyEnv overrides settings from SYMTRACE_STRICT and SYMTRACE_LOG_LEVEL.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("SYMTRACE_STRICT"); ok && v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SYMTRACE_STRICT: %w", err)
		}
		c.Trace.Strict = strict
	}
	if v, ok := os.LookupEnv("SYMTRACE_LOG_LEVEL"); ok && v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SYMTRACE_LOG_LEVEL: %w", err)
		}
		c.Log.Verbosity = level
	}
	return nil
}

// Skipped reports whether code with the given name is never translated.
func (c *Config) Skipped(name string) bool {
	for _, s := range c.Trace.Skip {
		if s == name {
			return true
		}
	}
	return false
}
