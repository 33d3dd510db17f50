package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// FileName is the optional config file read from the working directory
	FileName = "uptodate.toml"
	// EnvPrefix prefixes environment overrides, e.g. UPTODATE_PORT=9090
	EnvPrefix = "UPTODATE_"
)

// Config holds all configuration for the application
type Config struct {
	Project    string `koanf:"project"`  // path to the project manifest
	Action     string `koanf:"action"`   // build action to check
	Enabled    bool   `koanf:"enabled"`  // false answers every check with "not up to date"
	Serve      bool   `koanf:"serve"`    // run the HTTP API instead of a one-shot check
	Port       int    `koanf:"port"`     // HTTP API port
	Watch      bool   `koanf:"watch"`    // reload the manifest on change
	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	JSON       bool   `koanf:"json"`     // JSON log output
	DebounceMs int    `koanf:"debounce"` // quiet period before a reload
	MaxWaitMs  int    `koanf:"maxwait"`  // upper bound on reload delay under constant change
	Prime      bool   `koanf:"prime"`    // run a silent check first to establish the item baseline
}

// Debounce returns the reload quiet period
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// MaxWait returns the longest a reload may be postponed
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

// Defaults are the lowest configuration layer
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"project":   "project.toml",
		"action":    "Build",
		"enabled":   true,
		"serve":     false,
		"port":      8080,
		"watch":     false,
		"verbosity": "",
		"verbose":   0,
		"json":      false,
		"debounce":  200,
		"maxwait":   2000,
		"prime":     false,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(FileName, f)
}

// LoadFile is Load with an explicit config file path
func LoadFile(path string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// A missing file is fine; a broken one is not
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DebounceMs < 0 || c.MaxWaitMs < 0 {
		return fmt.Errorf("debounce and maxwait must not be negative")
	}
	if c.Project == "" {
		return fmt.Errorf("no project manifest configured")
	}
	return nil
}

// mapProvider serves a static map as a koanf provider
type mapProvider map[string]interface{}

func (p mapProvider) Read() (map[string]interface{}, error) {
	return p, nil
}

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("not implemented")
}
