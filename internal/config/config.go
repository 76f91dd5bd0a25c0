// Package config loads assetbuilder configuration from YAML or TOML.
//
// A missing configuration file is not an error: the built-in defaults describe
// the conventional src/ to build/ layout with html, styles, scripts, images and
// fonts tasks.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

// CurrentVersion is the configuration format version written by Init.
const CurrentVersion = "1"

// DefaultFiles are looked up in the working directory when no path is given.
var DefaultFiles = []string{"assetbuilder.yaml", "assetbuilder.yml", "assetbuilder.toml"}

// Config is the complete configuration.
type Config struct {
	Version   string                  `yaml:"version" toml:"version"`
	Paths     PathsConfig             `yaml:"paths" toml:"paths"`
	Runner    RunnerConfig            `yaml:"runner" toml:"runner"`
	Tasks     []TaskConfig            `yaml:"tasks" toml:"tasks"`
	Pipelines map[string]PipelineSpec `yaml:"pipelines" toml:"pipelines"`
	Watch     WatchConfig             `yaml:"watch" toml:"watch"`
	Server    ServerConfig            `yaml:"server" toml:"server"`
	Notify    NotifyConfig            `yaml:"notify" toml:"notify"`
	History   HistoryConfig           `yaml:"history" toml:"history"`
	Logging   LoggingConfig           `yaml:"logging" toml:"logging"`

	// path of the file the config was loaded from; empty for defaults
	source string
}

// PathsConfig locates the source and output roots. Relative paths are resolved
// against the directory of the configuration file.
type PathsConfig struct {
	Source string `yaml:"source" toml:"source"`
	Output string `yaml:"output" toml:"output"`
}

// RunnerConfig tunes the task runner.
type RunnerConfig struct {
	// MaxParallel caps workers per parallel composite; 0 means one per CPU.
	MaxParallel int `yaml:"max_parallel" toml:"max_parallel"`
}

// TaskConfig registers one task. The option record matching Kind is used.
type TaskConfig struct {
	Name   string          `yaml:"name" toml:"name"`
	Kind   transforms.Kind `yaml:"kind" toml:"kind"`
	Inputs []string        `yaml:"inputs" toml:"inputs"`
	// Output is relative to the output root.
	Output     string `yaml:"output" toml:"output"`
	LiveReload *bool  `yaml:"live_reload,omitempty" toml:"live_reload,omitempty"`

	transforms.Options `yaml:",inline"`
}

// LiveReloadEnabled reports the task's live-reload participation; it defaults to true.
func (t TaskConfig) LiveReloadEnabled() bool {
	return t.LiveReload == nil || *t.LiveReload
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Bindings []BindingConfig `yaml:"bindings" toml:"bindings"`
	Debounce time.Duration   `yaml:"debounce" toml:"debounce"`
	// CoalesceTargets runs a target once when several bindings sharing it match one change.
	CoalesceTargets bool          `yaml:"coalesce_targets" toml:"coalesce_targets"`
	RebuildInterval time.Duration `yaml:"rebuild_interval" toml:"rebuild_interval"`
	RebuildTarget   string        `yaml:"rebuild_target" toml:"rebuild_target"`
}

// BindingConfig maps source patterns to an entry point (task or pipeline name).
type BindingConfig struct {
	Name     string   `yaml:"name" toml:"name"`
	Patterns []string `yaml:"patterns" toml:"patterns"`
	Target   string   `yaml:"target" toml:"target"`
}

// ServerConfig configures the development server.
type ServerConfig struct {
	Host       string `yaml:"host" toml:"host"`
	Port       int    `yaml:"port" toml:"port"`
	LiveReload bool   `yaml:"live_reload" toml:"live_reload"`
	Metrics    bool   `yaml:"metrics" toml:"metrics"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// NotifyConfig configures reload event listeners.
type NotifyConfig struct {
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
	Manifest bool          `yaml:"manifest" toml:"manifest"`
	NATS     NATSConfig    `yaml:"nats" toml:"nats"`
}

// NATSConfig enables publishing reload events to NATS when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url" toml:"url"`
	Subject string `yaml:"subject" toml:"subject"`
}

// HistoryConfig configures the run journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads the configuration at path. An empty path tries DefaultFiles in the
// working directory and falls back to Default when none exists. .env files next
// to the configuration are loaded first and ${VAR} references are expanded.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, name := range DefaultFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	if path == "" {
		LoadEnvFiles(".")
		cfg := Default()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	LoadEnvFiles(filepath.Dir(path))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").WithContext("path", path).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read configuration file").WithContext("path", path).UserAction().Build()
	}

	cfg, err := Parse(path, []byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}
	cfg.source = path
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data as TOML when name ends in .toml and as YAML otherwise, then
// fills unset values from Default. Tasks, pipelines and watch bindings given in
// the file replace the defaults as a whole.
func Parse(name string, data []byte) (*Config, error) {
	var cfg Config
	cfg.prepareForDecode()
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "decode TOML configuration").WithContext("path", name).UserAction().Build()
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "decode YAML configuration").WithContext("path", name).UserAction().Build()
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Source returns the file the configuration was loaded from, or "".
func (c *Config) Source() string { return c.source }

// BaseDir is the directory relative paths are resolved against.
func (c *Config) BaseDir() string {
	if c.source == "" {
		return "."
	}
	return filepath.Dir(c.source)
}

// Resolve makes p absolute relative to BaseDir.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	abs, err := filepath.Abs(filepath.Join(c.BaseDir(), p))
	if err != nil {
		return filepath.Join(c.BaseDir(), p)
	}
	return abs
}

// SourceRoot returns the absolute source root.
func (c *Config) SourceRoot() string { return c.Resolve(c.Paths.Source) }

// OutputRoot returns the absolute output root.
func (c *Config) OutputRoot() string { return c.Resolve(c.Paths.Output) }

// Task returns the named task configuration.
func (c *Config) Task(name string) (TaskConfig, bool) {
	for _, t := range c.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskConfig{}, false
}
