// Package config loads project-level settings from .dasa/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the project-relative directory holding dasa state.
	Dir = ".dasa"

	configFile = "config.yaml"

	// DefaultTimeoutSeconds bounds a single cell execution unless
	// overridden per invocation.
	DefaultTimeoutSeconds = 300
)

// defaultAmbientNames are names the interactive executor is known to
// provide outside of any cell: IPython conveniences and history bindings.
// References to these are never flagged as undefined.
var defaultAmbientNames = []string{
	"_", "__", "___", "_i", "_ii", "_iii",
	"In", "Out", "get_ipython", "display", "exit", "quit",
}

// Config holds project settings.
type Config struct {
	// AmbientNames extends the undefined-reference allow-list.
	AmbientNames []string `yaml:"ambient_names"`

	// TimeoutSeconds is the default per-cell execution timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Load reads .dasa/config.yaml under projectDir. A missing file yields
// defaults; a malformed file is an error.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{TimeoutSeconds: DefaultTimeoutSeconds}

	path := filepath.Join(projectDir, Dir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	return cfg, nil
}

// Allowlist returns the full ambient-name allow-list: defaults plus any
// configured extensions.
func (c *Config) Allowlist() map[string]bool {
	out := make(map[string]bool, len(defaultAmbientNames)+len(c.AmbientNames))
	for _, name := range defaultAmbientNames {
		out[name] = true
	}
	for _, name := range c.AmbientNames {
		if name != "" {
			out[name] = true
		}
	}
	return out
}
