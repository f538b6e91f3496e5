package config

import "fmt"

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates a built-in default value.
	SourceDefault ConfigSource = "default"
	// SourceUser indicates the user config ($KICKOFF_HOME/config.yaml).
	SourceUser ConfigSource = "user"
	// SourceProject indicates the project config (.kickoff/config.yaml).
	SourceProject ConfigSource = "project"
	// SourceEnv indicates an environment variable override.
	SourceEnv ConfigSource = "env"
	// SourceFlag indicates a CLI flag override.
	SourceFlag ConfigSource = "flag"
)

// TrackedSource contains both the source type and the file path.
type TrackedSource struct {
	Source ConfigSource
	Path   string // File path or empty for defaults/env/flags
}

// String returns a human-readable source description.
func (ts TrackedSource) String() string {
	if ts.Path == "" {
		return string(ts.Source)
	}
	return fmt.Sprintf("%s: %s", ts.Source, ts.Path)
}

// TrackedConfig wraps a Config with source tracking.
type TrackedConfig struct {
	// Config is the merged configuration.
	Config *Config

	// Sources maps config paths to their full source info.
	// Examples: "execution.mode" -> {env}, "catalog" -> {project: .kickoff/config.yaml}
	Sources map[string]TrackedSource
}

// NewTrackedConfig creates a new TrackedConfig with defaults.
func NewTrackedConfig() *TrackedConfig {
	tc := &TrackedConfig{
		Config:  Default(),
		Sources: make(map[string]TrackedSource),
	}
	for _, path := range configPaths {
		tc.SetSource(path, SourceDefault, "")
	}
	return tc
}

// SetSource records the source and file path for a config path.
func (tc *TrackedConfig) SetSource(path string, source ConfigSource, filePath string) {
	tc.Sources[path] = TrackedSource{Source: source, Path: filePath}
}

// GetSource returns the source for a config path.
// Returns SourceDefault if no source is recorded.
func (tc *TrackedConfig) GetSource(path string) ConfigSource {
	if ts, ok := tc.Sources[path]; ok {
		return ts.Source
	}
	return SourceDefault
}

// GetTrackedSource returns the full source info for a config path.
func (tc *TrackedConfig) GetTrackedSource(path string) TrackedSource {
	if ts, ok := tc.Sources[path]; ok {
		return ts
	}
	return TrackedSource{Source: SourceDefault}
}

// configPaths lists every dotted key the loader knows about.
var configPaths = []string{
	"version", "catalog", "tasks_dir",
	"project.name", "project.language",
	"execution.mode", "execution.prescan_timeout", "execution.shell",
	"backup.keep", "backup.include",
	"logging.level", "logging.format",
}

// ConfigPaths returns the known config keys in display order.
func ConfigPaths() []string {
	out := make([]string, len(configPaths))
	copy(out, configPaths)
	return out
}
