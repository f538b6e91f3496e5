package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration for the project at root with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config ($KICKOFF_HOME/config.yaml) - optional
//  3. Project config (<root>/.kickoff/config.yaml)
//  4. Environment variables (KICKOFF_*)
//
// CLI flags are applied afterwards by the caller with SourceFlag.
func LoadWithSources(root string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	userPath := filepath.Join(HomeDir(), ConfigFileName)
	if _, err := os.Stat(userPath); err == nil {
		if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
			slog.Warn("failed to load user config", "path", userPath, "error", err)
		}
	}

	projectPath := PathsFor(root).ConfigFile()
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
			return nil, err // project config errors are fatal
		}
	}

	ApplyEnvVars(tc)

	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// mergeFromFile merges configuration from a file into tc.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// The raw map tells us which keys the file actually sets.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fileCfg := Default()
	if err := yaml.Unmarshal(data, fileCfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for _, key := range setKeys(raw, "") {
		if copyField(tc.Config, fileCfg, key) {
			tc.SetSource(key, source, path)
		}
	}
	return nil
}

// setKeys flattens a decoded YAML document into dotted keys.
func setKeys(raw map[string]any, prefix string) []string {
	var keys []string
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			keys = append(keys, setKeys(nested, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// copyField copies a single dotted key from src into dst.
// Returns false for unknown keys.
func copyField(dst, src *Config, key string) bool {
	switch key {
	case "version":
		dst.Version = src.Version
	case "catalog":
		dst.Catalog = src.Catalog
	case "tasks_dir":
		dst.TasksDir = src.TasksDir
	case "project.name":
		dst.Project.Name = src.Project.Name
	case "project.language":
		dst.Project.Language = src.Project.Language
	case "execution.mode":
		dst.Execution.Mode = src.Execution.Mode
	case "execution.prescan_timeout":
		dst.Execution.PrescanTimeout = src.Execution.PrescanTimeout
	case "execution.shell":
		dst.Execution.Shell = src.Execution.Shell
	case "backup.keep":
		dst.Backup.Keep = src.Backup.Keep
	case "backup.include":
		dst.Backup.Include = append([]string(nil), src.Backup.Include...)
	case "logging.level":
		dst.Logging.Level = strings.ToLower(src.Logging.Level)
	case "logging.format":
		dst.Logging.Format = strings.ToLower(src.Logging.Format)
	default:
		slog.Debug("ignoring unknown config key", "key", key)
		return false
	}
	return true
}
