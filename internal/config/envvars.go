package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"KICKOFF_CATALOG":         "catalog",
	"KICKOFF_TASKS_DIR":       "tasks_dir",
	"KICKOFF_PROJECT_NAME":    "project.name",
	"KICKOFF_MODE":            "execution.mode",
	"KICKOFF_PRESCAN_TIMEOUT": "execution.prescan_timeout",
	"KICKOFF_SHELL":           "execution.shell",
	"KICKOFF_BACKUP_KEEP":     "backup.keep",
	"KICKOFF_LOG_LEVEL":       "logging.level",
	"KICKOFF_LOG_FORMAT":      "logging.format",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns the config paths that were overridden, sorted.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string
	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		if SetValue(tc.Config, configPath, value) {
			tc.SetSource(configPath, SourceEnv, "")
			overridden = append(overridden, configPath)
		}
	}
	sort.Strings(overridden)
	return overridden
}

// SetValue parses a string value into the field at path.
// Returns false if the path is unknown or the value does not parse.
func SetValue(cfg *Config, path string, value string) bool {
	switch path {
	case "catalog":
		cfg.Catalog = value
	case "tasks_dir":
		cfg.TasksDir = value
	case "project.name":
		cfg.Project.Name = value
	case "project.language":
		cfg.Project.Language = value
	case "execution.mode":
		cfg.Execution.Mode = ExecutionMode(value)
	case "execution.prescan_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		cfg.Execution.PrescanTimeout = d
	case "execution.shell":
		cfg.Execution.Shell = value
	case "backup.keep":
		v, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.Backup.Keep = v
	case "backup.include":
		cfg.Backup.Include = nil
		for _, pattern := range strings.Split(value, ",") {
			if pattern = strings.TrimSpace(pattern); pattern != "" {
				cfg.Backup.Include = append(cfg.Backup.Include, pattern)
			}
		}
	case "logging.level":
		cfg.Logging.Level = strings.ToLower(value)
	case "logging.format":
		cfg.Logging.Format = strings.ToLower(value)
	default:
		return false
	}
	return true
}

// Value formats the field at path for display. Unknown paths return "".
func Value(cfg *Config, path string) string {
	switch path {
	case "version":
		return strconv.Itoa(cfg.Version)
	case "catalog":
		return cfg.Catalog
	case "tasks_dir":
		return cfg.TasksDir
	case "project.name":
		return cfg.Project.Name
	case "project.language":
		return cfg.Project.Language
	case "execution.mode":
		return string(cfg.Execution.Mode)
	case "execution.prescan_timeout":
		return cfg.Execution.PrescanTimeout.String()
	case "execution.shell":
		return cfg.Execution.Shell
	case "backup.keep":
		return strconv.Itoa(cfg.Backup.Keep)
	case "backup.include":
		return strings.Join(cfg.Backup.Include, ",")
	case "logging.level":
		return cfg.Logging.Level
	case "logging.format":
		return cfg.Logging.Format
	}
	return ""
}
