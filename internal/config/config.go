// Package config provides configuration management for kickoff.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	kerrors "github.com/randalmurphal/kickoff/internal/errors"
	"github.com/randalmurphal/kickoff/internal/util"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// KickoffDir is the per-project state directory
	KickoffDir = ".kickoff"
	// StateFileName is the state document inside KickoffDir
	StateFileName = "state.yaml"
	// MarkersDirName holds one completion marker per task
	MarkersDirName = "markers"
	// BackupsDirName holds snapshots
	BackupsDirName = "backups"
	// PIDFileName is the run guard file
	PIDFileName = "run.pid"

	// HomeEnvVar overrides the user-level kickoff directory (~/.kickoff).
	HomeEnvVar = "KICKOFF_HOME"
)

// ExecutionMode controls how the engine treats each task.
type ExecutionMode string

const (
	// ModeConfirm asks before each task.
	ModeConfirm ExecutionMode = "confirm"
	// ModeAutoApprove runs every task without asking.
	ModeAutoApprove ExecutionMode = "auto-approve"
	// ModeDryRun records intended filesystem changes without applying them.
	ModeDryRun ExecutionMode = "dry-run"
)

// Valid reports whether m is a known mode.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeConfirm, ModeAutoApprove, ModeDryRun:
		return true
	}
	return false
}

// ProjectConfig describes the project being bootstrapped.
type ProjectConfig struct {
	Name     string `yaml:"name,omitempty"`
	Language string `yaml:"language,omitempty"`
}

// ExecutionConfig defines engine behavior.
type ExecutionConfig struct {
	// Mode is the default mode when no flag is given (default: confirm)
	Mode ExecutionMode `yaml:"mode"`
	// PrescanTimeout bounds the wait for the catalog pre-scan before the menu renders
	PrescanTimeout time.Duration `yaml:"prescan_timeout"`
	// Shell runs implementations that are not executable (*.sh files)
	Shell string `yaml:"shell"`
}

// BackupConfig defines snapshot behavior.
type BackupConfig struct {
	// Keep is the number of snapshots retained by 'backup prune' when no --keep is given
	Keep int `yaml:"keep"`
	// Include adds glob patterns to the built-in critical file set
	Include []string `yaml:"include,omitempty"`
}

// LoggingConfig defines slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the kickoff configuration.
type Config struct {
	// Version is the config file version
	Version int `yaml:"version"`

	// Catalog is the task catalog path. Empty means $KICKOFF_HOME/catalog.yaml.
	Catalog string `yaml:"catalog,omitempty"`

	// TasksDir holds task implementations. Empty means $KICKOFF_HOME/tasks.
	TasksDir string `yaml:"tasks_dir,omitempty"`

	Project   ProjectConfig   `yaml:"project"`
	Execution ExecutionConfig `yaml:"execution"`
	Backup    BackupConfig    `yaml:"backup"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Execution: ExecutionConfig{
			Mode:           ModeConfirm,
			PrescanTimeout: 2 * time.Second,
			Shell:          "sh",
		},
		Backup: BackupConfig{
			Keep: 10,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Validate checks field values that the loader cannot check by type.
func (c *Config) Validate() error {
	if !c.Execution.Mode.Valid() {
		return kerrors.ErrConfigInvalid("execution.mode",
			fmt.Sprintf("%q is not one of confirm, auto-approve, dry-run", c.Execution.Mode))
	}
	if c.Execution.PrescanTimeout < 0 {
		return kerrors.ErrConfigInvalid("execution.prescan_timeout", "must not be negative")
	}
	if c.Backup.Keep < 0 {
		return kerrors.ErrConfigInvalid("backup.keep", "must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return kerrors.ErrConfigInvalid("logging.level",
			fmt.Sprintf("%q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return kerrors.ErrConfigInvalid("logging.format", fmt.Sprintf("%q is not text or json", c.Logging.Format))
	}
	return nil
}

// HomeDir returns the user-level kickoff directory ($KICKOFF_HOME or ~/.kickoff).
func HomeDir() string {
	if dir := os.Getenv(HomeEnvVar); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return KickoffDir
	}
	return filepath.Join(home, KickoffDir)
}

// CatalogPath resolves the catalog location relative to the project root.
func (c *Config) CatalogPath(root string) string {
	return resolvePath(root, c.Catalog, filepath.Join(HomeDir(), "catalog.yaml"))
}

// TasksPath resolves the task implementation directory relative to the project root.
func (c *Config) TasksPath(root string) string {
	return resolvePath(root, c.TasksDir, filepath.Join(HomeDir(), "tasks"))
}

func resolvePath(root, value, fallback string) string {
	if value == "" {
		return fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(root, value)
}

// Paths locates the files kickoff keeps under a project root.
type Paths struct {
	Root string
}

// PathsFor returns the layout rooted at dir.
func PathsFor(root string) Paths {
	return Paths{Root: root}
}

// Dir is <root>/.kickoff.
func (p Paths) Dir() string { return filepath.Join(p.Root, KickoffDir) }

// ConfigFile is <root>/.kickoff/config.yaml.
func (p Paths) ConfigFile() string { return filepath.Join(p.Dir(), ConfigFileName) }

// StateFile is <root>/.kickoff/state.yaml.
func (p Paths) StateFile() string { return filepath.Join(p.Dir(), StateFileName) }

// MarkersDir is <root>/.kickoff/markers.
func (p Paths) MarkersDir() string { return filepath.Join(p.Dir(), MarkersDirName) }

// BackupsDir is <root>/.kickoff/backups.
func (p Paths) BackupsDir() string { return filepath.Join(p.Dir(), BackupsDirName) }

// PIDFile is <root>/.kickoff/run.pid.
func (p Paths) PIDFile() string { return filepath.Join(p.Dir(), PIDFileName) }

// LoadFrom loads the config from a specific path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveTo saves the config to a specific path.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// IsInitialized returns true if the project at root has a config file.
func IsInitialized(root string) bool {
	return util.FileExists(PathsFor(root).ConfigFile())
}

// RequireInit returns an error if kickoff is not initialized at root.
func RequireInit(root string) error {
	if !IsInitialized(root) {
		return kerrors.ErrNotInitialized(root)
	}
	return nil
}
