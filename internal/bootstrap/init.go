// Package bootstrap initializes a project for kickoff: the .kickoff/
// directory, a default config carrying the detected project facts, and
// .gitignore entries for kickoff's local files.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/detect"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

// Options configures the init process.
type Options struct {
	// WorkDir is the directory to initialize (default: current directory)
	WorkDir string

	// Force rewrites an existing config. State, markers and snapshots are kept.
	Force bool

	// Mode overrides the default execution mode written to the config.
	Mode config.ExecutionMode

	Logger *slog.Logger
}

// Result contains the results of initialization.
type Result struct {
	Duration   time.Duration
	Detection  *detect.Detection
	ConfigPath string
	// Reinitialized is set when an existing config was rewritten.
	Reinitialized bool
	// GitignoreUpdated is set when entries were appended to .gitignore.
	GitignoreUpdated bool
}

// Run initializes opts.WorkDir. It never prompts.
func Run(opts Options) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		opts.WorkDir = wd
	}
	absPath, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	paths := config.PathsFor(absPath)

	existed := config.IsInitialized(absPath)
	if existed && !opts.Force {
		return nil, kerrors.ErrAlreadyInitialized(paths.ConfigFile())
	}

	for _, dir := range []string{paths.Dir(), paths.MarkersDir(), paths.BackupsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	detection, err := detect.Detect(absPath)
	if err != nil {
		return nil, fmt.Errorf("detect project: %w", err)
	}

	cfg := config.Default()
	if existed {
		// Keep user settings; only the detected facts are refreshed.
		if prev, err := config.LoadFrom(paths.ConfigFile()); err == nil {
			cfg = prev
		} else {
			logger.Warn("existing config unreadable, writing defaults", "path", paths.ConfigFile(), "error", err)
		}
	}
	cfg.Project.Name = filepath.Base(absPath)
	if detection.Language != detect.ProjectTypeUnknown {
		cfg.Project.Language = string(detection.Language)
	}
	if opts.Mode != "" {
		cfg.Execution.Mode = opts.Mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.SaveTo(paths.ConfigFile()); err != nil {
		return nil, err
	}

	updated, err := updateGitignore(absPath)
	if err != nil {
		logger.Warn("could not update .gitignore", "error", err)
	}

	logger.Debug("project initialized", "dir", absPath, "language", detection.Language, "force", opts.Force)
	return &Result{
		Duration:         time.Since(start),
		Detection:        detection,
		ConfigPath:       paths.ConfigFile(),
		Reinitialized:    existed,
		GitignoreUpdated: updated,
	}, nil
}
