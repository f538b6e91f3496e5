package cli

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"

	"github.com/randalmurphal/kickoff/internal/backup"
	"github.com/randalmurphal/kickoff/internal/builtin"
	"github.com/randalmurphal/kickoff/internal/config"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
	"github.com/randalmurphal/kickoff/internal/registry"
	"github.com/randalmurphal/kickoff/internal/runner"
)

// app holds the global flags and I/O of one invocation.
type app struct {
	root        string
	configFile  string
	catalogPath string
	tasksDir    string
	verbose     bool
	quiet       bool
	jsonOut     bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// interactive reports whether prompts and menus can be shown.
	interactive func() bool

	v      *viper.Viper
	logger *slog.Logger
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		v:      viper.New(),
		logger: slog.Default(),
	}
	a.v.SetEnvPrefix("KICKOFF")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	a.interactive = func() bool { return isTerminal(a.stdin) && isTerminal(a.stdout) }
	return a
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newLogger(w io.Writer, level, format string, verbose bool) *slog.Logger {
	lvl := slog.LevelWarn
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig layers defaults, user config, project config, env vars, the
// --config file and finally flags.
func (a *app) loadConfig() (*config.TrackedConfig, error) {
	tc, err := config.LoadWithSources(a.root)
	if err != nil {
		return nil, err
	}
	if a.configFile != "" {
		if err := a.mergeConfigFile(tc); err != nil {
			return nil, err
		}
	}
	if a.catalogPath != "" {
		tc.Config.Catalog = a.catalogPath
		tc.SetSource("catalog", config.SourceFlag, "")
	}
	if a.tasksDir != "" {
		tc.Config.TasksDir = a.tasksDir
		tc.SetSource("tasks_dir", config.SourceFlag, "")
	}
	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	a.logger = newLogger(a.stderr, tc.Config.Logging.Level, tc.Config.Logging.Format, a.verbose)
	return tc, nil
}

func (a *app) mergeConfigFile(tc *config.TrackedConfig) error {
	fv := viper.New()
	fv.SetConfigFile(a.configFile)
	if err := fv.ReadInConfig(); err != nil {
		return kerrors.ErrConfigInvalid("--config", err.Error())
	}
	for _, key := range config.ConfigPaths() {
		if !fv.IsSet(key) {
			continue
		}
		value := fv.GetString(key)
		if key == "backup.include" {
			value = strings.Join(fv.GetStringSlice(key), ",")
		}
		if config.SetValue(tc.Config, key, value) {
			tc.SetSource(key, config.SourceFlag, a.configFile)
		}
	}
	return nil
}

// project bundles the components commands share.
type project struct {
	cfg      *config.Config
	paths    config.Paths
	runner   *runner.Runner
	registry *registry.Registry
	backups  *backup.Manager
}

func (a *app) openProject() (*project, error) {
	tc, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := tc.Config
	paths := config.PathsFor(a.root)

	builtins := runner.NewBuiltins()
	builtin.Register(builtins)
	locator := &runner.Locator{Dir: cfg.TasksPath(a.root), Builtins: builtins}

	return &project{
		cfg:   cfg,
		paths: paths,
		runner: runner.New(locator,
			runner.WithShell(cfg.Execution.Shell),
			runner.WithOutput(a.stdout, a.stderr),
			runner.WithLogger(a.logger)),
		registry: registry.New(cfg.CatalogPath(a.root),
			registry.WithLocator(locator.Has),
			registry.WithLogger(a.logger)),
		backups: backup.NewManager(paths,
			backup.WithInclude(cfg.Backup.Include...),
			backup.WithLogger(a.logger)),
	}, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
