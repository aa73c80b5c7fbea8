// Package cli is the verylup command line. The same binary runs as the
// management CLI or, when invoked under a managed tool's name, as a proxy for
// that tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"verylup/internal/config"
	"verylup/internal/installer"
	"verylup/internal/logx"
	"verylup/internal/paths"
	"verylup/internal/registry"
	"verylup/internal/toolchain"
)

const appName = "verylup"

var (
	verbose    bool
	quiet      bool
	outputJSON bool
	noProgress bool
)

// Main dispatches on the name the binary was invoked as and returns the
// process exit code.
func Main(args []string) int {
	name := appName
	if len(args) > 0 {
		name = invokedAs(args[0])
		args = args[1:]
	}
	if toolchain.IsTool(name) {
		return runProxy(name, args, os.Stdin, os.Stdout, os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	return 0
}

// invokedAs returns the tool name for argv0, without directory or .exe.
func invokedAs(argv0 string) string {
	base := filepath.Base(argv0)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".exe") {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Veryl toolchain manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug logs")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print warnings and errors")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Disable interactive progress rendering")

	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newUninstallCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newDefaultCmd())
	cmd.AddCommand(newOverrideCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCompletionCmd())

	return cmd
}

// env bundles what most commands need: where things live, the user settings
// and the registry store.
type env struct {
	layout   paths.Layout
	settings config.Config
	store    *registry.Store
	logger   *slog.Logger
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	layout, err := paths.Resolve()
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(layout.SettingsFile)
	if err != nil {
		return nil, err
	}
	logger := logx.New(cmd.ErrOrStderr(), consoleLevel())
	results := settings.Validate()
	if errs := results.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", layout.SettingsFile, errors.Join(errs...))
	}
	for _, res := range results {
		logger.Warn(res.Message, "file", layout.SettingsFile)
	}
	dir, err := settings.ToolchainsPath()
	if err != nil {
		return nil, err
	}
	layout = layout.WithToolchainsDir(dir)

	return &env{
		layout:   layout,
		settings: settings,
		store:    registry.NewStore(layout.ConfigRoot),
		logger:   logger,
	}, nil
}

// installer returns an installer whose logs also go to a file in the logs
// directory. The returned closer flushes that file.
func (e *env) installer() (*installer.Installer, io.Closer, error) {
	if err := e.layout.EnsureDirs(); err != nil {
		return nil, nil, err
	}
	logger := e.logger
	var closer io.Closer = nopCloser{}
	if fileLogger, c, err := logx.OpenFile(e.layout.LogsDir); err == nil {
		logger = slog.New(logx.Tee(e.logger.Handler(), fileLogger.Handler()))
		closer = c
	} else {
		e.logger.Debug("install log disabled", "error", err)
	}
	inst := installer.New(e.layout, e.settings, logger)
	inst.Store = e.store
	return inst, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func consoleLevel() slog.Level {
	switch {
	case verbose:
		return slog.LevelDebug
	case quiet:
		return slog.LevelWarn
	default:
		return logx.EnvLevel(slog.LevelInfo)
	}
}

func parseID(raw string) (toolchain.ID, error) {
	id, err := toolchain.Parse(strings.TrimSpace(raw))
	if err != nil {
		return toolchain.ID{}, fmt.Errorf("invalid toolchain %q: %w", raw, err)
	}
	return id, nil
}

func workingDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return dir, nil
}

func isNotInstalled(err error) bool {
	return errors.Is(err, toolchain.ErrNotInstalled)
}
