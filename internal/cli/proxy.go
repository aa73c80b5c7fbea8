package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"verylup/internal/logx"
	"verylup/internal/override"
	"verylup/internal/paths"
	"verylup/internal/proxy"
	"verylup/internal/registry"
)

// runProxy resolves the toolchain for the current directory and runs tool
// from it. Logging stays at warn unless VERYLUP_LOG asks for more, so the
// tool's own output is all the user sees.
func runProxy(tool string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := logx.New(stderr, logx.EnvLevel(slog.LevelWarn))

	fail := func(err error) int {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return proxy.ExitResolutionFailed
	}

	layout, err := paths.Resolve()
	if err != nil {
		return fail(err)
	}
	dir, err := workingDir()
	if err != nil {
		return fail(err)
	}

	engine := &proxy.Engine{
		Store:    registry.NewStore(layout.ConfigRoot),
		Resolver: override.NewResolver(),
		Logger:   logger,
		Stdin:    stdin,
		Stdout:   stdout,
		Stderr:   stderr,
	}
	res := engine.Run(context.Background(), proxy.Invocation{Tool: tool, Dir: dir, Args: args})
	if res.Err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, res.Err)
	}
	logger.Debug("proxy finished", "result", res.String(), "exit", res.ExitCode())
	return res.ExitCode()
}
