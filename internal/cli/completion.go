package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"verylup/internal/locator"
	"verylup/internal/override"
	"verylup/internal/proxy"
	"verylup/internal/toolchain"
)

var completionShells = []string{"bash", "fish", "powershell", "zsh"}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <shell> [verylup|veryl]",
		Short: "Generate tab-completion scripts for your shell",
		Long: "Generate tab-completion scripts for verylup, or for veryl from the toolchain\n" +
			"active in the current directory. Shells: " + strings.Join(completionShells, ", ") + ".",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: completionShells,
		RunE:      runCompletion,
	}
}

func runCompletion(cmd *cobra.Command, args []string) error {
	shell := args[0]
	target := appName
	if len(args) == 2 {
		target = args[1]
	}
	switch target {
	case appName:
		return verylupCompletion(cmd, shell)
	case toolchain.Primary:
		return verylCompletion(cmd, shell)
	default:
		return fmt.Errorf("unknown completion target %q (want %s or %s)", target, appName, toolchain.Primary)
	}
}

func verylupCompletion(cmd *cobra.Command, shell string) error {
	root := cmd.Root()
	out := cmd.OutOrStdout()
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(out, true)
	case "fish":
		return root.GenFishCompletion(out, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(out)
	case "zsh":
		return root.GenZshCompletion(out)
	default:
		return fmt.Errorf("unsupported shell %q (want one of %s)", shell, strings.Join(completionShells, ", "))
	}
}

// verylCompletion asks the active toolchain's veryl for its script.
func verylCompletion(cmd *cobra.Command, shell string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	reg, err := e.store.Load()
	if err != nil {
		return err
	}
	dir, err := workingDir()
	if err != nil {
		return err
	}
	sel, err := override.NewResolver().Resolve(dir, nil, reg)
	if err != nil {
		return err
	}
	binary, err := locator.Locate(sel.ID, reg, toolchain.Primary)
	if err != nil {
		return err
	}

	engine := &proxy.Engine{
		Logger: e.logger,
		Stdin:  strings.NewReader(""),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}
	res := engine.Exec(cmd.Context(), binary, []string{"check", "--completion", shell})
	if res.Err != nil {
		return res.Err
	}
	if code := res.ExitCode(); code != 0 {
		return fmt.Errorf("%s %s exited with %s", toolchain.Primary, sel.ID, res)
	}
	return nil
}
