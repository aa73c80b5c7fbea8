package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"verylup/internal/installer"
	"verylup/internal/registry"
	"verylup/internal/toolchain"
	"verylup/internal/tui"
)

var (
	installPkg   string
	installFrom  string
	installForce bool
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [toolchain]",
		Short: "Install a toolchain (a version, latest, or local with --from)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInstall,
	}

	cmd.Flags().StringVar(&installPkg, "pkg", "", "Install from an offline package instead of downloading")
	cmd.Flags().StringVar(&installFrom, "from", "", "Install the local toolchain from a build or source directory")
	cmd.Flags().BoolVar(&installForce, "force", false, "Reinstall even if the toolchain is already installed")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	req := installer.Request{Package: installPkg, From: installFrom, Force: installForce}
	switch {
	case len(args) == 1:
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		req.ID = id
	case installFrom != "":
		req.ID = toolchain.Local
	case installPkg != "":
		req.ID = toolchain.Latest
	default:
		return fmt.Errorf("specify a toolchain to install, e.g. %q or %q", toolchain.Latest, "0.16.1")
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	out, err := e.install(cmd, "Installing "+req.ID.String(), req)
	if err != nil {
		return err
	}
	return printOutcome(cmd, out)
}

// install runs req with progress rendered for the command's output.
func (e *env) install(cmd *cobra.Command, title string, req installer.Request) (installer.Outcome, error) {
	inst, closer, err := e.installer()
	if err != nil {
		return installer.Outcome{}, err
	}
	defer closer.Close()

	var out installer.Outcome
	err = withProgress(cmd, title, func(ctx context.Context, rep tui.Reporter) error {
		inst.Progress = rep
		o, err := inst.Install(ctx, req)
		out = o
		return err
	})
	return out, err
}

// withProgress picks the progress rendering for the command's output and
// runs work under it.
func withProgress(cmd *cobra.Command, title string, work func(context.Context, tui.Reporter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	mode := tui.DetectMode(cmd.OutOrStdout(), noProgress, outputJSON)
	if mode == tui.ModeTUI {
		return tui.RunWithWork(ctx, cmd.OutOrStdout(), tui.NewProgressModel(title, installer.Phases()), work)
	}
	return work(ctx, tui.NewReporter(mode, cmd.ErrOrStderr()))
}

type outcomeView struct {
	Toolchain string `json:"toolchain"`
	Version   string `json:"version,omitempty"`
	Root      string `json:"root"`
	Skipped   bool   `json:"skipped"`
}

func printOutcome(cmd *cobra.Command, out installer.Outcome) error {
	view := outcomeView{
		Toolchain: out.Toolchain.ID.String(),
		Root:      out.Toolchain.Root,
		Skipped:   out.Skipped,
	}
	if out.Version != nil {
		view.Version = out.Version.String()
	}
	if outputJSON {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if out.Skipped {
		cmd.Printf("toolchain %s is already installed (use --force to reinstall)\n", view.Toolchain)
		return nil
	}
	cmd.Printf("installed toolchain %s at %s\n", view.Toolchain, view.Root)
	return nil
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <toolchain>",
		Short: "Remove an installed toolchain",
		Args:  cobra.ExactArgs(1),
		RunE:  runUninstall,
	}
}

func runUninstall(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	inst, closer, err := e.installer()
	if err != nil {
		return err
	}
	defer closer.Close()

	reg, err := e.store.Load()
	if err != nil {
		return err
	}
	def, hadDefault := reg.Default()

	removed, err := inst.Uninstall(cmd.Context(), id)
	if err != nil {
		return err
	}
	cmd.Printf("uninstalled toolchain %s\n", removed.ID)
	if hadDefault && def.Equal(removed.ID) {
		cmd.Printf("no default toolchain is set; choose one with `%s default <toolchain>`\n", appName)
	}
	return nil
}

var updatePkg string

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Install the latest toolchain and make it the default",
		Args:  cobra.NoArgs,
		RunE:  runUpdate,
	}
	cmd.Flags().StringVar(&updatePkg, "pkg", "", "Update from an offline package instead of downloading")
	return cmd
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	before, err := e.store.Load()
	if err != nil {
		return err
	}

	out, err := e.install(cmd, "Updating to latest", installer.Request{ID: toolchain.Latest, Package: updatePkg})
	if err != nil {
		return err
	}

	previous, hadDefault := before.Default()
	// A pinned local default is left alone; versioned defaults follow latest.
	if hadDefault && !previous.IsVersion() {
		return printOutcome(cmd, out)
	}
	if hadDefault && toolchain.Compare(previous, out.Toolchain.ID) >= 0 {
		return printOutcome(cmd, out)
	}
	err = e.store.Update(cmd.Context(), func(reg *registry.Registry) error {
		return reg.SetDefault(out.Toolchain.ID)
	})
	if err != nil {
		return err
	}
	if err := printOutcome(cmd, out); err != nil {
		return err
	}
	if !outputJSON {
		cmd.Printf("default toolchain is now %s\n", out.Toolchain.ID)
	}
	return nil
}
