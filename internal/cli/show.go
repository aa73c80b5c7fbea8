package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"verylup/internal/installer"
	"verylup/internal/locator"
	"verylup/internal/override"
	"verylup/internal/registry"
	"verylup/internal/toolchain"
	"verylup/internal/tui"
)

var showCheck bool

// probeVersion is swapped by tests that cannot run real binaries.
var probeVersion = installer.ProbeVersion

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show installed toolchains and the one active here",
		Args:  cobra.NoArgs,
		RunE:  runShow,
	}
	cmd.Flags().BoolVar(&showCheck, "check", false, "Verify every toolchain and read its version")
	return cmd
}

type toolchainView struct {
	ID      string `json:"id"`
	Root    string `json:"root"`
	Default bool   `json:"default"`
	Active  bool   `json:"active"`
	Status  string `json:"status,omitempty"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

type showView struct {
	Home       string          `json:"home"`
	Active     string          `json:"active,omitempty"`
	Source     string          `json:"source,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	Toolchains []toolchainView `json:"toolchains"`
	Problem    string          `json:"problem,omitempty"`
}

func runShow(cmd *cobra.Command, _ []string) error {
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

	view := showView{Home: e.layout.ToolchainsDir}
	sel, resolveErr := override.NewResolver().Resolve(dir, nil, reg)
	if resolveErr != nil {
		view.Problem = resolveErr.Error()
	} else {
		view.Active = sel.ID.String()
		view.Source = sel.Source.String()
		view.Origin = sel.Origin
	}

	def, _ := reg.Default()
	list := reg.List()
	view.Toolchains = make([]toolchainView, len(list))
	for i, tc := range list {
		view.Toolchains[i] = toolchainView{
			ID:      tc.ID.String(),
			Root:    tc.Root,
			Default: tc.ID.Equal(def),
			Active:  resolveErr == nil && tc.ID.Equal(sel.ID),
		}
	}
	if showCheck {
		var status *tui.StatusWriter
		if !outputJSON && tui.IsTerminal(cmd.ErrOrStderr()) {
			status = tui.NewStatusWriter(cmd.ErrOrStderr(), "checking toolchains")
		}
		err := checkToolchains(cmd.Context(), list, view.Toolchains)
		if status != nil {
			status.Stop()
		}
		if err != nil {
			return err
		}
	}

	if outputJSON {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printShow(cmd, view)
	return nil
}

// checkToolchains verifies each toolchain and probes its version
// concurrently, filling the matching views in place.
func checkToolchains(ctx context.Context, list []registry.Toolchain, views []toolchainView) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, tc := range list {
		g.Go(func() error {
			v := &views[i]
			if err := locator.Verify(tc); err != nil {
				v.Status = "broken"
				v.Error = err.Error()
				return nil
			}
			version, err := probeVersion(ctx, tc.BinaryPath(toolchain.Primary))
			if err != nil {
				v.Status = "broken"
				v.Error = err.Error()
				return nil
			}
			v.Status = "ok"
			v.Version = version.String()
			return ctx.Err()
		})
	}
	return g.Wait()
}

func printShow(cmd *cobra.Command, view showView) {
	bold := lipgloss.NewStyle().Bold(true).Inline(true)

	cmd.Println(bold.Render("toolchains:") + " " + view.Home)
	if len(view.Toolchains) == 0 {
		cmd.Printf("  (none installed; run `%s setup` or `%s install latest`)\n", appName, appName)
	}
	for _, t := range view.Toolchains {
		var tags []string
		if t.Default {
			tags = append(tags, "default")
		}
		if t.Active {
			tags = append(tags, "active")
		}
		label := t.ID
		if t.Default {
			label = tui.DefaultStyle.Inline(true).Render(label)
		}
		line := fmt.Sprintf("  %s", label)
		if len(tags) > 0 {
			line += fmt.Sprintf(" (%s)", strings.Join(tags, ", "))
		}
		if t.Status != "" {
			status := tui.StatusStyle(t.Status).Inline(true).Render(t.Status)
			detail := t.Version
			if t.Error != "" {
				detail = t.Error
			}
			line += fmt.Sprintf("  %s %s", status, tui.NonEmptyOrDash(detail))
		}
		cmd.Println(line)
	}

	cmd.Println()
	if view.Problem != "" {
		cmd.Println(bold.Render("active:") + " " + view.Problem)
		return
	}
	origin := view.Source
	if view.Origin != "" {
		origin += " " + view.Origin
	}
	cmd.Printf("%s %s (%s)\n", bold.Render("active:"), view.Active, origin)
}
