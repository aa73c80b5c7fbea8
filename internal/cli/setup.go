package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"verylup/internal/installer"
	"verylup/internal/paths"
	"verylup/internal/registry"
	"verylup/internal/toolchain"
)

var (
	setupOffline bool
	setupPkg     string
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Initialize verylup, install the latest toolchain and link the managed tools",
		Args:  cobra.NoArgs,
		RunE:  runSetup,
	}
	cmd.Flags().BoolVar(&setupOffline, "offline", false, "Do not download; record offline mode in the settings")
	cmd.Flags().StringVar(&setupPkg, "pkg", "", "Install the initial toolchain from an offline package")
	return cmd
}

func runSetup(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	if err := e.layout.EnsureDirs(); err != nil {
		return err
	}

	if setupOffline && !e.settings.Offline {
		e.settings.Offline = true
		if err := e.settings.Save(e.layout.SettingsFile); err != nil {
			return err
		}
	}
	if err := e.store.Update(cmd.Context(), func(reg *registry.Registry) error {
		reg.Initialize()
		return nil
	}); err != nil {
		return err
	}

	switch {
	case setupPkg != "":
		out, err := e.install(cmd, "Installing from package", installer.Request{ID: toolchain.Latest, Package: setupPkg})
		if err != nil {
			return err
		}
		if err := printOutcome(cmd, out); err != nil {
			return err
		}
	case e.settings.Offline:
		e.logger.Warn("offline mode: no toolchain installed; use `verylup install --pkg <package>`")
	default:
		out, err := e.install(cmd, "Installing latest", installer.Request{ID: toolchain.Latest})
		if err != nil {
			return err
		}
		if err := printOutcome(cmd, out); err != nil {
			return err
		}
	}

	binDir, err := paths.BinDir()
	if err != nil {
		return err
	}
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		self = resolved
	}
	for _, tool := range toolchain.Tools() {
		link := filepath.Join(binDir, toolchain.ExecutableName(tool))
		created, err := linkTool(self, link)
		if err != nil {
			return fmt.Errorf("link %s: %w", tool, err)
		}
		if created {
			e.logger.Info("linked tool", "tool", tool, "path", link)
		}
	}
	if !outputJSON {
		cmd.Printf("%s is set up; %s\n", appName, binDir)
	}
	return nil
}

// linkTool points link at self with a hard link, falling back to a symlink
// where hard links are not possible. An existing link to self is kept.
func linkTool(self, link string) (bool, error) {
	if info, err := os.Lstat(link); err == nil {
		if target, err := os.Stat(link); err == nil {
			if selfInfo, err := os.Stat(self); err == nil && os.SameFile(target, selfInfo) {
				return false, nil
			}
		}
		if info.IsDir() {
			return false, fmt.Errorf("%s is a directory", link)
		}
		if err := os.Remove(link); err != nil {
			return false, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if err := os.Link(self, link); err != nil {
		if symErr := os.Symlink(self, link); symErr != nil {
			return false, errors.Join(err, symErr)
		}
	}
	return true, nil
}
