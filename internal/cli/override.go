package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"verylup/internal/override"
)

var overridePath string

func newOverrideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Pin a toolchain for a directory tree",
	}
	cmd.PersistentFlags().StringVar(&overridePath, "path", "", "Directory to act on (default: current directory)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List override files that apply to the directory",
		Args:  cobra.NoArgs,
		RunE:  runOverrideList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <toolchain>",
		Short: "Write an override file in the directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runOverrideSet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unset",
		Short: "Remove the override file from the directory",
		Args:  cobra.NoArgs,
		RunE:  runOverrideUnset,
	})
	return cmd
}

func overrideDir() (string, error) {
	if overridePath != "" {
		return filepath.Abs(overridePath)
	}
	return workingDir()
}

type markerView struct {
	Path      string `json:"path"`
	Toolchain string `json:"toolchain"`
	Effective bool   `json:"effective"`
}

func runOverrideList(cmd *cobra.Command, _ []string) error {
	dir, err := overrideDir()
	if err != nil {
		return err
	}
	markers, err := override.NewResolver().Markers(dir)
	if err != nil {
		return err
	}

	views := make([]markerView, 0, len(markers))
	for i, m := range markers {
		views = append(views, markerView{Path: m.Path, Toolchain: m.Selector, Effective: i == 0})
	}
	if outputJSON {
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if len(views) == 0 {
		cmd.Println("(no overrides)")
		return nil
	}
	for _, v := range views {
		note := ""
		if !v.Effective {
			note = " (shadowed)"
		}
		cmd.Printf("%-12s %s%s\n", v.Toolchain, v.Path, note)
	}
	return nil
}

func runOverrideSet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	dir, err := overrideDir()
	if err != nil {
		return err
	}
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	if reg, err := e.store.Load(); err == nil {
		resolved, err := override.Desugar(id.String(), reg)
		if _, ok := reg.Get(resolved); err != nil || !ok {
			e.logger.Warn("toolchain is not installed", "toolchain", id.String())
		}
	}

	path, err := override.WriteMarker(dir, id)
	if err != nil {
		return err
	}
	cmd.Printf("override %s set in %s\n", id, path)
	return nil
}

func runOverrideUnset(cmd *cobra.Command, _ []string) error {
	dir, err := overrideDir()
	if err != nil {
		return err
	}
	path, removed, err := override.RemoveMarker(dir)
	if err != nil {
		return err
	}
	if !removed {
		cmd.Printf("no override in %s\n", dir)
		return nil
	}
	cmd.Printf("removed %s\n", path)
	return nil
}
