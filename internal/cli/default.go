package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"verylup/internal/override"
	"verylup/internal/registry"
	"verylup/internal/toolchain"
)

func newDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default [toolchain]",
		Short: "Show or set the default toolchain",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDefault,
	}
}

func runDefault(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		reg, err := e.store.Load()
		if err != nil {
			return err
		}
		def, ok := reg.Default()
		if outputJSON {
			data, err := json.MarshalIndent(map[string]string{"default": def.String()}, "", "  ")
			if err != nil {
				return fmt.Errorf("encode json: %w", err)
			}
			cmd.Println(string(data))
			return nil
		}
		if !ok {
			cmd.Println("(no default toolchain)")
			return nil
		}
		cmd.Println(def.String())
		return nil
	}

	var chosen toolchain.ID
	err = e.store.Update(cmd.Context(), func(reg *registry.Registry) error {
		id, err := override.Desugar(args[0], reg)
		if err != nil {
			return err
		}
		chosen = id
		return reg.SetDefault(id)
	})
	if err != nil {
		if isNotInstalled(err) {
			return fmt.Errorf("%w; install it first with `%s install %s`", err, appName, args[0])
		}
		return err
	}
	cmd.Printf("default toolchain set to %s\n", chosen)
	return nil
}
