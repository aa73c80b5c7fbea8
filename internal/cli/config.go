package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"verylup/internal/config"
	"verylup/internal/paths"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit verylup settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings in YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Change a setting",
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Keys(),
		RunE:      runConfigSet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "unset <key>",
		Short:     "Restore a setting to its default",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Keys(),
		RunE:      runConfigUnset,
	})
	return cmd
}

func settingsFile() (string, config.Config, error) {
	layout, err := paths.Resolve()
	if err != nil {
		return "", config.Config{}, err
	}
	cfg, err := config.Load(layout.SettingsFile)
	if err != nil {
		return "", config.Config{}, err
	}
	return layout.SettingsFile, cfg, nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	path, cfg, err := settingsFile()
	if err != nil {
		return err
	}

	if outputJSON {
		values := map[string]string{}
		for _, key := range config.Keys() {
			v, _ := cfg.Get(key)
			values[key] = v
		}
		data, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	cmd.Printf("# %s\n", path)
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	for _, res := range cfg.Validate() {
		cmd.PrintErrf("%s: %s\n", res.Level, res.Message)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, cfg, err := settingsFile()
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	value, _ := cfg.Get(args[0])
	cmd.Printf("%s = %s\n", args[0], value)
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	path, cfg, err := settingsFile()
	if err != nil {
		return err
	}
	if err := cfg.Unset(args[0]); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	value, _ := cfg.Get(args[0])
	cmd.Printf("%s = %s\n", args[0], value)
	return nil
}
