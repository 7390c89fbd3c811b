package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/roadsign/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := a.cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}
			out := cmd.OutOrStdout()
			if used := a.loader.GetConfigFileUsed(); used != "" {
				fmt.Fprintf(out, "# source: %s\n", used)
			}
			_, err = out.Write(data)
			if err != nil {
				return err
			}
			if verr := a.cfg.Validate(); verr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", verr)
			}
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				file = args[0]
			}
			if err := config.GenerateDefaultConfigFile(file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", file)
			return nil
		},
	}

	paths := &cobra.Command{
		Use:   "paths",
		Short: "List the directories searched for " + config.ConfigFileName + ".yaml",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, p := range config.GetConfigSearchPaths() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
		},
	}

	cmd.AddCommand(show, initCmd, paths)
	return cmd
}
