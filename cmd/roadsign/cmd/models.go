package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/roadsign/internal/models"
	"github.com/spf13/cobra"
)

func newModelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model files roadsign expects and whether they exist",
		Long: `List the classifier and detector assets for the selected backend. Both
the organized layout (<dir>/classifier, <dir>/detector) and a flat
directory are recognized.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			dir := models.GetModelsDir(cfg.ModelsDir)
			list := models.ListAvailableModels(dir, cfg.Backend)

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"models_dir": dir, "backend": cfg.Backend, "models": list})
			}

			fmt.Fprintf(out, "Models directory: %s (backend %s)\n\n", dir, cfg.Backend)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tSTATUS\tPATH")
			for _, m := range list {
				status := "missing"
				if m.Exists {
					status = "ok"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Type, status, m.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	return cmd
}
