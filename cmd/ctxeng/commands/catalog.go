package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/catalog"
	"github.com/teranos/ctxeng/display"
	"github.com/teranos/ctxeng/errors"
)

func newModelsCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := catalog.Load()
			if err != nil {
				return err
			}

			list := models.All()
			if provider != "" {
				var ok bool
				if list, ok = models.ByProvider(provider); !ok {
					return errors.WithHintf(errors.NewInvalidRequestError("unknown provider %q", provider),
						"known providers: %s", strings.Join(models.ProviderNames(), ", "))
				}
			}

			if display.ShouldOutputJSON(cmd) {
				return display.OutputJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, 0, len(list))
			for _, m := range list {
				var flags []string
				if m.ID == models.Default {
					flags = append(flags, "default")
				}
				if m.Popular {
					flags = append(flags, "popular")
				}
				if m.Free {
					flags = append(flags, "free")
				}
				rows = append(rows, []string{m.Provider, m.ID, m.Name, strings.Join(flags, ",")})
			}
			return display.Table(cmd.OutOrStdout(), []string{"Provider", "ID", "Name", ""}, rows)
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Only list this provider's models")
	return cmd
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the example contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := catalog.Presets()
			if err != nil {
				return err
			}
			if display.ShouldOutputJSON(cmd) {
				return display.OutputJSON(cmd.OutOrStdout(), presets)
			}
			for _, p := range presets {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", p.Key, firstLine(assemble.Assemble(p.Context)))
			}
			return nil
		},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
