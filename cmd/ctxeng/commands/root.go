// Package commands implements the ctxeng command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
)

// NewRootCmd builds the ctxeng command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ctxeng",
		Short: "Context Engineer - assemble structured prompts and send them to OpenRouter",
		Long: `Context Engineer turns a structured prompt (persona, initial prompt,
background, examples, output format, rules) into one labelled text and
sends it to a model through OpenRouter.

Examples:
  ctxeng serve                      # Open the web workbench
  ctxeng assemble -f haiku.yaml     # Print the assembled context
  ctxeng send --preset Coding       # Send an example context
  ctxeng key set sk-or-v1-...       # Store your OpenRouter key
  ctxeng am show                    # Show configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbosity, _ := cmd.Flags().GetCount("verbose")
			jsonLogs, _ := cmd.Flags().GetBool("log-json")
			if err := logger.Initialize(jsonLogs, verbosity); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			return nil
		},
	}

	root.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	root.PersistentFlags().Bool("json", false, "Print results as JSON")
	root.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	root.AddCommand(
		newServeCmd(),
		newAssembleCmd(),
		newSendCmd(),
		newKeyCmd(),
		newModelsCmd(),
		newPresetsCmd(),
		newUsageCmd(),
		newAmCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}
