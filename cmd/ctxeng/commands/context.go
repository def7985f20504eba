package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ctxeng/ai/openrouter"
	"github.com/teranos/ctxeng/ai/tracker"
	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/catalog"
	"github.com/teranos/ctxeng/display"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
	"github.com/teranos/ctxeng/workbench"
)

// contextSource selects where a command reads its Context from.
type contextSource struct {
	file   string
	preset string
}

func (src *contextSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&src.file, "file", "f", "", "Context file (.yaml, .yml, .json or .toml; - reads YAML from stdin)")
	cmd.Flags().StringVar(&src.preset, "preset", "", "Use an example context (Coding, Financial, Creative Writing)")
	cmd.MarkFlagsMutuallyExclusive("file", "preset")
}

func (src *contextSource) load(stdin io.Reader) (assemble.Context, error) {
	log := logger.Logger.Named("workbench")
	switch {
	case src.preset != "":
		p, err := catalog.FindPreset(src.preset)
		if err != nil {
			return assemble.Context{}, err
		}
		return p.Context, nil
	case src.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return assemble.Context{}, errors.Wrap(err, "failed to read stdin")
		}
		return workbench.DecodeContext(data, workbench.FormatYAML, log)
	case src.file != "":
		return workbench.LoadContextFile(src.file, log)
	default:
		return assemble.Context{}, errors.WithHint(
			errors.NewInvalidRequestError("no context given"),
			"pass -f <file> or --preset <name>",
		)
	}
}

func newAssembleCmd() *cobra.Command {
	src := &contextSource{}
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Print the assembled context",
		Long: `Read a context from a file or preset and print the text that would be
sent to the model. An empty context prints the placeholder.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := src.load(cmd.InOrStdin())
			if err != nil {
				return err
			}
			text := assemble.Assemble(c)
			if display.ShouldOutputJSON(cmd) {
				return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{
					"text":  assemble.Preview(c),
					"empty": text == "",
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), assemble.Preview(c))
			return nil
		},
	}
	src.register(cmd)
	return cmd
}

type sendOptions struct {
	src   contextSource
	model string
}

func newSendCmd() *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Assemble a context and send it to a model",
		Long: `Validate and assemble a context, send it to OpenRouter once, and print
every choice. The key comes from 'ctxeng key set' or openrouter.api_key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts)
		},
	}
	opts.src.register(cmd)
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model id (defaults to openrouter.model)")
	return cmd
}

func runSend(cmd *cobra.Command, opts *sendOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := opts.src.load(cmd.InOrStdin())
	if err != nil {
		return err
	}

	local := openLocal(cfg)
	defer local.Close()
	apiKey, _ := resolveAPIKey(cfg, local.store)

	req := workbench.SendRequest{Context: c, Model: opts.model, APIKey: apiKey}
	if _, err := workbench.Validate(req); err != nil {
		return err
	}

	var usage *tracker.UsageTracker
	if local.db != nil {
		usage = tracker.NewUsageTracker(local.db, logger.Logger.Named("usage"))
	}

	timeout := cfg.GetOpenRouterTimeout()
	client, err := openrouter.NewClient(openrouter.Config{
		BaseURL: cfg.OpenRouter.BaseURL,
		Model:   cfg.OpenRouter.Model,
		Referer: cfg.OpenRouter.Referer,
		Title:   cfg.OpenRouter.Title,
		Timeout: &timeout,
		Logger:  logger.Logger,
		Tracker: usage,
	})
	if err != nil {
		return err
	}
	sender := workbench.NewSender(client, cfg.OpenRouter.Model, timeout, logger.Logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	jsonOut := display.ShouldOutputJSON(cmd)
	var spinner *pterm.SpinnerPrinter
	if !jsonOut {
		model := opts.model
		if model == "" {
			model = sender.DefaultModel()
		}
		spinner, _ = pterm.DefaultSpinner.WithWriter(cmd.ErrOrStderr()).Start("Sending to " + model)
	}

	res, err := sender.Send(ctx, req)
	if spinner != nil {
		if err != nil {
			spinner.Fail(errors.UserMessage(err))
		} else {
			spinner.Success(fmt.Sprintf("Response from %s in %s", res.Model, res.Duration.Round(time.Millisecond)))
		}
	}
	if err != nil {
		return err
	}

	if jsonOut {
		return display.OutputJSON(cmd.OutOrStdout(), res)
	}
	printChoices(cmd.OutOrStdout(), res.Response.Choices)
	return nil
}

func printChoices(w io.Writer, choices []openrouter.ChoiceText) {
	for i, c := range choices {
		if len(choices) > 1 {
			fmt.Fprintf(w, "--- choice %d ---\n", c.Index+1)
		}
		fmt.Fprintln(w, strings.TrimSpace(c.Content))
		if i < len(choices)-1 {
			fmt.Fprintln(w)
		}
	}
}
