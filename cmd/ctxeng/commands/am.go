package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ctxeng/am"
	"github.com/teranos/ctxeng/display"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
)

func newAmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "am",
		Short: "Manage ctxeng configuration",
		Long: `Display and change ctxeng configuration ("I am").

Configuration sources (later overrides earlier):
  1. Built-in defaults
  2. ` + am.SystemConfigPath + `
  3. ~/.ctxeng/am.toml
  4. am.toml in the working directory or the nearest parent
  5. ` + am.EnvPrefix + `_* environment variables (and OPENROUTER_API_KEY)

Examples:
  ctxeng am show                        # Show configuration
  ctxeng am show --format json          # ... as JSON
  ctxeng am get openrouter.model        # One value
  ctxeng am set server.port 9000        # Write to ~/.ctxeng/am.toml
  ctxeng am where                       # Where each value comes from`,
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if display.ShouldOutputJSON(cmd) {
				format = "json"
			}
			data, err := am.Show(format)
			if err != nil {
				return err
			}
			if format == "" || format == "toml" {
				fmt.Fprintln(cmd.OutOrStdout(), "# ctxeng configuration")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringVar(&format, "format", "toml", "Output format: toml, json, yaml")

	cmd.AddCommand(
		show,
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one value by dotted key (e.g. openrouter.model)",
			Args:  cobra.ExactArgs(1),
			RunE:  runAmGet,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Write a value to ~/.ctxeng/am.toml",
			Long: `Write a value to the user configuration file, keeping the previous
three versions as am.toml.back1..3. Lists are comma-separated.`,
			Args: cobra.ExactArgs(2),
			RunE: runAmSet,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  runAmValidate,
		},
		&cobra.Command{
			Use:   "where",
			Short: "Show which source each setting comes from",
			Args:  cobra.NoArgs,
			RunE:  runAmWhere,
		},
	)
	return cmd
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !am.GetViper().IsSet(key) {
		return errors.WithHint(
			errors.Newf("configuration key %q not found", key),
			"run 'ctxeng am where' to list settings",
		)
	}
	value := am.Get(key)
	if key == "openrouter.api_key" {
		value = keystore.MaskCredential(am.GetString(key))
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{"key": key, "value": value})
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	value, err := am.ParseValue(key, raw)
	if err != nil {
		return err
	}
	if err := am.SetUserValue(key, value); err != nil {
		return err
	}

	// Re-read so the new value is validated in the full cascade.
	am.Reset()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to reload config")
	}
	if err := cfg.Validate(); err != nil {
		pterm.Warning.Printf("Saved, but the configuration is now invalid: %s\n", errors.UserMessage(err))
		return nil
	}
	pterm.Success.Printf("Set %s in %s\n", key, am.UserConfigPath())
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro := am.GetConfigIntrospection()
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), intro)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration files (later overrides earlier):")
	if len(intro.Files) == 0 {
		fmt.Fprintln(out, "  none, using built-in defaults")
	}
	for _, f := range intro.Files {
		fmt.Fprintf(out, "  %s\n", f)
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(intro.Settings))
	for _, s := range intro.Settings {
		rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	return display.Table(out, []string{"Key", "Value", "Source", "From"}, rows)
}
