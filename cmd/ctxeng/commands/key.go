package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ctxeng/display"
	"github.com/teranos/ctxeng/keystore"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored OpenRouter API key",
		Long: `Store, show, clear and diagnose the OpenRouter API key.

The key is kept in the first working tier, most durable first:
  durable   sqlite database (keystore.durable)
  user      ~/.ctxeng/credentials.toml (keystore.user_file)
  runtime   a per-user file under the temp directory, lost on reboot`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key>",
		Short: "Validate and store a key",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeySet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the stored key, masked",
		Args:  cobra.NoArgs,
		RunE:  runKeyGet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the key from every tier",
		Args:  cobra.NoArgs,
		RunE:  runKeyClear,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Probe which storage tiers work",
		Args:  cobra.NoArgs,
		RunE:  runKeyCheck,
	})
	return cmd
}

func runKeySet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	local := openLocal(cfg)
	defer local.Close()
	store := local.store

	tier, err := keystore.SaveCredential(store, args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]string{
			"tier":   tier,
			"masked": keystore.MaskCredential(args[0]),
		})
	}
	pterm.Success.Printf("Stored %s in the %s tier\n", keystore.MaskCredential(args[0]), tier)
	return nil
}

func runKeyGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	local := openLocal(cfg)
	defer local.Close()
	store := local.store

	key, source := resolveAPIKey(cfg, store)
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{
			"configured": key != "",
			"masked":     keystore.MaskCredential(key),
			"source":     source,
		})
	}
	if key == "" {
		pterm.Info.Println("No key stored. Run 'ctxeng key set <key>' or set OPENROUTER_API_KEY.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", keystore.MaskCredential(key), source)
	return nil
}

func runKeyClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	local := openLocal(cfg)
	defer local.Close()
	store := local.store

	keystore.ClearCredential(store)
	pterm.Success.Println("Key cleared from " + strings.Join(store.Tiers(), ", "))
	if cfg.OpenRouter.APIKey != "" {
		pterm.Warning.Println("openrouter.api_key is still set in configuration or the environment")
	}
	return nil
}

func runKeyCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	local := openLocal(cfg)
	defer local.Close()
	store := local.store

	statuses := store.Probe()
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{
			"usable": keystore.AnyUsable(statuses),
			"tiers":  statuses,
		})
	}

	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, []string{st.Tier, yesNo(st.Writable), yesNo(st.Readable), st.Error})
	}
	if err := display.Table(cmd.OutOrStdout(), []string{"Tier", "Writable", "Readable", "Error"}, rows); err != nil {
		return err
	}
	if !keystore.AnyUsable(statuses) {
		pterm.Error.Println("No tier can hold the key; use OPENROUTER_API_KEY instead")
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
