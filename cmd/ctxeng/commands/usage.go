package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ctxeng/ai/tracker"
	"github.com/teranos/ctxeng/display"
	"github.com/teranos/ctxeng/logger"
)

func newUsageCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show model usage and cost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, _, err := openDatabase(cfg, "")
			if err != nil {
				return err
			}
			defer database.Close()

			report, err := tracker.NewUsageTracker(database, logger.Logger.Named("usage")).Report(days, time.Now())
			if err != nil {
				return err
			}
			if display.ShouldOutputJSON(cmd) {
				return display.OutputJSON(cmd.OutOrStdout(), report)
			}

			st := report.Stats
			pterm.DefaultSection.WithWriter(cmd.OutOrStdout()).Printf("Last %d days", report.Days)
			fmt.Fprintf(cmd.OutOrStdout(), "Requests: %d (%.0f%% successful)\nTokens:   %d\nCost:     $%.4f\n",
				st.TotalRequests, st.SuccessRate*100, st.TotalTokens, st.TotalCost)

			rows := make([][]string, 0, len(report.Models))
			for _, m := range report.Models {
				rows = append(rows, []string{
					m.ModelName,
					strconv.Itoa(m.RequestCount),
					strconv.Itoa(m.TotalTokens),
					fmt.Sprintf("$%.4f", m.TotalCost),
				})
			}
			return display.Table(cmd.OutOrStdout(), []string{"Model", "Requests", "Tokens", "Cost"}, rows)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Number of days to report")
	return cmd
}
