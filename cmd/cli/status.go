package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iotserver24/xibe-review/internal/core"
)

var outputJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the webhook counters kept by the Xibe-review server",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logs, cleanup, err := openLogStore()
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := logs.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to retrieve webhook stats: %w", err)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(struct {
				core.WebhookStats
				SuccessRate int `json:"successRate"`
			}{stats, stats.SuccessRate()})
		}

		if stats.Total == 0 {
			warnColor.Println("No webhooks have been recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCOUNT")
		fmt.Fprintf(w, "%s\t%d\n", core.StatusProcessing, stats.Processing)
		fmt.Fprintf(w, "%s\t%d\n", core.StatusCompleted, stats.Completed)
		fmt.Fprintf(w, "%s\t%d\n", core.StatusError, stats.Error)
		fmt.Fprintf(w, "%s\t%d\n", core.StatusIgnored, stats.Ignored)
		fmt.Fprintf(w, "total\t%d\n", stats.Total)
		if err := w.Flush(); err != nil {
			return err
		}

		rate := successColor
		if stats.SuccessRate() < 50 {
			rate = errorColor
		}
		rate.Printf("\nSuccess rate: %d%%\n", stats.SuccessRate())
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Output counters as JSON")
	rootCmd.AddCommand(statusCmd)
}
