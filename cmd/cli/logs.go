package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iotserver24/xibe-review/internal/core"
)

var (
	logsStatus string
	logsLimit  int
	logsJSON   bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Lists recent webhook deliveries and their outcome",
	RunE: func(_ *cobra.Command, _ []string) error {
		status := core.LogStatus(logsStatus)
		if status != "" && !status.Valid() {
			return fmt.Errorf("invalid status %q, expected one of %v", logsStatus, core.AllStatuses)
		}

		store, cleanup, err := openLogStore()
		if err != nil {
			return err
		}
		defer cleanup()

		logs, err := store.RecentLogs(context.Background(), logsLimit, status)
		if err != nil {
			return fmt.Errorf("failed to retrieve webhook logs: %w", err)
		}

		if logsJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(logs)
		}

		if len(logs) == 0 {
			warnColor.Println("No matching webhook logs.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tREPOSITORY\tPR\tUSER\tSTATUS\tDURATION")
		for _, log := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				log.Timestamp.Local().Format(time.RFC822),
				log.Event,
				log.Repository,
				prColumn(log),
				log.User,
				statusColor(log.Status).Sprint(log.Status),
				durationColumn(log),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if verbose {
			for _, log := range logs {
				fmt.Println()
				titleColor.Println(log.ID)
				if log.Error != "" {
					errorColor.Printf("  error: %s\n", log.Error)
				}
				for _, action := range log.Actions {
					dimColor.Printf("  - %s\n", action)
				}
			}
		}
		return nil
	},
}

func prColumn(log *core.WebhookLog) string {
	if log.PRNumber == 0 {
		return "-"
	}
	return fmt.Sprintf("#%d", log.PRNumber)
}

func durationColumn(log *core.WebhookLog) string {
	if log.ProcessingTime == nil {
		return "-"
	}
	return (time.Duration(*log.ProcessingTime) * time.Millisecond).String()
}

func statusColor(status core.LogStatus) *color.Color {
	switch status {
	case core.StatusCompleted:
		return successColor
	case core.StatusError:
		return errorColor
	case core.StatusIgnored:
		return dimColor
	default:
		return warnColor
	}
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	logsCmd.Flags().StringVar(&logsStatus, "status", "", "Only show logs with this status (processing, completed, error, ignored)")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "Maximum number of logs to show")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Output logs as JSON")
	rootCmd.AddCommand(logsCmd)
}
