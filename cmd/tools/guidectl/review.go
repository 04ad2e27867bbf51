package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vetlink/companion/backend/internal/store"
)

var reviewLimit int

// reviewCmd lists review records from the configured store
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List persisted flagged replies and crisis alerts",
}

var reviewFlagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "List flagged assistant replies, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		flags, err := repo.ListFlags(cmd.Context(), reviewLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tROLE\tSENTIMENT\tSCORE\tTEXT")
		for _, f := range flags {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", f.CreatedAt.Format(time.RFC3339), f.AssistantType, f.Sentiment.Sentiment, f.Sentiment.Score, truncate(f.Text, 60))
		}
		return w.Flush()
	},
}

var reviewAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List crisis alerts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		alerts, err := repo.ListCrisisAlerts(cmd.Context(), reviewLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tUSER\tRESOLVED\tTEXT")
		for _, a := range alerts {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", a.CreatedAt.Format(time.RFC3339), a.UserID, a.Resolved, truncate(a.Text, 60))
		}
		return w.Flush()
	},
}

func init() {
	reviewCmd.PersistentFlags().IntVar(&reviewLimit, "limit", 20, "maximum records to list")
	reviewCmd.AddCommand(reviewFlagsCmd, reviewAlertsCmd)
}

func openRepository() (store.Repository, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver == "memory" {
		return nil, fmt.Errorf("storage.driver is memory; point STORAGE_DRIVER at sqlite or postgres to review records")
	}
	return store.Open(cfg.Storage.Driver, cfg.Storage.SQLitePath, cfg.Storage.PostgresDSN)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
