package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/jobqueue"
)

func reconcileCmd() *cobra.Command {
	var (
		minAge time.Duration
		maxAge time.Duration
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "reconcile-pending",
		Short: "Poll the gateway once for open orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			rc := cfg.Reconcile
			if cmd.Flags().Changed("min-age") {
				rc.MinAge = minAge
			}
			if cmd.Flags().Changed("max-age") {
				rc.MaxAge = maxAge
			}
			if cmd.Flags().Changed("limit") {
				rc.Batch = limit
			}

			stats := jobqueue.NewManager(billingService(cfg, db), rc).RunOnce(cmd.Context())
			if stats.Err != nil {
				return stats.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, completed %d\n", stats.Checked, stats.Completed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&minAge, "min-age", time.Minute, "skip orders younger than this")
	cmd.Flags().DurationVar(&maxAge, "max-age", 72*time.Hour, "skip orders older than this")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum orders to check")
	return cmd
}
