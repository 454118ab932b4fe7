package main

import (
	"fmt"
	"time"

	"github.com/lgulliver/pdfshrink/internal/retention"
	"github.com/spf13/cobra"
)

func newSweepCmd(c *cli) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete stored artifacts older than a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			if maxAge == 0 {
				maxAge = c.cfg.Retention.OnDemandMaxAge()
			}

			report, err := retention.NewSweeper(store, c.cfg.Retention.Concurrency).
				Sweep(cmd.Context(), time.Now(), maxAge)
			if err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), report, fmt.Sprintf(
				"deleted %d of %d artifacts older than %s (%d errors)",
				report.Deleted, report.Total, maxAge, report.Errors))
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Age threshold (default DELETE_AFTER_MINUTES or 30m)")
	return cmd
}
