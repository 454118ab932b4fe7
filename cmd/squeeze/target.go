package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTargetCmd(c *cli) *cobra.Command {
	var targetKB int64
	var output string

	cmd := &cobra.Command{
		Use:   "target <file.pdf>",
		Short: "Compress a PDF toward a target size in KB",
		Long: `target tries the screen, ebook and printer presets in order and keeps the
first output that fits the budget. When none fits, the smallest output is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, store, err := c.service()
			if err != nil {
				return err
			}

			input := args[0]
			id, err := importFile(ctx, store, input)
			if err != nil {
				return err
			}

			result, err := svc.CompressToTarget(ctx, id, targetKB)
			if err != nil {
				forget(store, id)
				return err
			}
			defer forget(store, id, result.FileID)

			if output == "" {
				output = defaultOutput(input, "target")
			}
			if err := exportArtifact(ctx, store, result.FileID, output); err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), result, fmt.Sprintf("%s: %s", output, result.Message))
		},
	}

	cmd.Flags().Int64VarP(&targetKB, "kb", "k", 0, "Target size in KB")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output path (default <name>-target.pdf)")
	_ = cmd.MarkFlagRequired("kb")
	return cmd
}
