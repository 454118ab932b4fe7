package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompressCmd(c *cli) *cobra.Command {
	var quality, output string

	cmd := &cobra.Command{
		Use:   "compress <file.pdf>",
		Short: "Compress a PDF with one quality preset",
		Args:  cobra.ExactArgs(1),
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

			result, err := svc.Compress(ctx, id, quality)
			if err != nil {
				forget(store, id)
				return err
			}
			defer forget(store, id, result.FileID)

			if output == "" {
				output = defaultOutput(input, "compressed")
			}
			if err := exportArtifact(ctx, store, result.FileID, output); err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), result, fmt.Sprintf(
				"%s: %d KB -> %d KB (%s saved, quality %s)",
				output, result.OriginalSizeKB, result.CompressedSizeKB, result.CompressionRatio, result.Quality))
		},
	}

	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Preset: /screen, /ebook, /printer or /prepress (default from DEFAULT_QUALITY)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output path (default <name>-compressed.pdf)")
	return cmd
}
