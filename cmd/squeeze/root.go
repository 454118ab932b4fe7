package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lgulliver/pdfshrink/internal/compress"
	"github.com/lgulliver/pdfshrink/internal/service"
	"github.com/lgulliver/pdfshrink/internal/storage"
	"github.com/lgulliver/pdfshrink/pkg/config"
	"github.com/lgulliver/pdfshrink/pkg/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// newEngine builds the compression engine; tests replace it
var newEngine = func(binary string) compress.Engine {
	return compress.NewGhostscriptEngine(binary)
}

// cli carries the configuration shared by every subcommand
type cli struct {
	cfg    *config.Config
	asJSON bool
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: config.LoadFromEnv()}

	cmd := &cobra.Command{
		Use:   "squeeze",
		Short: "Compress PDFs with Ghostscript from the command line",
		Long: `squeeze runs the same compression core as the pdfshrink API gateway
against local files: single-preset compression, target-size search and
retention sweeps over a storage directory.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.cfg.Logging.SetupLogging()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.cfg.Storage.LocalPath, "dir", c.cfg.Storage.LocalPath, "Working storage directory")
	flags.StringVar(&c.cfg.Compression.Binary, "gs", c.cfg.Compression.Binary, "Ghostscript binary")
	flags.DurationVar(&c.cfg.Compression.Timeout, "timeout", c.cfg.Compression.Timeout, "Timeout for one Ghostscript run")
	flags.StringVar(&c.cfg.Logging.Level, "log-level", c.cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flags.StringVar(&c.cfg.Logging.Format, "log-format", "text", "Log format (json, text)")
	flags.BoolVar(&c.asJSON, "json", false, "Print results as JSON")

	cmd.AddCommand(
		newCompressCmd(c),
		newTargetCmd(c),
		newSweepCmd(c),
		newVersionCmd(),
	)
	return cmd
}

func (c *cli) store() (storage.ArtifactStore, error) {
	return storage.NewStorageFactory(&c.cfg.Storage).CreateStorage()
}

func (c *cli) service() (*service.Service, storage.ArtifactStore, error) {
	store, err := c.store()
	if err != nil {
		return nil, nil, err
	}
	return service.NewService(store, newEngine(c.cfg.Compression.Binary), c.cfg, nil), store, nil
}

// importFile copies a local PDF into the store under a fresh id
func importFile(ctx context.Context, store storage.ArtifactStore, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ok, err := utils.HasPDFHeader(f)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s is not a PDF", path)
	}

	id := utils.GenerateFileID(filepath.Base(path))
	if _, err := store.Put(ctx, id, f); err != nil {
		return "", err
	}
	return id, nil
}

// exportArtifact writes a stored artifact to a local path
func exportArtifact(ctx context.Context, store storage.ArtifactStore, id, path string) error {
	content, _, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	defer content.Close()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}

// forget removes working artifacts once their result is exported
func forget(store storage.ArtifactStore, ids ...string) {
	ctx := context.Background()
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			log.Debug().Err(err).Str("id", id).Msg("failed to remove working artifact")
		}
	}
}

// defaultOutput derives report-<suffix>.pdf next to input
func defaultOutput(input, suffix string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "-" + suffix + ".pdf"
}

func (c *cli) print(w io.Writer, v interface{}, text string) error {
	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
