package compress

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Fixed engine parameters. Image resolution caps are not user-configurable.
const (
	CompatibilityLevel = "1.4"
	ImageResolutionDPI = 150

	// waitDelay bounds how long Wait blocks on I/O after the process is killed
	waitDelay = 5 * time.Second
)

// Engine runs one external compression. Implementations must block until the
// run has finished and must honour ctx cancellation.
type Engine interface {
	Compress(ctx context.Context, preset Preset, inputPath, outputPath string) error
}

// GhostscriptEngine shells out to the gs binary
type GhostscriptEngine struct {
	Binary string
}

// NewGhostscriptEngine creates an engine using binary, defaulting to "gs"
func NewGhostscriptEngine(binary string) *GhostscriptEngine {
	if binary == "" {
		binary = "gs"
	}
	return &GhostscriptEngine{Binary: binary}
}

// Compress runs gs with the pdfwrite device
func (g *GhostscriptEngine) Compress(ctx context.Context, preset Preset, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, g.Binary, ghostscriptArgs(preset, inputPath, outputPath)...)
	cmd.WaitDelay = waitDelay

	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Debug().
			Str("preset", preset.String()).
			Str("output", strings.TrimSpace(string(output))).
			Msg("ghostscript output")
		return fmt.Errorf("ghostscript %s failed: %w", preset.Token(), err)
	}
	return nil
}

// Available verifies that the binary can be executed
func (g *GhostscriptEngine) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, g.Binary, "--version").Run(); err != nil {
		return fmt.Errorf("%s command not found or not executable: %w", g.Binary, err)
	}
	return nil
}

func ghostscriptArgs(preset Preset, inputPath, outputPath string) []string {
	dpi := fmt.Sprintf("%d", ImageResolutionDPI)
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=" + CompatibilityLevel,
		"-dPDFSETTINGS=" + preset.Token(),
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dColorImageResolution=" + dpi,
		"-dGrayImageResolution=" + dpi,
		"-dMonoImageResolution=" + dpi,
		"-sOutputFile=" + outputPath,
		inputPath,
	}
}
