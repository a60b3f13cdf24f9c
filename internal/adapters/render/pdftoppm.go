// Package render provides page rasterizers implementing ports.PageRenderer.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// PDFToPPMRenderer rasterizes PDF pages with poppler's pdftoppm.
type PDFToPPMRenderer struct {
	binary string
	logger *slog.Logger
}

// NewPDFToPPMRenderer creates a renderer. An empty binary selects
// "pdftoppm" from PATH.
func NewPDFToPPMRenderer(binary string, logger *slog.Logger) *PDFToPPMRenderer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFToPPMRenderer{binary: binary, logger: logger}
}

// Available reports whether the binary can be found.
func (r *PDFToPPMRenderer) Available() bool {
	_, err := exec.LookPath(r.binary)
	return err == nil
}

// RenderPage renders one 1-based page so that it fits within bound,
// preserving the aspect ratio.
func (r *PDFToPPMRenderer) RenderPage(ctx context.Context, path string, page int, bound image.Point) (image.Image, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid page %d", page)
	}
	if bound.X <= 0 || bound.Y <= 0 {
		return nil, fmt.Errorf("invalid raster bound %v", bound)
	}

	// -scale-to sizes the longer side, so scaling to the smaller bound fits both.
	n := strconv.Itoa(page)
	img, err := r.run(ctx, []string{
		"-f", n, "-l", n,
		"-png", "-singlefile",
		"-scale-to", strconv.Itoa(min(bound.X, bound.Y)),
		path,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Rendered page", "path", path, "page", page, "bounds", img.Bounds().String())
	return img, nil
}

func (r *PDFToPPMRenderer) run(ctx context.Context, args []string) (image.Image, error) {
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running %s: %w: %s", r.binary, err, strings.TrimSpace(stderr.String()))
	}

	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decoding %s output: %w", r.binary, err)
	}
	return img, nil
}
