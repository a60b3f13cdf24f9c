package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"strings"
)

// TesseractRecognizer runs the tesseract CLI on each image.
type TesseractRecognizer struct {
	binary   string
	language string
	logger   *slog.Logger
}

// NewTesseractRecognizer creates a recognizer. Empty arguments select
// "tesseract" from PATH and English.
func NewTesseractRecognizer(binary, language string, logger *slog.Logger) *TesseractRecognizer {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractRecognizer{binary: binary, language: language, logger: logger}
}

// Available reports whether the binary can be found.
func (t *TesseractRecognizer) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

// Recognize pipes img to tesseract as PNG and returns its stdout.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, "stdin", "stdout", "-l", t.language)
	cmd.Stdin = &in
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running %s: %w: %s", t.binary, err, strings.TrimSpace(stderr.String()))
	}

	t.logger.Debug("Tesseract finished", "bounds", img.Bounds().String(), "chars", out.Len())
	return out.String(), nil
}
