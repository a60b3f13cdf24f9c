// Package ocr provides OCR adapters implementing ports.OCRService.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultServiceURL is where the OCR helper service listens unless configured.
const DefaultServiceURL = "http://127.0.0.1:8089"

// ServiceRecognizer sends page images to a local OCR helper service.
// The service accepts a PNG body on POST /recognize and answers
// {"text": "...", "error": "..."}.
type ServiceRecognizer struct {
	serviceURL string
	client     *http.Client
	helperCmd  *exec.Cmd
	maxElapsed time.Duration
	logger     *slog.Logger
}

// NewServiceRecognizer creates a recognizer for the service at serviceURL.
func NewServiceRecognizer(serviceURL string, logger *slog.Logger) *ServiceRecognizer {
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceRecognizer{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxElapsed: 10 * time.Second,
		logger:     logger,
	}
}

// recognizeResponse is the service response format.
type recognizeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Recognize returns the text found in img.
func (r *ServiceRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}
	data := buf.Bytes()

	var text string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serviceURL+"/recognize", bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "image/png")

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("calling OCR service: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("OCR service returned status %d", resp.StatusCode)
		}

		var result recognizeResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		if result.Error != "" {
			return backoff.Permanent(fmt.Errorf("OCR error: %s", result.Error))
		}
		text = result.Text
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = r.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return text, nil
}

// StartService launches the helper script with interpreter (python3 when
// empty) and waits until it reports healthy.
// Returns a cleanup function to stop it.
func (r *ServiceRecognizer) StartService(ctx context.Context, interpreter, scriptPath string) (func(), error) {
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("OCR helper not found at %s: %w", scriptPath, err)
	}
	if interpreter == "" {
		interpreter = "python3"
	}

	r.helperCmd = exec.CommandContext(ctx, interpreter, scriptPath)
	r.helperCmd.Stdout = os.Stderr
	r.helperCmd.Stderr = os.Stderr

	if err := r.helperCmd.Start(); err != nil {
		return nil, fmt.Errorf("starting OCR helper: %w", err)
	}

	// Wait for the helper to come up
	b := backoff.NewConstantBackOff(250 * time.Millisecond)
	err := backoff.Retry(func() error {
		if r.IsServiceHealthy(ctx) {
			return nil
		}
		return fmt.Errorf("OCR helper not ready")
	}, backoff.WithContext(backoff.WithMaxRetries(b, 40), ctx))
	if err != nil {
		r.helperCmd.Process.Kill()
		r.helperCmd.Wait()
		return nil, err
	}
	r.logger.Info("OCR helper started", "url", r.serviceURL, "pid", r.helperCmd.Process.Pid)

	cleanup := func() {
		if r.helperCmd != nil && r.helperCmd.Process != nil {
			r.helperCmd.Process.Kill()
			r.helperCmd.Wait()
		}
	}
	return cleanup, nil
}

// IsServiceHealthy checks if the OCR service is running.
func (r *ServiceRecognizer) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
