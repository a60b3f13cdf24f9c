package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// OllamaAdapter implements ports.EmbeddingService against a local Ollama server.
// Transient failures (connection errors, 5xx) are retried with exponential backoff.
type OllamaAdapter struct {
	baseURL    string
	model      string
	client     *http.Client
	dimension  atomic.Int64
	maxElapsed time.Duration
	logger     *slog.Logger
}

// NewOllamaAdapter creates a new Ollama embedding adapter.
// dimension may be 0, in which case Probe must be called before use.
func NewOllamaAdapter(baseURL, model string, dimension int, logger *slog.Logger) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &OllamaAdapter{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxElapsed: 30 * time.Second,
		logger:     logger,
	}
	a.dimension.Store(int64(dimension))
	return a
}

// SetRetryTimeout bounds the total time spent retrying one request.
func (a *OllamaAdapter) SetRetryTimeout(d time.Duration) {
	a.maxElapsed = d
}

// ollamaEmbedRequest is the Ollama API request format.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is the Ollama API response format.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Dimension returns the declared or probed vector length.
func (a *OllamaAdapter) Dimension() int {
	return int(a.dimension.Load())
}

// Probe learns the model's vector length when none was declared.
func (a *OllamaAdapter) Probe(ctx context.Context) error {
	if a.Dimension() > 0 {
		return nil
	}
	emb, err := a.request(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probing %s: %w", a.model, err)
	}
	if len(emb) == 0 {
		return fmt.Errorf("probing %s: empty embedding", a.model)
	}
	a.dimension.Store(int64(len(emb)))
	a.logger.Info("Probed embedding dimension", "model", a.model, "dimension", len(emb))
	return nil
}

// Embed generates an embedding for a single text.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := a.request(ctx, text)
	if err != nil {
		return nil, err
	}
	if dim := a.Dimension(); dim > 0 && len(emb) != dim {
		return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", a.model, len(emb), dim)
	}
	return emb, nil
}

func (a *OllamaAdapter) request(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(ollamaEmbedRequest{Model: a.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var embedding []float32
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			a.logger.Debug("Ollama call failed", "url", a.baseURL, "error", err)
			return fmt.Errorf("calling Ollama: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("Ollama returned status %d", resp.StatusCode))
		}

		var embedResp ollamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		embedding = embedResp.Embedding
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = a.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	a.logger.Debug("Got embedding", "model", a.model, "dimensions", len(embedding))
	return embedding, nil
}
