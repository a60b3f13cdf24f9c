package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// DefaultMaxAnswerChars caps the length of a returned answer.
const DefaultMaxAnswerChars = 500

// EngineConfig tunes a SearchEngine. Zero values select defaults.
type EngineConfig struct {
	TopK           int
	MaxAnswerChars int
	QueryTimeout   time.Duration // 0 means no timeout around query embedding
}

// SearchEngine answers queries over a corpus that it indexes lazily,
// exactly once per engine, on first use.
//
// State moves NotIndexed → Indexing → Indexed. Concurrent callers block
// while indexing runs. A failed or panicking pass moves back to NotIndexed
// so the next call retries.
type SearchEngine struct {
	mu    sync.Mutex // guards the indexing transition
	state atomic.Int32

	indexer  *Indexer
	embedder ports.EmbeddingService
	store    ports.VectorStore
	cfg      EngineConfig
	logger   *slog.Logger

	lastReport atomic.Pointer[entities.IndexReport]

	abortedMu sync.RWMutex
	aborted   map[string]struct{} // runs whose records could not be discarded
}

// NewSearchEngine creates a SearchEngine with injected dependencies.
func NewSearchEngine(
	indexer *Indexer,
	embedder ports.EmbeddingService,
	store ports.VectorStore,
	cfg EngineConfig,
	logger *slog.Logger,
) *SearchEngine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxAnswerChars <= 0 {
		cfg.MaxAnswerChars = DefaultMaxAnswerChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchEngine{
		indexer:  indexer,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// State reports the current indexing state without blocking.
func (e *SearchEngine) State() entities.IndexState {
	return entities.IndexState(e.state.Load())
}

// LastReport returns the report of the completed indexing pass, or nil.
func (e *SearchEngine) LastReport() *entities.IndexReport {
	return e.lastReport.Load()
}

// EnsureIndexed runs the indexing pass if it has not completed yet.
func (e *SearchEngine) EnsureIndexed(ctx context.Context) error {
	if e.State() == entities.Indexed {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == entities.Indexed {
		return nil
	}

	e.state.Store(int32(entities.Indexing))
	report, err := e.runIndex(ctx)
	if err != nil {
		if report != nil && !report.Discarded {
			e.ignoreRun(report.RunID)
		}
		e.state.Store(int32(entities.NotIndexed))
		e.logger.Error("Indexing failed", "error", err)
		return fmt.Errorf("indexing corpus: %w", err)
	}

	e.lastReport.Store(report)
	e.state.Store(int32(entities.Indexed))
	return nil
}

func (e *SearchEngine) runIndex(ctx context.Context) (report *entities.IndexReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.indexer.Run(ctx)
}

func (e *SearchEngine) ignoreRun(runID string) {
	e.abortedMu.Lock()
	defer e.abortedMu.Unlock()
	if e.aborted == nil {
		e.aborted = make(map[string]struct{})
	}
	e.aborted[runID] = struct{}{}
	e.logger.Warn("Ignoring records of aborted run", "run_id", runID)
}

// dropAborted filters out records left behind by failed passes.
func (e *SearchEngine) dropAborted(records []entities.Record) []entities.Record {
	e.abortedMu.RLock()
	defer e.abortedMu.RUnlock()
	if len(e.aborted) == 0 {
		return records
	}
	kept := records[:0]
	for _, r := range records {
		if _, skip := e.aborted[r.RunID]; !skip {
			kept = append(kept, r)
		}
	}
	return kept
}

// Retrieve returns up to topK ranked chunks for query.
func (e *SearchEngine) Retrieve(ctx context.Context, query string, topK int) ([]entities.QueryResult, error) {
	if err := e.EnsureIndexed(ctx); err != nil {
		return nil, err
	}

	queryEmbedding, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	records, err := e.store.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning store: %w", err)
	}

	results := Rank(queryEmbedding, e.dropAborted(records), topK)
	e.logger.Debug("Ranked records", "records", len(records), "results", len(results))
	return results, nil
}

// Answer returns the text of the best match, truncated to the configured cap.
// It fails with ErrEmbeddingFailure or ErrNoAnswerFound.
func (e *SearchEngine) Answer(ctx context.Context, query string) (string, error) {
	results, err := e.Retrieve(ctx, query, e.cfg.TopK)
	if err != nil {
		return "", err
	}

	if len(results) == 0 || strings.TrimSpace(results[0].Text) == "" {
		return "", ErrNoAnswerFound
	}

	best := results[0]
	e.logger.Debug("Best match", "source", best.SourceID, "score", best.Score)
	return Truncate(best.Text, e.cfg.MaxAnswerChars), nil
}

// Search is the single user-facing entry point: it returns either an answer
// or a human-readable message.
func (e *SearchEngine) Search(ctx context.Context, query string) string {
	answer, err := e.Answer(ctx, query)
	switch {
	case err == nil:
		return answer
	case errors.Is(err, ErrNoAnswerFound):
		return MsgNoAnswerFound
	case errors.Is(err, ErrEmbeddingFailure):
		return MsgEmbeddingFailure
	default:
		return MsgSearchFailed + ": " + err.Error()
	}
}

func (e *SearchEngine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}

	emb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("Failed to embed query", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	if len(emb) == 0 {
		return nil, ErrEmbeddingFailure
	}
	return emb, nil
}

// Truncate returns at most limit characters (runes) of s.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
