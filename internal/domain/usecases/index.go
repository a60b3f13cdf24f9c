// Package usecases contains application business rules.
// Usecases orchestrate entities and depend only on port interfaces.
package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// DefaultMinChunkChars is the trimmed length a chunk must exceed to be indexed.
const DefaultMinChunkChars = 50

// IndexPolicy decides what happens to a store that already holds records.
type IndexPolicy string

const (
	// PolicyReindex re-extracts the corpus in every process and appends
	// whatever it finds, duplicates included.
	PolicyReindex IndexPolicy = "reindex"

	// PolicyPersisted skips extraction when the store was last fully
	// indexed from an identical corpus.
	PolicyPersisted IndexPolicy = "persisted"
)

// IndexerConfig tunes an Indexer. Zero values select defaults.
type IndexerConfig struct {
	MinChunkChars int
	Workers       int
	Policy        IndexPolicy
}

// Indexer runs the extract → embed → store pass over a corpus.
type Indexer struct {
	source    ports.DocumentSource
	extractor *TextExtractor
	embedder  ports.EmbeddingService
	store     ports.VectorStore
	cfg       IndexerConfig
	logger    *slog.Logger
}

// NewIndexer creates an Indexer with injected dependencies.
func NewIndexer(
	source ports.DocumentSource,
	extractor *TextExtractor,
	embedder ports.EmbeddingService,
	store ports.VectorStore,
	cfg IndexerConfig,
	logger *slog.Logger,
) *Indexer {
	if cfg.MinChunkChars <= 0 {
		cfg.MinChunkChars = DefaultMinChunkChars
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyReindex
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		source:    source,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run indexes every document of the source once.
// Per-document and per-chunk failures are logged and counted in the report;
// only listing failures, cancellation and panics abort the pass. An aborted
// pass still returns its report so the run can be told apart.
func (ix *Indexer) Run(ctx context.Context) (*entities.IndexReport, error) {
	start := time.Now()
	report := &entities.IndexReport{RunID: uuid.NewString()}

	docs, err := ix.source.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	report.Documents = len(docs)

	markers, _ := ix.store.(ports.IndexMarkerStore)
	var fingerprint string
	if ix.cfg.Policy == PolicyPersisted && markers != nil {
		fingerprint = Fingerprint(docs, ix.embedder.Dimension())
		stored, err := markers.IndexMarker(ctx)
		if err != nil {
			ix.logger.Warn("Failed to read index marker", "error", err)
		} else if stored == fingerprint {
			report.Reused = true
			report.Duration = time.Since(start)
			ix.logger.Info("Corpus unchanged, reusing stored index", "documents", len(docs))
			return report, nil
		}
	}

	ix.logger.Info("Indexing documents", "documents", len(docs), "run_id", report.RunID, "workers", ix.cfg.Workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Workers)

	for _, doc := range docs {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("indexing %s: panic: %v", doc.Path, r)
				}
			}()

			stats, err := ix.indexDocument(gctx, doc, report.RunID)

			mu.Lock()
			defer mu.Unlock()
			report.Chunks += stats.chunks
			report.SkippedChunks += stats.skipped
			report.Inserted += stats.inserted
			if stats.failure != "" {
				report.FailedDocuments = append(report.FailedDocuments, entities.FailedDocument{
					Path:   doc.Path,
					Reason: stats.failure,
				})
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return ix.abort(ctx, report, err)
	}
	if err := ctx.Err(); err != nil {
		return ix.abort(ctx, report, err)
	}

	if fingerprint != "" {
		if err := markers.SetIndexMarker(ctx, fingerprint); err != nil {
			ix.logger.Warn("Failed to save index marker", "error", err)
		}
	}

	report.Duration = time.Since(start)
	ix.logger.Info("Indexing complete",
		"documents", report.Documents,
		"failed", len(report.FailedDocuments),
		"chunks", report.Chunks,
		"inserted", report.Inserted,
		"skipped", report.SkippedChunks,
		"duration", report.Duration,
	)
	return report, nil
}

// abort removes the records a failed pass already inserted. The report is
// returned alongside the error; Discarded tells whether removal succeeded.
func (ix *Indexer) abort(ctx context.Context, report *entities.IndexReport, cause error) (*entities.IndexReport, error) {
	ix.logger.Warn("Indexing aborted", "run_id", report.RunID, "inserted", report.Inserted, "error", cause)

	discarder, ok := ix.store.(ports.RunDiscarder)
	if !ok {
		return report, cause
	}
	n, err := discarder.DiscardRun(context.WithoutCancel(ctx), report.RunID)
	if err != nil {
		ix.logger.Warn("Failed to discard aborted run", "run_id", report.RunID, "error", err)
		return report, cause
	}
	report.Discarded = true
	ix.logger.Info("Discarded aborted run", "run_id", report.RunID, "records", n)
	return report, cause
}

type docStats struct {
	chunks   int
	skipped  int
	inserted int
	failure  string
}

// indexDocument inserts one document's chunks in page order.
// The returned error is non-nil only for cancellation.
func (ix *Indexer) indexDocument(ctx context.Context, doc entities.Document, runID string) (docStats, error) {
	var stats docStats

	raw, err := ix.extractor.Extract(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		ix.logger.Warn("Failed to extract document", "path", doc.Path, "error", err)
		stats.failure = err.Error()
		return stats, nil
	}
	stats.chunks = len(raw)

	for _, rc := range raw {
		cleaned := strings.TrimSpace(rc.Text)
		if utf8.RuneCountInString(cleaned) <= ix.cfg.MinChunkChars {
			stats.skipped++
			continue
		}

		emb, err := ix.embedder.Embed(ctx, cleaned)
		if err != nil || len(emb) == 0 {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			ix.logger.Warn("Failed to embed chunk", "source", rc.SourceID, "error", err)
			stats.skipped++
			continue
		}

		chunk := entities.Chunk{SourceID: rc.SourceID, Text: cleaned, Embedding: emb}
		if err := ix.store.Insert(ctx, chunk, runID); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			ix.logger.Warn("Failed to store chunk", "source", rc.SourceID, "error", err)
			stats.skipped++
			continue
		}
		stats.inserted++
	}

	ix.logger.Debug("Indexed document", "path", doc.Path, "chunks", stats.chunks, "inserted", stats.inserted)
	return stats, nil
}

// Fingerprint identifies a corpus state together with the embedding
// dimension it was indexed at.
func Fingerprint(docs []entities.Document, dimension int) string {
	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = fmt.Sprintf("%s|%s|%d|%d", d.ID, d.Path, d.Size, d.ModTime.UnixNano())
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "dim=%d\n", dimension)
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
