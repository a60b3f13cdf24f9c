package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"

	"github.com/0xcro3dile/semsearch-go/internal/adapters/embedding"
	"github.com/0xcro3dile/semsearch-go/internal/adapters/loader"
	"github.com/0xcro3dile/semsearch-go/internal/adapters/ocr"
	"github.com/0xcro3dile/semsearch-go/internal/adapters/render"
	"github.com/0xcro3dile/semsearch-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/semsearch-go/internal/config"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
	"github.com/0xcro3dile/semsearch-go/internal/domain/usecases"
)

// storeCloser is a vector store that owns resources.
type storeCloser interface {
	ports.VectorStore
	Dimension() int
	Close() error
}

// app holds the assembled components for one command.
type app struct {
	cfg       *config.AppConfig
	logger    *slog.Logger
	store     storeCloser
	embedder  ports.EmbeddingService
	opener    *loader.MultiOpener
	extractor *usecases.TextExtractor
	engine    *usecases.SearchEngine
	stopOCR   func() // nil unless an OCR helper was started
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// buildApp wires adapters into the engine. When files is non-empty the
// corpus is exactly those files instead of the documents directory.
func buildApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, files []string) (*app, error) {
	store, err := buildStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	recognizer, stopOCR, err := buildOCR(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	closeAll := func() {
		if stopOCR != nil {
			stopOCR()
		}
		store.Close()
	}

	var renderer ports.PageRenderer
	switch cfg.Render.Type {
	case "none", "":
	case "pdftoppm":
		r := render.NewPDFToPPMRenderer(cfg.Render.PDFToPPM.Binary, logger)
		if !r.Available() {
			logger.Warn("pdftoppm not found, scanned PDF pages will be skipped", "binary", cfg.Render.PDFToPPM.Binary)
		} else {
			renderer = r
		}
	default:
		closeAll()
		return nil, fmt.Errorf("unknown renderer: %s", cfg.Render.Type)
	}

	opener := loader.NewMultiOpener(
		loader.NewPDFOpener(renderer),
		loader.NewTextOpener(),
		loader.NewMarkdownOpener(),
		loader.NewImageOpener(),
	)

	var source ports.DocumentSource
	if len(files) > 0 {
		source = loader.NewStaticSource(files...)
	} else {
		exts := cfg.Documents.Extensions
		if len(exts) == 0 {
			exts = opener.SupportedExtensions()
		}
		source = loader.NewDirectorySource(cfg.Documents.Dir, exts, logger)
	}

	extractor := usecases.NewTextExtractor(opener, recognizer,
		image.Pt(cfg.OCR.MaxWidth, cfg.OCR.MaxHeight), logger)

	indexer := usecases.NewIndexer(source, extractor, embedder, store, usecases.IndexerConfig{
		MinChunkChars: cfg.Index.MinChunkChars,
		Workers:       cfg.Index.Workers,
		Policy:        usecases.IndexPolicy(cfg.Index.Policy),
	}, logger)

	engine := usecases.NewSearchEngine(indexer, embedder, store, usecases.EngineConfig{
		TopK:           cfg.Search.TopK,
		MaxAnswerChars: cfg.Search.MaxAnswerChars,
		QueryTimeout:   cfg.Embedder.Timeout(),
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		embedder:  embedder,
		opener:    opener,
		extractor: extractor,
		engine:    engine,
		stopOCR:   stopOCR,
	}, nil
}

func (a *app) Close() error {
	if a.stopOCR != nil {
		a.stopOCR()
	}
	return a.store.Close()
}

func buildStore(cfg *config.AppConfig, logger *slog.Logger) (storeCloser, error) {
	switch cfg.Store.Type {
	case "sqlite", "":
		return vectordb.NewSQLiteStore(cfg.Store.DataDir, logger)
	case "memory":
		return vectordb.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Store.Type)
	}
}

func buildEmbedder(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (ports.EmbeddingService, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		return embedding.NewHashingEmbedder(cfg.Embedder.Dimension, cfg.Embedder.MaxTokens), nil
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			return nil, fmt.Errorf("ollama embedder config missing")
		}
		adapter := embedding.NewOllamaAdapter(cfg.Embedder.Ollama.URL, cfg.Embedder.Ollama.Model, 0, logger)
		if err := adapter.Probe(ctx); err != nil {
			return nil, fmt.Errorf("ollama embedder init failed: %w", err)
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildOCR(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (ports.OCRService, func(), error) {
	switch cfg.OCR.Type {
	case "none", "":
		return nil, nil, nil
	case "tesseract":
		t := ocr.NewTesseractRecognizer(cfg.OCR.Tesseract.Binary, cfg.OCR.Tesseract.Language, logger)
		if !t.Available() {
			logger.Warn("tesseract not found, OCR disabled", "binary", cfg.OCR.Tesseract.Binary)
			return nil, nil, nil
		}
		return t, nil, nil
	case "service":
		svc := cfg.OCR.Service
		rec := ocr.NewServiceRecognizer(svc.URL, logger)
		if svc.Script == "" || rec.IsServiceHealthy(ctx) {
			return rec, nil, nil
		}
		stop, err := rec.StartService(ctx, svc.Interpreter, svc.Script)
		if err != nil {
			return nil, nil, fmt.Errorf("starting OCR service: %w", err)
		}
		return rec, stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown ocr: %s", cfg.OCR.Type)
	}
}
