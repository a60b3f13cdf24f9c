package usecases

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"log/slog"
	"strings"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// DefaultMaxRaster bounds the images handed to OCR.
var DefaultMaxRaster = image.Pt(600, 600)

// TextExtractor turns documents into one raw chunk per page/unit.
// Machine-readable text wins; OCR is only consulted for units without it.
type TextExtractor struct {
	opener    ports.DocumentOpener
	ocr       ports.OCRService // nil disables the fallback
	maxRaster image.Point
	logger    *slog.Logger
}

// NewTextExtractor creates an extractor. ocr may be nil.
// A zero maxRaster means DefaultMaxRaster.
func NewTextExtractor(opener ports.DocumentOpener, ocr ports.OCRService, maxRaster image.Point, logger *slog.Logger) *TextExtractor {
	if maxRaster.X <= 0 || maxRaster.Y <= 0 {
		maxRaster = DefaultMaxRaster
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{
		opener:    opener,
		ocr:       ocr,
		maxRaster: maxRaster,
		logger:    logger,
	}
}

// Extract returns the chunks of one document in page order.
// Units that yield no text are skipped. An error means the whole document
// could not be opened or read; a panic inside an adapter is reported the same way.
func (e *TextExtractor) Extract(ctx context.Context, doc entities.Document) (chunks []entities.RawChunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("extracting %s: panic: %v", doc.Name, r)
		}
	}()

	opened, err := e.opener.Open(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", doc.Name, err)
	}
	defer opened.Close()

	for i := 0; i < opened.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := opened.Page(i)
		if err != nil {
			e.logger.Warn("Failed to read page", "path", doc.Path, "page", i+1, "error", err)
			continue
		}

		text := e.pageText(ctx, doc, i, page)
		if text == "" {
			continue
		}
		chunks = append(chunks, entities.RawChunk{
			SourceID: SourceID(doc, i),
			Text:     text,
		})
	}

	return chunks, nil
}

// pageText applies the machine-text-then-OCR rule to one unit.
func (e *TextExtractor) pageText(ctx context.Context, doc entities.Document, i int, page ports.Page) string {
	text, err := page.Text()
	if err != nil {
		e.logger.Debug("No machine text", "path", doc.Path, "page", i+1, "error", err)
	}
	if strings.TrimSpace(text) != "" {
		return text
	}

	if e.ocr == nil {
		return ""
	}

	img, err := page.Image(ctx, e.maxRaster)
	if errors.Is(err, ports.ErrNoImage) {
		return ""
	}
	if err != nil {
		e.logger.Warn("Failed to render page", "path", doc.Path, "page", i+1, "error", err)
		return ""
	}

	text, err = e.ocr.Recognize(ctx, img)
	if err != nil {
		e.logger.Warn("OCR failed", "path", doc.Path, "page", i+1, "error", err)
		return ""
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}

	e.logger.Debug("Used OCR text", "path", doc.Path, "page", i+1, "chars", len(text))
	return text
}

// ExtractAll lazily yields the chunks of every document in order.
// Documents that fail are logged and skipped.
func (e *TextExtractor) ExtractAll(ctx context.Context, docs []entities.Document) iter.Seq[entities.RawChunk] {
	return func(yield func(entities.RawChunk) bool) {
		for _, doc := range docs {
			if ctx.Err() != nil {
				return
			}
			chunks, err := e.Extract(ctx, doc)
			if err != nil {
				e.logger.Warn("Failed to extract document", "path", doc.Path, "error", err)
				continue
			}
			for _, c := range chunks {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// SourceID names the unit at 0-based index page of doc.
func SourceID(doc entities.Document, page int) string {
	return fmt.Sprintf("%s#%d", doc.Name, page+1)
}
