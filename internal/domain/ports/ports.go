// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions, adapters implement them.
package ports

import (
	"context"
	"errors"
	"image"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
)

// ErrNoImage is returned by Page.Image when a unit has no raster form.
var ErrNoImage = errors.New("page has no raster representation")

// EmbeddingService turns text into a fixed-length vector.
type EmbeddingService interface {
	// Embed returns a vector of exactly Dimension() floats.
	// The same input always yields the same vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is fixed at construction time.
	Dimension() int
}

// OCRService recognizes text in a raster image.
// An image without text yields "" and no error.
type OCRService interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// PageRenderer rasterizes one page of a document file.
// page is 1-based; the result fits within max.
type PageRenderer interface {
	RenderPage(ctx context.Context, path string, page int, max image.Point) (image.Image, error)
}

// Page is one page/unit of an opened document.
type Page interface {
	// Text returns the machine-readable text of the unit, "" if it has none.
	Text() (string, error)

	// Image renders the unit to a raster no larger than max.
	// Returns ErrNoImage when the unit cannot be rasterized.
	Image(ctx context.Context, max image.Point) (image.Image, error)
}

// OpenedDocument gives page-wise access to a document.
type OpenedDocument interface {
	PageCount() int
	// Page returns the unit at 0-based index i.
	Page(i int) (Page, error)
	Close() error
}

// DocumentOpener opens documents of the formats it supports.
type DocumentOpener interface {
	Open(ctx context.Context, doc entities.Document) (OpenedDocument, error)

	// SupportedExtensions returns file extensions this opener handles.
	SupportedExtensions() []string
}

// DocumentSource enumerates the corpus.
type DocumentSource interface {
	Documents(ctx context.Context) ([]entities.Document, error)
}

// VectorStore is a durable append-only store of embedded chunks.
// Records are never updated. Only the records of an aborted index run
// are ever removed, through RunDiscarder.
type VectorStore interface {
	// Insert appends one record. Safe to call concurrently with ScanAll.
	Insert(ctx context.Context, chunk entities.Chunk, runID string) error

	// ScanAll returns every readable record in insertion order.
	ScanAll(ctx context.Context) ([]entities.Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// IndexMarkerStore is implemented by stores that can remember which corpus
// they were last fully indexed from.
type IndexMarkerStore interface {
	IndexMarker(ctx context.Context) (string, error)
	SetIndexMarker(ctx context.Context, marker string) error
}

// RunDiscarder is implemented by stores that can drop every record written
// by one index run. It returns the number of records removed.
type RunDiscarder interface {
	DiscardRun(ctx context.Context, runID string) (int, error)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
