// Package entities contains core business entities.
// These are pure domain objects with no external dependencies.
package entities

import "time"

// Document is a handle to one source document in the corpus.
// It carries no content: openers read it lazily, page by page.
type Document struct {
	ID      string
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// RawChunk is the text of one page/unit as produced by extraction,
// before filtering or embedding.
type RawChunk struct {
	SourceID string
	Text     string
}

// Chunk is a unit of indexed content.
type Chunk struct {
	SourceID  string
	Text      string
	Embedding []float32 // Fixed length for a given store
}

// Record is the persisted form of a Chunk.
// ID is assigned by the store at insert time and only ever grows.
type Record struct {
	ID        int64
	SourceID  string
	Text      string
	Embedding []float32
	RunID     string // Indexing pass that wrote the record
}

// QueryResult is one ranked candidate.
type QueryResult struct {
	Score    float32
	SourceID string
	Text     string
}

// IndexState tracks the engine's one-time indexing transition.
type IndexState int32

const (
	NotIndexed IndexState = iota
	Indexing
	Indexed
)

func (s IndexState) String() string {
	switch s {
	case NotIndexed:
		return "not-indexed"
	case Indexing:
		return "indexing"
	case Indexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// IndexReport summarizes one indexing pass.
type IndexReport struct {
	RunID           string
	Documents       int
	FailedDocuments []FailedDocument
	Chunks          int // Raw chunks produced by extraction
	SkippedChunks   int // Too short, failed to embed, or rejected by the store
	Inserted        int
	Reused          bool // Pass was satisfied by a persisted index marker
	Discarded       bool // Records of an aborted pass were removed from the store
	Duration        time.Duration
}

// FailedDocument records a document that could not be extracted.
type FailedDocument struct {
	Path   string
	Reason string
}
