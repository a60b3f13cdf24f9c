package vectordb

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
)

// InMemoryStore is a non-durable ports.VectorStore.
// It follows the same append and dimension rules as SQLiteStore.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   []entities.Record
	nextID    int64
	dimension int
	marker    string
}

// NewInMemoryStore creates a new in-memory vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

// Insert appends one record.
func (s *InMemoryStore) Insert(ctx context.Context, chunk entities.Chunk, runID string) error {
	if len(chunk.Embedding) == 0 {
		return ErrEmptyEmbedding
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 && len(chunk.Embedding) != s.dimension {
		return fmt.Errorf("%w: store has %d, got %d", ErrDimensionMismatch, s.dimension, len(chunk.Embedding))
	}
	s.dimension = len(chunk.Embedding)

	emb := make([]float32, len(chunk.Embedding))
	copy(emb, chunk.Embedding)

	s.records = append(s.records, entities.Record{
		ID:        s.nextID,
		SourceID:  chunk.SourceID,
		Text:      chunk.Text,
		Embedding: emb,
		RunID:     runID,
	})
	s.nextID++
	return nil
}

// ScanAll returns a snapshot of all records in insertion order.
func (s *InMemoryStore) ScanAll(ctx context.Context) ([]entities.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Count returns the number of stored records.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// DiscardRun removes every record written by runID.
func (s *InMemoryStore) DiscardRun(ctx context.Context, runID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, r := range s.records {
		if r.RunID != runID {
			kept = append(kept, r)
		}
	}
	n := len(s.records) - len(kept)
	clear(s.records[len(kept):])
	s.records = kept
	return n, nil
}

// Dimension returns the store's embedding length, 0 while empty.
func (s *InMemoryStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// IndexMarker returns the last recorded corpus fingerprint.
func (s *InMemoryStore) IndexMarker(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marker, nil
}

// SetIndexMarker records a corpus fingerprint.
func (s *InMemoryStore) SetIndexMarker(ctx context.Context, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = marker
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}
