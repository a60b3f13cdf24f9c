// Package vectordb provides vector store adapters.
// Adapters implementing ports.VectorStore.
package vectordb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DBFileName is the store's file inside the data directory.
const DBFileName = "vectors.sqlite"

const (
	metaDimension   = "dimension"
	metaIndexMarker = "index_marker"
)

// SQLiteStore implements ports.VectorStore with SQLite persistence.
// Embeddings are stored as packed float32 blobs (see EncodeEmbedding).
// Writes are serialized; scans may run concurrently with each other.
type SQLiteStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	dimension int // 0 until the first insert
	logger    *slog.Logger
}

// NewSQLiteStore opens (or creates) the store under dataPath.
func NewSQLiteStore(dataPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, DBFileName)
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		path:   dbPath,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if err := store.loadDimension(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading metadata: %w", err)
	}

	logger.Debug("Opened vector store", "path", dbPath, "dimension", store.dimension)
	return store, nil
}

// initSchema creates the necessary tables.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vectors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_run_id ON vectors(run_id);
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) loadDimension() error {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", metaDimension).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parsing stored dimension %q: %w", value, err)
	}
	s.dimension = dim
	return nil
}

// Insert appends one record. The first insert fixes the store's
// dimensionality; later inserts of another length fail with
// ErrDimensionMismatch.
func (s *SQLiteStore) Insert(ctx context.Context, chunk entities.Chunk, runID string) error {
	if len(chunk.Embedding) == 0 {
		return ErrEmptyEmbedding
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 && len(chunk.Embedding) != s.dimension {
		return fmt.Errorf("%w: store has %d, got %d", ErrDimensionMismatch, s.dimension, len(chunk.Embedding))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if s.dimension == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
			metaDimension, strconv.Itoa(len(chunk.Embedding)),
		)
		if err != nil {
			return fmt.Errorf("recording dimension: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vectors (source, text, embedding, run_id)
		VALUES (?, ?, ?, ?)
	`, chunk.SourceID, chunk.Text, EncodeEmbedding(chunk.Embedding), runID)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing record: %w", err)
	}
	if s.dimension == 0 {
		s.dimension = len(chunk.Embedding)
	}
	return nil
}

// ScanAll returns every record in insertion order.
// Records with a corrupt embedding blob are logged and skipped.
func (s *SQLiteStore) ScanAll(ctx context.Context) ([]entities.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, text, embedding, run_id
		FROM vectors
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []entities.Record
	for rows.Next() {
		var rec entities.Record
		var blob []byte

		if err := rows.Scan(&rec.ID, &rec.SourceID, &rec.Text, &blob, &rec.RunID); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		rec.Embedding, err = DecodeEmbedding(blob)
		if err != nil {
			s.logger.Warn("Skipping corrupt record", "id", rec.ID, "source", rec.SourceID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&count)
	return count, err
}

// RunCount returns the number of distinct indexing passes in the store.
func (s *SQLiteStore) RunCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT run_id) FROM vectors").Scan(&count)
	return count, err
}

// DiscardRun deletes every record written by runID.
func (s *SQLiteStore) DiscardRun(ctx context.Context, runID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM vectors WHERE run_id = ?", runID)
	if err != nil {
		return 0, fmt.Errorf("discarding run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Dimension returns the store's embedding length, 0 while empty.
func (s *SQLiteStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// IndexMarker returns the fingerprint of the last fully indexed corpus.
func (s *SQLiteStore) IndexMarker(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaIndexMarker).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetIndexMarker records the fingerprint of a fully indexed corpus.
func (s *SQLiteStore) SetIndexMarker(ctx context.Context, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		metaIndexMarker, marker,
	)
	return err
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
