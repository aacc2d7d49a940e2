package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// SQLiteStore implements VectorStore on the documents table created by the
// store package migrations.
//
// Embeddings are kept as JSON float arrays and compared in Go: the pure-Go
// modernc.org/sqlite driver cannot load vector extensions, and brute-force
// cosine similarity is fast enough for a single user's chat history.
type SQLiteStore struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger
}

// NewSQLiteStore returns a SQLiteStore over db for dims-wide embeddings.
// If logger is nil, the default slog logger is used.
func NewSQLiteStore(db *sql.DB, dims int, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{db: db, dims: dims, logger: logger}
}

// Dimensions implements VectorStore.
func (s *SQLiteStore) Dimensions() int { return s.dims }

// Add implements VectorStore.
func (s *SQLiteStore) Add(ctx context.Context, rec Record) error {
	if err := checkDimensions(rec.Embedding, s.dims); err != nil {
		return err
	}

	embeddingJSON, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("vector store sqlite: marshal embedding: %w", err)
	}
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("vector store sqlite: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, content, embedding, dimensions, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Text,
		string(embeddingJSON),
		len(rec.Embedding),
		string(metadataJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("vector store sqlite: insert document: %w", err)
	}

	s.logger.Debug("vector store sqlite: stored document", "id", rec.ID, "text_len", len(rec.Text))
	return nil
}

// Search implements VectorStore. Rows whose stored width differs from the
// store's are skipped.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := checkDimensions(embedding, s.dims); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, embedding, metadata
		FROM documents
		WHERE dimensions = ?
		ORDER BY created_at`,
		s.dims,
	)
	if err != nil {
		return nil, fmt.Errorf("vector store sqlite: query documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.logger.Warn("vector store sqlite: skip malformed row", "err", err)
			continue
		}
		matches = append(matches, Match{
			Record:     rec,
			Similarity: cosineSimilarity(embedding, rec.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector store sqlite: iterate rows: %w", err)
	}

	return rankMatches(matches, k), nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec           Record
		embeddingJSON string
		metadataJSON  sql.NullString
	)
	if err := rows.Scan(&rec.ID, &rec.Text, &embeddingJSON, &metadataJSON); err != nil {
		return Record{}, fmt.Errorf("scan row: %w", err)
	}
	if err := json.Unmarshal([]byte(embeddingJSON), &rec.Embedding); err != nil {
		return Record{}, fmt.Errorf("unmarshal embedding: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return rec, nil
}

var _ VectorStore = (*SQLiteStore)(nil)
