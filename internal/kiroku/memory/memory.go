// Package memory implements Kiroku's two memories.
//
// Short-term memory is a per-session window of the most recent chat turns,
// fed to the language model as conversation history. Long-term memory is a
// vector store of past turns: each completed turn is embedded and appended,
// and each new query is embedded and matched against it by cosine
// similarity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SourceUserChat tags every record written by the chat endpoint.
const SourceUserChat = "user_chat"

// TimestampLayout formats Metadata.Timestamp (local wall time, microseconds).
const TimestampLayout = "2006-01-02 15:04:05.000000"

// DefaultTopK is the number of records Retrieve returns when k <= 0.
const DefaultTopK = 3

// ErrDimensionMismatch is returned when an embedding's length differs from
// the vector store's configured width. It signals misconfiguration (wrong
// embedding model for the table) and is never retried.
var ErrDimensionMismatch = errors.New("memory: embedding dimension mismatch")

// Record is one long-term memory entry. Records are immutable once stored.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  Metadata
}

// Metadata is attached to every record.
type Metadata struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// Map returns the metadata as a flat string map.
func (m Metadata) Map() map[string]string {
	return map[string]string{"timestamp": m.Timestamp, "source": m.Source}
}

// metadataFromMap is the inverse of Metadata.Map.
func metadataFromMap(m map[string]string) Metadata {
	return Metadata{Timestamp: m["timestamp"], Source: m["source"]}
}

// Match is a record returned by a similarity search.
type Match struct {
	Record
	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float64
}

// Embedder maps text to a fixed-width vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists records and answers nearest-neighbour queries.
type VectorStore interface {
	// Add appends a record. The embedding must have Dimensions() entries.
	Add(ctx context.Context, rec Record) error

	// Search returns up to k records nearest to embedding, most similar first.
	Search(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Dimensions is the configured embedding width.
	Dimensions() int
}

// Turn is one completed exchange in a session's short-term window.
type Turn struct {
	Query    string    `json:"query"`
	Response string    `json:"response"`
	At       time.Time `json:"at"`
}

// Window is the short-term memory: the last few turns per session.
type Window interface {
	// Turns returns the session's turns, oldest first.
	Turns(ctx context.Context, sessionID string) ([]Turn, error)

	// Append adds a turn, evicting the oldest once the window is full.
	Append(ctx context.Context, sessionID string, turn Turn) error
}

// checkDimensions returns ErrDimensionMismatch when len(v) != want.
func checkDimensions(v []float32, want int) error {
	if len(v) != want {
		return &DimensionError{Got: len(v), Want: want}
	}
	return nil
}

// DimensionError carries the offending widths and unwraps to
// ErrDimensionMismatch.
type DimensionError struct {
	Got, Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: got %d, store expects %d", ErrDimensionMismatch, e.Got, e.Want)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }
