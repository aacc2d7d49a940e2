package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/philippgille/chromem-go"
)

const chromemCollection = "documents"

// ChromemStore implements VectorStore with an embedded chromem-go
// collection. Records always carry their own embedding; the collection's
// embedding function is never expected to run.
type ChromemStore struct {
	col  *chromem.Collection
	dims int
}

// NewChromemStore opens a collection in memory, or persisted under dir when
// dir is non-empty.
func NewChromemStore(dir string, dims int) (*ChromemStore, error) {
	db := chromem.NewDB()
	if dir != "" {
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("vector store chromem: open %s: %w", dir, err)
		}
	}

	col, err := db.GetOrCreateCollection(chromemCollection, nil, refuseToEmbed)
	if err != nil {
		return nil, fmt.Errorf("vector store chromem: collection: %w", err)
	}
	return &ChromemStore{col: col, dims: dims}, nil
}

func refuseToEmbed(context.Context, string) ([]float32, error) {
	return nil, errors.New("vector store chromem: documents must carry an embedding")
}

// Dimensions implements VectorStore.
func (s *ChromemStore) Dimensions() int { return s.dims }

// Add implements VectorStore.
func (s *ChromemStore) Add(ctx context.Context, rec Record) error {
	if err := checkDimensions(rec.Embedding, s.dims); err != nil {
		return err
	}
	err := s.col.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: normalize(rec.Embedding),
		Metadata:  rec.Metadata.Map(),
	})
	if err != nil {
		return fmt.Errorf("vector store chromem: add document: %w", err)
	}
	return nil
}

// Search implements VectorStore. chromem rejects nResults larger than the
// collection, so k is clamped to the current count.
func (s *ChromemStore) Search(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if err := checkDimensions(embedding, s.dims); err != nil {
		return nil, err
	}
	k = min(k, s.col.Count())
	if k <= 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, normalize(embedding), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector store chromem: query: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Record: Record{
				ID:        r.ID,
				Text:      r.Content,
				Embedding: r.Embedding,
				Metadata:  metadataFromMap(r.Metadata),
			},
			Similarity: float64(r.Similarity),
		})
	}
	return rankMatches(matches, k), nil
}

var _ VectorStore = (*ChromemStore)(nil)
