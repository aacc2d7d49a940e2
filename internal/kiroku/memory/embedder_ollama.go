package memory

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"
)

const defaultOllamaEmbeddingModel = "nomic-embed-text"

// OllamaEmbedder embeds text with a local ollama daemon.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder wraps client. An empty model selects nomic-embed-text
// (768 dimensions).
func NewOllamaEmbedder(client *api.Client, model string) *OllamaEmbedder {
	if model == "" {
		model = defaultOllamaEmbeddingModel
	}
	return &OllamaEmbedder{client: client, model: model}
}

// Embed calls the /api/embed endpoint with a single input.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder ollama: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embedder ollama: no embedding returned for model %q", e.model)
	}
	return resp.Embeddings[0], nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
