package memory

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

const defaultOpenAIEmbeddingModel = "sentence-transformers/all-mpnet-base-v2"

// OpenAIEmbedder embeds text through any OpenAI-compatible /embeddings
// endpoint: OpenAI itself, the Hugging Face router or a text-embeddings-
// inference server. The client's base URL and credentials are configured
// by the caller.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder wraps client. An empty model selects
// sentence-transformers/all-mpnet-base-v2 (768 dimensions).
func NewOpenAIEmbedder(client openai.Client, model string) *OpenAIEmbedder {
	if model == "" {
		model = defaultOpenAIEmbeddingModel
	}
	return &OpenAIEmbedder{client: client, model: model}
}

// Embed requests a single embedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedder openai: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedder openai: no embedding data returned")
	}

	raw := resp.Data[0].Embedding
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
