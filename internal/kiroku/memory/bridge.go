package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Texter is implemented by structured responses that expose their primary
// output text.
type Texter interface {
	Text() string
}

// Bridge is the long-term memory round trip: embed and append after a turn,
// embed and search before the next one.
type Bridge struct {
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewBridge returns a Bridge over embedder and store. If logger is nil, the
// default slog logger is used.
func NewBridge(embedder Embedder, store VectorStore, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{embedder: embedder, store: store, logger: logger, now: time.Now}
}

// CheckDimensions embeds a probe string and compares its width with the
// store's. Call it once at startup: a mismatch means the embedding model
// does not fit the table and the process should not serve.
func (b *Bridge) CheckDimensions(ctx context.Context) error {
	vec, err := b.embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("memory: probe embedder: %w", err)
	}
	return checkDimensions(vec, b.store.Dimensions())
}

// Store persists one completed turn. The record text is the query and the
// response text separated by a newline.
func (b *Bridge) Store(ctx context.Context, query string, response any) error {
	text := query + "\n" + ResponseText(response)

	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("memory: embed turn: %w", err)
	}

	rec := Record{
		ID:        uuid.NewString(),
		Text:      text,
		Embedding: vec,
		Metadata: Metadata{
			Timestamp: b.now().Format(TimestampLayout),
			Source:    SourceUserChat,
		},
	}
	if err := b.store.Add(ctx, rec); err != nil {
		return fmt.Errorf("memory: store turn: %w", err)
	}

	b.logger.Debug("memory: stored turn", "id", rec.ID, "text_len", len(text))
	return nil
}

// Retrieve returns up to k records most similar to query, most similar
// first. k <= 0 selects DefaultTopK. It has no side effects.
func (b *Bridge) Retrieve(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	matches, err := b.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	return matches, nil
}

// ResponseText extracts the primary text of a response: strings are used
// as is, Texter values and maps with an "output" key yield that field, and
// anything else is formatted with fmt.
func ResponseText(response any) string {
	switch r := response.(type) {
	case nil:
		return ""
	case string:
		return r
	case Texter:
		return r.Text()
	case map[string]any:
		if out, ok := r["output"]; ok {
			return fmt.Sprint(out)
		}
	case map[string]string:
		if out, ok := r["output"]; ok {
			return out
		}
	}
	return fmt.Sprint(response)
}
