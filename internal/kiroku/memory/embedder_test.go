package memory

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Hello, World")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Len(t, a, 128)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, cosineSimilarity(a, b), 1e-6)
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(512)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "hello")
	near, _ := e.Embed(ctx, "hello\nworld")
	far, _ := e.Embed(ctx, "quarterly earnings report")

	assert.Greater(t, cosineSimilarity(q, near), cosineSimilarity(q, far))
}

func TestHashEmbedder_Empty(t *testing.T) {
	v, err := NewHashEmbedder(8).Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)

	v, err = NewHashEmbedder(0).Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 768)
}

func TestOllamaEmbedder(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"nomic-embed-text","embeddings":[[0.25,0.5,0.75]]}`)
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	e := NewOllamaEmbedder(api.NewClient(base, srv.Client()), "")
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, 0.5, 0.75}, vec)
	assert.Equal(t, "nomic-embed-text", gotReq["model"])
	assert.Equal(t, "hello", gotReq["input"])
}

func TestOpenAIEmbedder(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"object":"list",
			"model":"sentence-transformers/all-mpnet-base-v2",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,-0.5]}],
			"usage":{"prompt_tokens":1,"total_tokens":1}
		}`)
	}))
	defer srv.Close()

	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithAPIKey("hf-token"),
		option.WithMaxRetries(0),
	)
	vec, err := NewOpenAIEmbedder(client, "").Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5, -0.5}, vec)
	assert.Equal(t, "sentence-transformers/all-mpnet-base-v2", gotReq["model"])
	assert.Equal(t, "hello", gotReq["input"])
}
