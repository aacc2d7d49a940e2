package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Kiroku/common/redact"
	"github.com/bdobrica/Kiroku/internal/kiroku/llm"
)

// sqliteEnv keeps Load from requiring Supabase credentials.
func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VECTOR_STORE", "sqlite")
}

func TestLoad_Defaults(t *testing.T) {
	sqliteEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, llm.KindLocal, cfg.LLM.Kind)
	assert.Equal(t, "mistral", cfg.LLM.OllamaModel)
	assert.InDelta(t, 0.7, cfg.LLM.OllamaTemperature, 1e-9)
	assert.InDelta(t, 0.5, cfg.LLM.HostedTemperature, 1e-9)
	assert.Equal(t, 256, cfg.LLM.HostedMaxTokens)
	assert.Equal(t, EmbedderOllama, cfg.Embedder.Backend)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel())
	assert.Equal(t, 768, cfg.VectorStore.Dimensions)
	assert.Equal(t, 5, cfg.Memory.Window)
	assert.Equal(t, 3, cfg.Memory.TopK)
	assert.Equal(t, "https://api.thenewsapi.com", cfg.News.BaseURL)
}

func TestLoad_SupabaseIsDefaultAndRequiresCredentials(t *testing.T) {
	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
	assert.Contains(t, err.Error(), "SUPABASE_API_KEY")

	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_API_KEY", "service-role")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, VectorStoreSupabase, cfg.VectorStore.Backend)
}

func TestLoad_HostedRequiresToken(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("USE_OLLAMA", "false")

	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "HUGGINGFACEHUB_API_TOKEN")

	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "hf_secret")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, llm.KindHosted, cfg.LLM.Kind)

	mc := cfg.ModelConfig()
	assert.Equal(t, llm.KindHosted, mc.Kind)
	assert.Equal(t, "hf_secret", mc.Hosted.APIKey)
	assert.Equal(t, "https://router.huggingface.co/v1", mc.Hosted.BaseURL)
}

func TestLoad_UseOllamaMatchesOnlyTrue(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "hf_secret")

	tests := []struct {
		value string
		want  llm.Kind
	}{
		{"true", llm.KindLocal},
		{"TRUE", llm.KindLocal},
		{"True", llm.KindLocal},
		{"1", llm.KindHosted},
		{"yes", llm.KindHosted},
		{"false", llm.KindHosted},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("USE_OLLAMA", tt.value)
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.LLM.Kind)
		})
	}
}

func TestLoad_FallbackRequiresToken(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("LLM_FALLBACK", "true")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"embedder", "EMBEDDER", "word2vec"},
		{"vector store", "VECTOR_STORE", "pinecone"},
		{"memory", "MEMORY_BACKEND", "memcached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqliteEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.value)
		})
	}
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiroku.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":8080"
http_timeout: 15s
llm:
  kind: hosted
  hosted_api_key: from-file
  hosted_model: mistralai/Mistral-7B-Instruct-v0.3
embedder:
  backend: hash
vector_store:
  backend: chromem
  dimensions: 128
memory:
  window: 8
  session_ttl: 30m
`), 0o600))

	t.Setenv("KIROKU_ADDR", ":9090")
	t.Setenv("MEMORY_TOP_K", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr, "env wins over file")
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, llm.KindHosted, cfg.LLM.Kind)
	assert.Equal(t, "from-file", cfg.LLM.HostedAPIKey)
	assert.Equal(t, "mistralai/Mistral-7B-Instruct-v0.3", cfg.LLM.HostedModel)
	assert.Equal(t, EmbedderHash, cfg.Embedder.Backend)
	assert.Empty(t, cfg.EmbeddingModel())
	assert.Equal(t, VectorStoreChromem, cfg.VectorStore.Backend)
	assert.Equal(t, 128, cfg.VectorStore.Dimensions)
	assert.Equal(t, 8, cfg.Memory.Window)
	assert.Equal(t, 4, cfg.Memory.TopK)
	assert.Equal(t, 30*time.Minute, cfg.Memory.SessionTTL)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  kind: quantum\n"), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.VectorStore.Backend = VectorStoreSQLite
	cfg.Memory.Window = 0
	cfg.Memory.TopK = -1
	cfg.VectorStore.Dimensions = 0

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "MEMORY_WINDOW")
	assert.Contains(t, err.Error(), "MEMORY_TOP_K")
	assert.Contains(t, err.Error(), "VECTOR_DIMENSIONS")
}

func TestRedacted_MasksCredentials(t *testing.T) {
	cfg := Default()
	cfg.LLM.HostedAPIKey = "hf_secret"
	cfg.VectorStore.SupabaseAPIKey = "sb_secret"
	cfg.News.APIToken = "news_secret"

	m := cfg.Redacted()
	llmSection := m["llm"].(map[string]any)
	assert.Equal(t, redact.Placeholder, llmSection["hosted_api_key"])
	assert.Equal(t, "local", llmSection["kind"])
	assert.Equal(t, redact.Placeholder, m["vector_store"].(map[string]any)["supabase_api_key"])
	assert.Equal(t, redact.Placeholder, m["news"].(map[string]any)["api_token"])
	assert.Equal(t, ":5000", m["addr"])
}
