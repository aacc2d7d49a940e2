// Package config loads Kiroku's runtime configuration.
//
// Values are layered: built-in defaults, then an optional YAML file (path
// from KIROKU_CONFIG or the --config flag), then environment variables.
// Environment always wins so a container can override a baked-in file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Kiroku/common/environment"
	"github.com/bdobrica/Kiroku/common/redact"
	"github.com/bdobrica/Kiroku/internal/kiroku/llm"
)

// ErrInvalid is wrapped by every Load and Validate failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Backend names.
const (
	EmbedderOllama = "ollama"
	EmbedderOpenAI = "openai"
	EmbedderHash   = "hash"

	VectorStoreSupabase = "supabase"
	VectorStoreSQLite   = "sqlite"
	VectorStoreChromem  = "chromem"

	MemoryInProcess = "memory"
	MemoryRedis     = "redis"
)

// Config is the full runtime configuration.
type Config struct {
	Addr        string            `yaml:"addr"`
	HTTPTimeout time.Duration     `yaml:"http_timeout"`
	CORSOrigins []string          `yaml:"cors_allow_origins"`
	Log         LogConfig         `yaml:"log"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Memory      MemoryConfig      `yaml:"memory"`
	News        NewsConfig        `yaml:"news"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LLMConfig selects the chat model backend.
type LLMConfig struct {
	Kind     llm.Kind `yaml:"kind"`
	Fallback bool     `yaml:"fallback"`

	OllamaHost        string  `yaml:"ollama_host"`
	OllamaModel       string  `yaml:"ollama_model"`
	OllamaTemperature float64 `yaml:"ollama_temperature"`

	HostedBaseURL     string  `yaml:"hosted_base_url"`
	HostedModel       string  `yaml:"hosted_model"`
	HostedAPIKey      string  `yaml:"hosted_api_key"`
	HostedTemperature float64 `yaml:"hosted_temperature"`
	HostedMaxTokens   int     `yaml:"hosted_max_tokens"`
}

// EmbedderConfig selects the embedding backend. The openai backend reuses
// the hosted base URL and token.
type EmbedderConfig struct {
	Backend string `yaml:"backend"`
	// Model defaults per backend, see EmbeddingModel.
	Model string `yaml:"model"`
}

// VectorStoreConfig selects the long-term memory store.
type VectorStoreConfig struct {
	Backend        string `yaml:"backend"`
	Dimensions     int    `yaml:"dimensions"`
	SupabaseURL    string `yaml:"supabase_url"`
	SupabaseAPIKey string `yaml:"supabase_api_key"`
	DatabasePath   string `yaml:"database_path"`
	// ChromemPath persists the chromem collection when set.
	ChromemPath string `yaml:"chromem_path"`
}

// MemoryConfig configures short-term memory and retrieval.
type MemoryConfig struct {
	Backend    string        `yaml:"backend"`
	RedisAddr  string        `yaml:"redis_addr"`
	Window     int           `yaml:"window"`
	TopK       int           `yaml:"top_k"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type NewsConfig struct {
	APIToken string `yaml:"api_token"`
	BaseURL  string `yaml:"base_url"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Addr:        ":5000",
		HTTPTimeout: 60 * time.Second,
		CORSOrigins: []string{"*"},
		Log:         LogConfig{Level: "info", Format: "text"},
		LLM: LLMConfig{
			Kind:              llm.KindLocal,
			OllamaHost:        "http://localhost:11434",
			OllamaModel:       "mistral",
			OllamaTemperature: 0.7,
			HostedBaseURL:     "https://router.huggingface.co/v1",
			HostedModel:       "meta-llama/Llama-3.1-8B-Instruct",
			HostedTemperature: 0.5,
			HostedMaxTokens:   256,
		},
		Embedder: EmbedderConfig{Backend: EmbedderOllama},
		VectorStore: VectorStoreConfig{
			Backend:      VectorStoreSupabase,
			Dimensions:   768,
			DatabasePath: "./kiroku.db",
		},
		Memory: MemoryConfig{
			Backend:    MemoryInProcess,
			RedisAddr:  "localhost:6379",
			Window:     5,
			TopK:       3,
			SessionTTL: time.Hour,
		},
		News: NewsConfig{BaseURL: "https://api.thenewsapi.com"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Addr = environment.StringOr("KIROKU_ADDR", c.Addr)
	c.HTTPTimeout = environment.DurationOr("HTTP_TIMEOUT", c.HTTPTimeout)
	c.CORSOrigins = environment.StringSliceOr("CORS_ALLOW_ORIGINS", c.CORSOrigins)
	c.Log.Level = environment.StringOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = environment.StringOr("LOG_FORMAT", c.Log.Format)

	// Only a literal "true" (any case) selects the local model once set.
	if v, ok := environment.Lookup("USE_OLLAMA"); ok {
		c.LLM.Kind = llm.KindFromFlag(strings.EqualFold(v, "true"))
	}
	c.LLM.Fallback = environment.BoolOr("LLM_FALLBACK", c.LLM.Fallback)
	c.LLM.OllamaHost = environment.StringOr("OLLAMA_HOST", c.LLM.OllamaHost)
	c.LLM.OllamaModel = environment.StringOr("OLLAMA_MODEL", c.LLM.OllamaModel)
	c.LLM.OllamaTemperature = environment.Float64Or("OLLAMA_TEMPERATURE", c.LLM.OllamaTemperature)
	c.LLM.HostedBaseURL = environment.StringOr("HOSTED_BASE_URL", c.LLM.HostedBaseURL)
	c.LLM.HostedModel = environment.StringOr("HOSTED_MODEL", c.LLM.HostedModel)
	c.LLM.HostedAPIKey = environment.StringOr("HUGGINGFACEHUB_API_TOKEN", c.LLM.HostedAPIKey)
	c.LLM.HostedTemperature = environment.Float64Or("HOSTED_TEMPERATURE", c.LLM.HostedTemperature)
	c.LLM.HostedMaxTokens = environment.IntOr("HOSTED_MAX_TOKENS", c.LLM.HostedMaxTokens)

	var errs []error
	var err error
	if c.Embedder.Backend, err = environment.OneOf("EMBEDDER", c.Embedder.Backend,
		EmbedderOllama, EmbedderOpenAI, EmbedderHash); err != nil {
		errs = append(errs, err)
	}
	c.Embedder.Model = environment.StringOr("EMBEDDING_MODEL", c.Embedder.Model)

	if c.VectorStore.Backend, err = environment.OneOf("VECTOR_STORE", c.VectorStore.Backend,
		VectorStoreSupabase, VectorStoreSQLite, VectorStoreChromem); err != nil {
		errs = append(errs, err)
	}
	c.VectorStore.Dimensions = environment.IntOr("VECTOR_DIMENSIONS", c.VectorStore.Dimensions)
	c.VectorStore.SupabaseURL = environment.StringOr("SUPABASE_URL", c.VectorStore.SupabaseURL)
	c.VectorStore.SupabaseAPIKey = environment.StringOr("SUPABASE_API_KEY", c.VectorStore.SupabaseAPIKey)
	c.VectorStore.DatabasePath = environment.StringOr("DATABASE_PATH", c.VectorStore.DatabasePath)
	c.VectorStore.ChromemPath = environment.StringOr("CHROMEM_PATH", c.VectorStore.ChromemPath)

	if c.Memory.Backend, err = environment.OneOf("MEMORY_BACKEND", c.Memory.Backend,
		MemoryInProcess, MemoryRedis); err != nil {
		errs = append(errs, err)
	}
	c.Memory.RedisAddr = environment.StringOr("REDIS_ADDR", c.Memory.RedisAddr)
	c.Memory.Window = environment.IntOr("MEMORY_WINDOW", c.Memory.Window)
	c.Memory.TopK = environment.IntOr("MEMORY_TOP_K", c.Memory.TopK)
	c.Memory.SessionTTL = environment.DurationOr("MEMORY_SESSION_TTL", c.Memory.SessionTTL)

	c.News.APIToken = environment.StringOr("NEWS_API_TOKEN", c.News.APIToken)
	c.News.BaseURL = environment.StringOr("NEWS_API_BASE_URL", c.News.BaseURL)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Addr == "" {
		add("listen address is empty")
	}
	if c.HTTPTimeout <= 0 {
		add("HTTP_TIMEOUT must be positive")
	}
	if c.LLM.Kind != llm.KindLocal && c.LLM.Kind != llm.KindHosted {
		add("unknown llm kind %s", c.LLM.Kind)
	}
	needsHosted := c.LLM.Kind == llm.KindHosted || c.LLM.Fallback || c.Embedder.Backend == EmbedderOpenAI
	if needsHosted && c.LLM.HostedAPIKey == "" {
		add("HUGGINGFACEHUB_API_TOKEN is required for the hosted model or openai embedder")
	}

	switch c.Embedder.Backend {
	case EmbedderOllama, EmbedderOpenAI, EmbedderHash:
	default:
		add("unknown embedder %q", c.Embedder.Backend)
	}

	if c.VectorStore.Dimensions <= 0 {
		add("VECTOR_DIMENSIONS must be positive")
	}
	switch c.VectorStore.Backend {
	case VectorStoreSupabase:
		if c.VectorStore.SupabaseURL == "" {
			add("SUPABASE_URL is required for the supabase vector store")
		}
		if c.VectorStore.SupabaseAPIKey == "" {
			add("SUPABASE_API_KEY is required for the supabase vector store")
		}
	case VectorStoreSQLite:
		if c.VectorStore.DatabasePath == "" {
			add("DATABASE_PATH is required for the sqlite vector store")
		}
	case VectorStoreChromem:
	default:
		add("unknown vector store %q", c.VectorStore.Backend)
	}

	switch c.Memory.Backend {
	case MemoryInProcess:
	case MemoryRedis:
		if c.Memory.RedisAddr == "" {
			add("REDIS_ADDR is required for the redis memory backend")
		}
	default:
		add("unknown memory backend %q", c.Memory.Backend)
	}
	if c.Memory.Window <= 0 {
		add("MEMORY_WINDOW must be positive")
	}
	if c.Memory.TopK <= 0 {
		add("MEMORY_TOP_K must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// EmbeddingModel returns the configured embedding model or the backend's
// default.
func (c *Config) EmbeddingModel() string {
	if c.Embedder.Model != "" {
		return c.Embedder.Model
	}
	switch c.Embedder.Backend {
	case EmbedderOpenAI:
		return "sentence-transformers/all-mpnet-base-v2"
	case EmbedderOllama:
		return "nomic-embed-text"
	default:
		return ""
	}
}

// ModelConfig converts the llm section into llm.Config.
func (c *Config) ModelConfig() llm.Config {
	return llm.Config{
		Kind:     c.LLM.Kind,
		Fallback: c.LLM.Fallback,
		Ollama: llm.OllamaConfig{
			Host:        c.LLM.OllamaHost,
			Model:       c.LLM.OllamaModel,
			Temperature: c.LLM.OllamaTemperature,
		},
		Hosted: llm.HostedConfig{
			BaseURL:     c.LLM.HostedBaseURL,
			APIKey:      c.LLM.HostedAPIKey,
			Model:       c.LLM.HostedModel,
			Temperature: c.LLM.HostedTemperature,
			MaxTokens:   c.LLM.HostedMaxTokens,
		},
	}
}

// Redacted returns the configuration as a nested map with credentials
// masked, for the startup log line.
func (c *Config) Redacted() map[string]any {
	data, err := yaml.Marshal(c)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return redact.Map(m)
}
