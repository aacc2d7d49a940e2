// Package app wires Kiroku's components together and runs the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdobrica/Kiroku/common/retry"
	"github.com/bdobrica/Kiroku/internal/kiroku/agent"
	"github.com/bdobrica/Kiroku/internal/kiroku/config"
	"github.com/bdobrica/Kiroku/internal/kiroku/llm"
	"github.com/bdobrica/Kiroku/internal/kiroku/memory"
	"github.com/bdobrica/Kiroku/internal/kiroku/observability"
	"github.com/bdobrica/Kiroku/internal/kiroku/server"
	"github.com/bdobrica/Kiroku/internal/kiroku/store"
	"github.com/bdobrica/Kiroku/internal/kiroku/tools"
)

const shutdownTimeout = 10 * time.Second

// probeRetry covers an ollama daemon still loading its embedding model.
var probeRetry = retry.Config{
	Op:           "embedder dimension probe",
	MaxAttempts:  5,
	InitialDelay: time.Second,
	MaxDelay:     8 * time.Second,
	Permanent: func(err error) bool {
		return errors.Is(err, memory.ErrDimensionMismatch)
	},
}

// App holds every long-lived component.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	provider llm.Provider
	registry *tools.Registry
	window   memory.Window
	sessions *memory.SessionWindows
	bridge   *memory.Bridge
	router   *agent.Router
	server   *server.Server

	closers []func() error
}

// New builds the application from cfg. It opens storage, connects the
// short-term memory backend and verifies that the embedder's width matches
// the vector store before returning.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	embedder, err := a.newEmbedder(httpClient)
	if err != nil {
		return nil, err
	}
	vectors, err := a.newVectorStore(httpClient)
	if err != nil {
		return nil, err
	}
	a.bridge = memory.NewBridge(embedder, vectors, logger)

	logger.Info("checking embedding dimensions",
		"embedder", cfg.Embedder.Backend,
		"vector_store", cfg.VectorStore.Backend,
		"dimensions", vectors.Dimensions(),
	)
	if err := retry.Do(ctx, probeRetry, func() error { return a.bridge.CheckDimensions(ctx) }); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	if err := a.newWindow(ctx); err != nil {
		return nil, err
	}

	modelCfg := cfg.ModelConfig()
	modelCfg.HTTPClient = httpClient
	a.provider, err = llm.New(modelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	logger.Info("language model ready", "provider", a.provider.Name(), "kind", cfg.LLM.Kind)

	a.registry = tools.NewRegistry()
	a.registry.Register(tools.NewNewsTool(tools.NewsConfig{
		APIToken:   cfg.News.APIToken,
		BaseURL:    cfg.News.BaseURL,
		HTTPClient: httpClient,
	}))
	a.registry.Register(tools.NewSummarizeTool(a.provider))
	if cfg.News.APIToken == "" {
		logger.Warn("NEWS_API_TOKEN is not set; news lookups will report a missing token")
	}

	a.router = agent.NewRouter(a.provider, a.registry, a.window, agent.Config{})
	a.server = server.New(a.router, a.bridge, server.Config{
		Addr:        cfg.Addr,
		CORSOrigins: cfg.CORSOrigins,
		TopK:        cfg.Memory.TopK,
		Logger:      logger,
	})

	ok = true
	return a, nil
}

func (a *App) newEmbedder(httpClient *http.Client) (memory.Embedder, error) {
	model := a.cfg.EmbeddingModel()
	switch a.cfg.Embedder.Backend {
	case config.EmbedderOllama:
		client, err := llm.NewOllamaClient(a.cfg.LLM.OllamaHost, httpClient)
		if err != nil {
			return nil, fmt.Errorf("app: embedder: %w", err)
		}
		return memory.NewOllamaEmbedder(client, model), nil
	case config.EmbedderOpenAI:
		client := llm.NewHostedClient(llm.HostedConfig{
			BaseURL: a.cfg.LLM.HostedBaseURL,
			APIKey:  a.cfg.LLM.HostedAPIKey,
		}, httpClient)
		return memory.NewOpenAIEmbedder(client, model), nil
	case config.EmbedderHash:
		a.logger.Warn("using the hashing embedder; similarity is lexical only")
		return memory.NewHashEmbedder(a.cfg.VectorStore.Dimensions), nil
	default:
		return nil, fmt.Errorf("app: unknown embedder %q", a.cfg.Embedder.Backend)
	}
}

func (a *App) newVectorStore(httpClient *http.Client) (memory.VectorStore, error) {
	vs := a.cfg.VectorStore
	switch vs.Backend {
	case config.VectorStoreSupabase:
		s, err := memory.NewSupabaseStore(memory.SupabaseConfig{
			URL:        vs.SupabaseURL,
			APIKey:     vs.SupabaseAPIKey,
			Dimensions: vs.Dimensions,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	case config.VectorStoreSQLite:
		a.logger.Info("opening database", "path", vs.DatabasePath)
		st, err := store.New(vs.DatabasePath, a.logger)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		return memory.NewSQLiteStore(st.DB(), vs.Dimensions, a.logger), nil
	case config.VectorStoreChromem:
		s, err := memory.NewChromemStore(vs.ChromemPath, vs.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown vector store %q", vs.Backend)
	}
}

func (a *App) newWindow(ctx context.Context) error {
	wc := memory.WindowConfig{Size: a.cfg.Memory.Window, IdleTTL: a.cfg.Memory.SessionTTL}
	switch a.cfg.Memory.Backend {
	case config.MemoryRedis:
		client := redis.NewClient(&redis.Options{Addr: a.cfg.Memory.RedisAddr})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("app: redis %s: %w", a.cfg.Memory.RedisAddr, err)
		}
		a.window = memory.NewRedisWindow(client, wc)
	default:
		a.sessions = memory.NewSessionWindows(wc)
		a.window = a.sessions
	}
	return nil
}

// Run serves HTTP until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.sessions != nil && a.cfg.Memory.SessionTTL > 0 {
		go a.sessions.RunSweeper(ctx, sweepInterval(a.cfg.Memory.SessionTTL))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Listen() }()

	a.logger.Info("Kiroku is running; press Ctrl+C to stop", "addr", a.cfg.Addr)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	return nil
}

// Ask runs one chat turn outside HTTP: retrieve, route, store.
func (a *App) Ask(ctx context.Context, sessionID, query string) (*agent.Response, error) {
	log := observability.FromLogger(ctx, a.logger)

	matches, err := a.bridge.Retrieve(ctx, query, a.cfg.Memory.TopK)
	if err != nil {
		return nil, fmt.Errorf("app: retrieve: %w", err)
	}
	log.Debug("related memories", "count", len(matches))

	resp, err := a.router.Route(ctx, sessionID, query)
	if err != nil {
		return nil, err
	}
	if resp.Output == "" {
		return resp, nil
	}
	if err := a.bridge.Store(ctx, query, resp); err != nil {
		return nil, fmt.Errorf("app: store: %w", err)
	}
	return resp, nil
}

// Close releases storage and connections. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
