package llm

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Config selects and configures the model backends.
type Config struct {
	Kind   Kind
	Ollama OllamaConfig
	Hosted HostedConfig
	// Fallback retries failed local completions on the hosted backend.
	// Ignored when Kind is KindHosted.
	Fallback bool
	// HTTPClient is shared by both backends. Nil uses library defaults.
	HTTPClient *http.Client
}

// New resolves cfg.Kind into a single Provider. It is called once at
// startup; call sites only ever see the Provider interface.
func New(cfg Config, logger *slog.Logger) (Provider, error) {
	switch cfg.Kind {
	case KindLocal:
		client, err := NewOllamaClient(cfg.Ollama.Host, cfg.HTTPClient)
		if err != nil {
			return nil, err
		}
		local := NewOllama(client, cfg.Ollama)
		if !cfg.Fallback {
			return local, nil
		}
		hosted, err := newHosted(cfg)
		if err != nil {
			return nil, fmt.Errorf("llm: fallback: %w", err)
		}
		return WithFallback(local, hosted, logger), nil

	case KindHosted:
		return newHosted(cfg)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(cfg.Kind))
	}
}

func newHosted(cfg Config) (Provider, error) {
	if cfg.Hosted.APIKey == "" {
		return nil, fmt.Errorf("llm: hosted provider requires an API token")
	}
	return NewHosted(NewHostedClient(cfg.Hosted, cfg.HTTPClient), cfg.Hosted), nil
}
