package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "mistral"
)

// OllamaConfig configures the local backend.
type OllamaConfig struct {
	// Host is the daemon base URL. Defaults to http://localhost:11434.
	Host string
	// Model defaults to "mistral".
	Model       string
	Temperature float64
	// MaxTokens maps to num_predict when positive.
	MaxTokens int
}

type ollamaProvider struct {
	cfg    OllamaConfig
	client *api.Client
}

// NewOllamaClient builds an ollama API client for host.
func NewOllamaClient(host string, httpClient *http.Client) (*api.Client, error) {
	if host == "" {
		host = defaultOllamaHost
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("llm ollama: parse host %q: %w", host, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return api.NewClient(base, httpClient), nil
}

// NewOllama returns a Provider backed by client.
func NewOllama(client *api.Client, cfg OllamaConfig) Provider {
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	return &ollamaProvider{cfg: cfg, client: client}
}

func (p *ollamaProvider) Name() string { return "ollama/" + p.cfg.Model }

// Complete sends a non-streaming /api/chat request.
func (p *ollamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages, err := toOllamaMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := toOllamaTools(req.Tools)
	if err != nil {
		return nil, err
	}

	options := map[string]any{"temperature": p.cfg.Temperature}
	maxTokens := p.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.cfg.Model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
		Options:  options,
	}

	var final api.ChatResponse
	var content string
	var calls []api.ToolCall
	err = p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		calls = append(calls, resp.Message.ToolCalls...)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("llm ollama: chat: %w", err)
	}

	msg := Message{Role: RoleAssistant, Content: content}
	for i, tc := range calls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("llm ollama: encode tool arguments: %w", err)
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			// ollama does not assign call IDs; synthesise stable ones.
			ID:   fmt.Sprintf("call_%d", i),
			Type: ToolTypeFunction,
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			},
		})
	}

	finish := final.DoneReason
	if msg.WantsTools() {
		finish = FinishToolCalls
	} else if finish == "" {
		finish = FinishStop
	}

	return &CompletionResponse{
		Message:      msg,
		FinishReason: finish,
		Usage: TokenUsage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}

func toOllamaMessages(in []Message) ([]api.Message, error) {
	out := make([]api.Message, 0, len(in))
	for _, m := range in {
		om := api.Message{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			args := api.ToolCallFunctionArguments{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return nil, fmt.Errorf("llm ollama: decode tool arguments for %s: %w", tc.Function.Name, err)
				}
			}
			om.ToolCalls = append(om.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{Name: tc.Function.Name, Arguments: args},
			})
		}
		out = append(out, om)
	}
	return out, nil
}

// toOllamaTools converts through JSON: the OpenAI-style definition and
// ollama's api.Tool share the same wire shape.
func toOllamaTools(defs []ToolDefinition) (api.Tools, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("llm ollama: encode tools: %w", err)
	}
	var tools api.Tools
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("llm ollama: decode tools: %w", err)
	}
	return tools, nil
}
