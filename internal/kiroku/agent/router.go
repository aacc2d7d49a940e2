// Package agent routes a chat query through the language model, letting the
// model call registered tools and feeding it the session's recent turns.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bdobrica/Kiroku/internal/kiroku/llm"
	"github.com/bdobrica/Kiroku/internal/kiroku/memory"
	"github.com/bdobrica/Kiroku/internal/kiroku/observability"
	"github.com/bdobrica/Kiroku/internal/kiroku/tools"
)

// maxToolCallRounds bounds the LLM ↔ tool loop for one query.
const maxToolCallRounds = 10

// DefaultSystemPrompt frames every conversation.
const DefaultSystemPrompt = "You are a helpful assistant. " +
	"When the user asks about current events or recent news, call the get_latest_news tool " +
	"with a short topic and answer from its headlines."

// ErrTooManyToolRounds is returned when the model keeps requesting tools.
var ErrTooManyToolRounds = errors.New("agent: exceeded maximum tool call rounds")

// Invocation records one tool call made while answering a query.
type Invocation struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// Response is the router's answer to one query.
type Response struct {
	Output      string       `json:"output"`
	Invocations []Invocation `json:"invocations,omitempty"`
}

// Text returns the answer text. It lets the long-term memory bridge store a
// Response without knowing its shape.
func (r *Response) Text() string { return r.Output }

// Config tunes the router.
type Config struct {
	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string
	// MaxTokens caps each completion when positive.
	MaxTokens int
}

// Router answers queries using a provider, a tool registry and a
// short-term memory window.
type Router struct {
	provider llm.Provider
	registry *tools.Registry
	window   memory.Window
	cfg      Config
	now      func() time.Time
}

// NewRouter returns a Router. registry may be empty but not nil.
func NewRouter(provider llm.Provider, registry *tools.Registry, window memory.Window, cfg Config) *Router {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Router{
		provider: provider,
		registry: registry,
		window:   window,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Route answers query in the context of sessionID's recent turns. The
// completed turn is appended to the session window when the answer is
// non-empty.
func (r *Router) Route(ctx context.Context, sessionID, query string) (*Response, error) {
	log := observability.WithTrace(ctx).With("session_id", sessionID)

	history, err := r.window.Turns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("agent: read window: %w", err)
	}

	messages := make([]llm.Message, 0, 2+2*len(history))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: r.cfg.SystemPrompt})
	for _, t := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: t.Query},
			llm.Message{Role: llm.RoleAssistant, Content: t.Response},
		)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	toolDefs := r.registry.Definitions()
	resp := &Response{}

	for round := 0; round < maxToolCallRounds; round++ {
		out, err := r.provider.Complete(ctx, llm.CompletionRequest{
			Messages:  messages,
			Tools:     toolDefs,
			MaxTokens: r.cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("agent: %s: %w", r.provider.Name(), err)
		}

		messages = append(messages, out.Message)

		if !out.Message.WantsTools() {
			resp.Output = out.Message.Content
			if resp.Output != "" {
				turn := memory.Turn{Query: query, Response: resp.Output, At: r.now()}
				if err := r.window.Append(ctx, sessionID, turn); err != nil {
					return nil, fmt.Errorf("agent: append window: %w", err)
				}
			}
			log.Debug("agent answered",
				"rounds", round+1,
				"tool_calls", len(resp.Invocations),
				"history_turns", len(history),
			)
			return resp, nil
		}

		for _, tc := range out.Message.ToolCalls {
			result, err := r.registry.Invoke(ctx, tc.Function.Name, tc.Function.Arguments)
			if err != nil {
				log.Warn("tool call failed", "tool", tc.Function.Name, "err", err)
				result = fmt.Sprintf("error: %s", err)
			} else {
				log.Debug("tool call", "tool", tc.Function.Name)
			}
			resp.Invocations = append(resp.Invocations, Invocation{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
				Result:    result,
			})
			messages = append(messages, llm.ToolResult(tc, result))
		}
	}

	return nil, fmt.Errorf("%w (%d)", ErrTooManyToolRounds, maxToolCallRounds)
}

