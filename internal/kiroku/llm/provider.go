// Package llm talks to the language models behind the chat router: a local
// Ollama model or a hosted OpenAI-compatible endpoint.
//
// A Provider answers one CompletionRequest at a time. The router drives the
// tool loop itself, resending the full history with tool results appended
// until the reply carries no tool calls.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Finish reasons reported by both backends.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// ErrEmptyCompletion is returned by Ask when the model produced no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// CompletionRequest is one inference call. Zero MaxTokens keeps the
// backend default.
type CompletionRequest struct {
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
}

// CompletionResponse is the model's next assistant message. FinishReason is
// FinishToolCalls whenever Message.ToolCalls is non-empty.
type CompletionResponse struct {
	Message      Message
	FinishReason string
	Usage        TokenUsage
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is a model backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name is used in logs and errors, e.g. "ollama/mistral".
	Name() string
}

// Ask sends history plus prompt as a user message, without tools, and
// returns the answer text.
func Ask(ctx context.Context, p Provider, prompt string, history []Message) (string, error) {
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})

	resp, err := p.Complete(ctx, CompletionRequest{Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("llm: %s: %w", p.Name(), err)
	}
	if resp.Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Message.Content, nil
}
