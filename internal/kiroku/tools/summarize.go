package tools

import (
	"context"

	"github.com/bdobrica/Kiroku/internal/kiroku/llm"
)

// SummarizeTool asks the language model for a summary of a block of text.
type SummarizeTool struct {
	provider llm.Provider
}

// NewSummarizeTool returns a SummarizeTool answering through provider.
func NewSummarizeTool(provider llm.Provider) *SummarizeTool {
	return &SummarizeTool{provider: provider}
}

func (s *SummarizeTool) Name() string { return "summarize_topic" }

func (s *SummarizeTool) Description() string {
	return "Summarizes a given block of text"
}

func (s *SummarizeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The text to summarize.",
			},
		},
		"required": []string{"text"},
	}
}

func (s *SummarizeTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return llm.Ask(ctx, s.provider, "Summarize this topic: "+stringArg(args, "text"), nil)
}

var _ Tool = (*SummarizeTool)(nil)
