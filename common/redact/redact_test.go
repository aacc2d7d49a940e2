package redact_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/Kiroku/common/redact"
)

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		secrets []string
		want    string
	}{
		{
			name:    "replaces token",
			in:      "GET /v1/news/all?api_token=news-secret-123&search=go",
			secrets: []string{"news-secret-123"},
			want:    "GET /v1/news/all?api_token=[REDACTED]&search=go",
		},
		{
			name:    "ignores short values",
			in:      "abc token",
			secrets: []string{"abc", ""},
			want:    "abc token",
		},
		{
			name:    "multiple secrets",
			in:      "key=aaaa1111 token=bbbb2222",
			secrets: []string{"aaaa1111", "bbbb2222"},
			want:    "key=[REDACTED] token=[REDACTED]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redact.String(tt.in, tt.secrets...))
		})
	}
}

func TestMap(t *testing.T) {
	in := map[string]any{
		"addr": ":5000",
		"supabase": map[string]any{
			"url":     "https://x.supabase.co",
			"api_key": "service-role-key",
		},
		"news": map[string]any{
			"api_token": "",
		},
		"window": 5,
	}
	out := redact.Map(in)

	assert.Equal(t, ":5000", out["addr"])
	assert.Equal(t, 5, out["window"])
	sb := out["supabase"].(map[string]any)
	assert.Equal(t, "https://x.supabase.co", sb["url"])
	assert.Equal(t, redact.Placeholder, sb["api_key"])
	assert.Equal(t, "", out["news"].(map[string]any)["api_token"])

	// input is not mutated
	assert.Equal(t, "service-role-key", in["supabase"].(map[string]any)["api_key"])
}
