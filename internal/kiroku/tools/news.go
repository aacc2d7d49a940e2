package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/Kiroku/common/redact"
	"github.com/bdobrica/Kiroku/common/version"
)

const (
	defaultNewsBaseURL  = "https://api.thenewsapi.com"
	defaultNewsLanguage = "en"
	defaultNewsLimit    = 5
	defaultNewsTimeout  = 30 * time.Second
)

// Fixed results returned to the model instead of errors.
const (
	NewsTokenMissing = "API token for The News API is not set."
	NewsParseFailed  = "Failed to parse news data."
	NewsNoResults    = "No recent news found."
	newsFetchFailed  = "Failed to fetch news: "
)

// NewsConfig configures the news lookup tool.
type NewsConfig struct {
	// APIToken authenticates against The News API. When empty, lookups
	// return NewsTokenMissing without any HTTP call.
	APIToken string

	// BaseURL defaults to https://api.thenewsapi.com.
	BaseURL string

	// Language filter. Defaults to "en".
	Language string

	// Limit caps the number of headlines. Defaults to 5.
	Limit int

	// HTTPClient overrides the client. Defaults to one with a 30 s timeout.
	HTTPClient *http.Client
}

// NewsTool looks up recent headlines for a topic.
type NewsTool struct {
	cfg    NewsConfig
	client *http.Client
}

// NewNewsTool returns a NewsTool with defaults applied.
func NewNewsTool(cfg NewsConfig) *NewsTool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultNewsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Language == "" {
		cfg.Language = defaultNewsLanguage
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultNewsLimit
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultNewsTimeout}
	}
	return &NewsTool{cfg: cfg, client: client}
}

type newsResponse struct {
	Data []newsArticle `json:"data"`
}

type newsArticle struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Name implements Tool.
func (n *NewsTool) Name() string { return "get_latest_news" }

// Description implements Tool.
func (n *NewsTool) Description() string { return "Get latest news for a topic" }

// Parameters implements Tool.
func (n *NewsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{
				"type":        "string",
				"description": "The topic to search recent headlines for.",
			},
		},
		"required": []string{"topic"},
	}
}

// Invoke implements Tool.
func (n *NewsTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return n.Lookup(ctx, stringArg(args, "topic"))
}

// Lookup returns up to Limit "<title> - <url>" lines, newline-joined, in the
// order the API returned them. Upstream problems are reported as text: a
// missing token, a non-200 status, an unparseable body or an empty result
// set each map to a fixed message. Only transport failures (DNS, refused
// connection, cancelled context) are returned as errors.
func (n *NewsTool) Lookup(ctx context.Context, topic string) (string, error) {
	if n.cfg.APIToken == "" {
		return NewsTokenMissing, nil
	}

	q := url.Values{}
	q.Set("api_token", n.cfg.APIToken)
	q.Set("search", topic)
	q.Set("language", n.cfg.Language)
	q.Set("limit", strconv.Itoa(n.cfg.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.BaseURL+"/v1/news/all?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("news: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := n.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL including the query-escaped token.
		msg := redact.String(err.Error(), n.cfg.APIToken, url.QueryEscape(n.cfg.APIToken))
		return "", fmt.Errorf("news: request failed: %s", msg)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newsFetchFailed + strconv.Itoa(resp.StatusCode), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewsParseFailed, nil
	}
	var parsed newsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return NewsParseFailed, nil
	}
	if len(parsed.Data) == 0 {
		return NewsNoResults, nil
	}

	articles := parsed.Data
	if len(articles) > n.cfg.Limit {
		articles = articles[:n.cfg.Limit]
	}
	lines := make([]string, 0, len(articles))
	for _, a := range articles {
		lines = append(lines, a.Title+" - "+a.URL)
	}
	return strings.Join(lines, "\n"), nil
}

var _ Tool = (*NewsTool)(nil)
