package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/bdobrica/Kiroku/common/redact"
	"github.com/bdobrica/Kiroku/common/version"
)

const (
	defaultSupabaseTable     = "documents"
	defaultSupabaseQueryName = "match_documents"
	defaultSupabaseTimeout   = 30 * time.Second
	supabaseRESTPath         = "/rest/v1"
)

// SupabaseConfig configures the Supabase (PostgREST + pgvector) store.
type SupabaseConfig struct {
	// URL is the project URL, e.g. https://abc.supabase.co.
	URL string

	// APIKey is sent both as the apikey header and as a bearer token.
	APIKey string

	// Table receives inserts. Defaults to "documents".
	Table string

	// QueryName is the SQL function called for similarity search. It must
	// accept (query_embedding vector, match_count int, filter jsonb) and
	// return rows of (id, content, metadata, similarity). Defaults to
	// "match_documents".
	QueryName string

	// Dimensions is the width of the table's vector column.
	Dimensions int

	// HTTPClient supplies the transport and per-call timeout. Defaults to
	// http.DefaultTransport with a 30 s timeout.
	HTTPClient *http.Client
}

// SupabaseStore implements VectorStore over Supabase's PostgREST interface.
type SupabaseStore struct {
	cfg       SupabaseConfig
	transport http.RoundTripper
	timeout   time.Duration
}

// NewSupabaseStore validates cfg and returns a store. A missing URL or key
// is a configuration error.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("vector store supabase: url and api key are required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector store supabase: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Table == "" {
		cfg.Table = defaultSupabaseTable
	}
	if cfg.QueryName == "" {
		cfg.QueryName = defaultSupabaseQueryName
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	s := &SupabaseStore{cfg: cfg, transport: http.DefaultTransport, timeout: defaultSupabaseTimeout}
	if cfg.HTTPClient != nil {
		if cfg.HTTPClient.Transport != nil {
			s.transport = cfg.HTTPClient.Transport
		}
		if cfg.HTTPClient.Timeout > 0 {
			s.timeout = cfg.HTTPClient.Timeout
		}
	}
	return s, nil
}

// --- PostgREST wire types ---

type supabaseRow struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float32 `json:"embedding"`
}

type supabaseMatchRequest struct {
	QueryEmbedding []float32      `json:"query_embedding"`
	MatchCount     int            `json:"match_count"`
	Filter         map[string]any `json:"filter"`
}

type supabaseMatch struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Metadata   Metadata `json:"metadata"`
	Similarity float64  `json:"similarity"`
}

// Dimensions implements VectorStore.
func (s *SupabaseStore) Dimensions() int { return s.cfg.Dimensions }

// Add implements VectorStore with a single-row insert.
func (s *SupabaseStore) Add(ctx context.Context, rec Record) error {
	if err := checkDimensions(rec.Embedding, s.cfg.Dimensions); err != nil {
		return err
	}
	row := supabaseRow{
		ID:        rec.ID,
		Content:   rec.Text,
		Metadata:  rec.Metadata,
		Embedding: rec.Embedding,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, _, err := s.client(ctx).
		From(s.cfg.Table).
		Insert([]supabaseRow{row}, false, "", "minimal", "").
		Execute()
	if err != nil {
		return s.wrap("insert", err)
	}
	return nil
}

// Search implements VectorStore through the match RPC.
func (s *SupabaseStore) Search(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := checkDimensions(embedding, s.cfg.Dimensions); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client := s.client(ctx)
	req := supabaseMatchRequest{QueryEmbedding: embedding, MatchCount: k, Filter: map[string]any{}}
	body := client.Rpc(s.cfg.QueryName, "", req)
	if client.ClientError != nil {
		return nil, s.wrap("match", client.ClientError)
	}
	rows, err := decodeMatches(body)
	if err != nil {
		return nil, s.wrap("match", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, Match{
			Record:     Record{ID: r.ID, Text: r.Content, Metadata: r.Metadata},
			Similarity: r.Similarity,
		})
	}
	return rankMatches(matches, k), nil
}

// client builds a PostgREST client bound to ctx. Clients are per call
// because postgrest-go records failures in a shared ClientError field.
func (s *SupabaseStore) client(ctx context.Context) *postgrest.Client {
	c := postgrest.NewClient(s.cfg.URL+supabaseRESTPath, "", map[string]string{
		"User-Agent": version.UserAgent(),
	})
	c.SetApiKey(s.cfg.APIKey).SetAuthToken(s.cfg.APIKey)
	c.Transport.Parent = contextTransport{ctx: ctx, base: s.transport}
	return c
}

func (s *SupabaseStore) wrap(op string, err error) error {
	return fmt.Errorf("vector store supabase: %s: %s", op, redact.String(err.Error(), s.cfg.APIKey))
}

// decodeMatches parses an RPC body. Rpc does not check the status code, so
// an object body is treated as a PostgREST error.
func decodeMatches(body string) ([]supabaseMatch, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		var perr postgrest.ExecuteError
		if err := json.Unmarshal([]byte(trimmed), &perr); err != nil {
			return nil, fmt.Errorf("decode error response: %w", err)
		}
		return nil, fmt.Errorf("(%s) %s", perr.Code, perr.Message)
	}
	var rows []supabaseMatch
	if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

// contextTransport attaches ctx to requests issued by postgrest-go, whose
// builders take no context.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

var _ VectorStore = (*SupabaseStore)(nil)
