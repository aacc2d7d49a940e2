package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Kiroku/common/trace"
	"github.com/bdobrica/Kiroku/internal/kiroku/agent"
	"github.com/bdobrica/Kiroku/internal/kiroku/llm"
	"github.com/bdobrica/Kiroku/internal/kiroku/memory"
	"github.com/bdobrica/Kiroku/internal/kiroku/tools"
)

type fakeRouter struct {
	mu       sync.Mutex
	resp     *agent.Response
	err      error
	panicMsg string
	sessions []string
	queries  []string
	traceIDs []string
}

func (f *fakeRouter) Route(ctx context.Context, sessionID, query string) (*agent.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.sessions = append(f.sessions, sessionID)
	f.queries = append(f.queries, query)
	f.traceIDs = append(f.traceIDs, trace.FromContext(ctx))
	return f.resp, f.err
}

type storedTurn struct {
	query    string
	response any
}

type fakeMemory struct {
	mu          sync.Mutex
	retrieveErr error
	storeErr    error
	retrieved   []string
	k           int
	stored      []storedTurn
}

func (f *fakeMemory) Retrieve(_ context.Context, query string, k int) ([]memory.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieved = append(f.retrieved, query)
	f.k = k
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return []memory.Match{{Record: memory.Record{ID: "r1", Text: "old\nturn"}, Similarity: 0.9}}, nil
}

func (f *fakeMemory) Store(_ context.Context, query string, response any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, storedTurn{query: query, response: response})
	return nil
}

func newTestServer(r *fakeRouter, m *fakeMemory) *Server {
	return New(r, m, Config{
		Addr:   ":0",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func doRequest(t *testing.T, s *Server, req *http.Request) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]string
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &body), string(data))
	} else {
		body = map[string]string{"text": string(data)}
	}
	return resp, body
}

func chatRequestBody(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLiveness(t *testing.T) {
	s := newTestServer(&fakeRouter{}, &fakeMemory{})

	resp, body := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, LivenessText, body["text"])
	assert.NotEmpty(t, resp.Header.Get(trace.Header))
}

func TestChat_Success(t *testing.T) {
	r := &fakeRouter{resp: &agent.Response{Output: "Hi there"}}
	m := &fakeMemory{}
	s := newTestServer(r, m)

	resp, body := doRequest(t, s, chatRequestBody(`{"query":"hello","session_id":"abc"}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"response": "Hi there"}, body)
	assert.Equal(t, "abc", resp.Header.Get(HeaderSessionID))

	assert.Equal(t, []string{"hello"}, m.retrieved)
	assert.Equal(t, memory.DefaultTopK, m.k)
	assert.Equal(t, []string{"abc"}, r.sessions)
	require.Len(t, m.stored, 1)
	assert.Equal(t, "hello", m.stored[0].query)
	assert.Equal(t, "Hi there", memory.ResponseText(m.stored[0].response))
}

func TestChat_SessionFromHeaderOrGenerated(t *testing.T) {
	r := &fakeRouter{resp: &agent.Response{Output: "ok"}}
	s := newTestServer(r, &fakeMemory{})

	req := chatRequestBody(`{"query":"hello"}`)
	req.Header.Set(HeaderSessionID, "from-header")
	resp, _ := doRequest(t, s, req)
	assert.Equal(t, "from-header", resp.Header.Get(HeaderSessionID))

	resp, _ = doRequest(t, s, chatRequestBody(`{"query":"hello"}`))
	generated := resp.Header.Get(HeaderSessionID)
	assert.Len(t, generated, 36)
	assert.Equal(t, []string{"from-header", generated}, r.sessions)
}

func TestChat_TraceIDPropagated(t *testing.T) {
	r := &fakeRouter{resp: &agent.Response{Output: "ok"}}
	s := newTestServer(r, &fakeMemory{})

	req := chatRequestBody(`{"query":"hello"}`)
	req.Header.Set(trace.Header, "t_custom")
	resp, _ := doRequest(t, s, req)
	assert.Equal(t, "t_custom", resp.Header.Get(trace.Header))
	assert.Equal(t, []string{"t_custom"}, r.traceIDs)
}

func TestChat_NoQuery(t *testing.T) {
	for _, body := range []string{``, `   `, `{}`, `{"query":""}`, `null`} {
		t.Run(body, func(t *testing.T) {
			r := &fakeRouter{resp: &agent.Response{Output: "never"}}
			m := &fakeMemory{}
			s := newTestServer(r, m)

			resp, got := doRequest(t, s, chatRequestBody(body))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, map[string]string{"error": "No query provided"}, got)
			assert.Empty(t, r.queries)
			assert.Empty(t, m.retrieved)
		})
	}
}

func TestChat_MalformedJSON(t *testing.T) {
	s := newTestServer(&fakeRouter{}, &fakeMemory{})

	resp, got := doRequest(t, s, chatRequestBody(`{"query":`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]string{"error": "Internal Server Error"}, got)
}

func TestChat_EmptyAgentOutput(t *testing.T) {
	m := &fakeMemory{}
	s := newTestServer(&fakeRouter{resp: &agent.Response{}}, m)

	resp, got := doRequest(t, s, chatRequestBody(`{"query":"hello"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]string{"error": "Empty response from agent"}, got)
	assert.Empty(t, m.stored)
}

func TestChat_InternalErrorsAreNotLeaked(t *testing.T) {
	secret := errors.New("dial tcp 10.0.0.7:5432: password authentication failed")
	tests := []struct {
		name   string
		router *fakeRouter
		memory *fakeMemory
	}{
		{"router", &fakeRouter{err: secret}, &fakeMemory{}},
		{"retrieve", &fakeRouter{resp: &agent.Response{Output: "ok"}}, &fakeMemory{retrieveErr: secret}},
		{"store", &fakeRouter{resp: &agent.Response{Output: "ok"}}, &fakeMemory{storeErr: secret}},
		{"panic", &fakeRouter{panicMsg: secret.Error()}, &fakeMemory{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.router, tt.memory)

			resp, got := doRequest(t, s, chatRequestBody(`{"query":"hello"}`))
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, map[string]string{"error": "Internal Server Error"}, got)
		})
	}
}

func TestChat_CORS(t *testing.T) {
	s := newTestServer(&fakeRouter{resp: &agent.Response{Output: "ok"}}, &fakeMemory{})

	req := chatRequestBody(`{"query":"hello"}`)
	req.Header.Set("Origin", "https://chat.example")
	resp, _ := doRequest(t, s, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(&fakeRouter{}, &fakeMemory{})

	resp, got := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, got["error"])
}

// echoProvider answers every query with the query itself.
type echoProvider struct{}

func (echoProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.CompletionResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: "echo: " + last.Content},
		FinishReason: "stop",
	}, nil
}

func (echoProvider) Name() string { return "echo" }

// Two requests on one keep-alive connection must not share the session key
// retained by the window.
func TestChat_SessionHeaderSurvivesKeepAlive(t *testing.T) {
	windows := memory.NewSessionWindows(memory.DefaultWindowConfig())
	router := agent.NewRouter(echoProvider{}, tools.NewRegistry(), windows, agent.Config{})
	s := New(router, &fakeMemory{}, Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.App().Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}) }()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	client := &http.Client{Transport: &http.Transport{MaxConnsPerHost: 1, MaxIdleConnsPerHost: 1}}
	t.Cleanup(client.CloseIdleConnections)
	url := "http://" + ln.Addr().String() + "/chat"

	send := func(session, query string) {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(`{"query":"`+query+`"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderSessionID, session)
		resp, err := client.Do(req)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, session, resp.Header.Get(HeaderSessionID))
	}
	send("alice-session-0001", "alice question")
	send("mallory-session-02", "mallory question")

	ctx := context.Background()
	assert.Equal(t, 2, windows.Len())

	alice, err := windows.Turns(ctx, "alice-session-0001")
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "alice question", alice[0].Query)
	assert.Equal(t, "echo: alice question", alice[0].Response)

	mallory, err := windows.Turns(ctx, "mallory-session-02")
	require.NoError(t, err)
	require.Len(t, mallory, 1)
	assert.Equal(t, "mallory question", mallory[0].Query)
}
