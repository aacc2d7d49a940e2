// Package server exposes Kiroku over HTTP.
//
// Endpoints:
//
//	GET  /      → liveness text
//	POST /chat  → {"query": "...", "session_id": "..."} → {"response": "..."}
//
// Every /chat request runs the same sequence: related past turns are
// retrieved from long-term memory and logged, the router produces an answer
// (consulting the session's short-term window and any tools), and the new
// turn is written back to long-term memory before the answer is returned.
//
// Failures surface as {"error": "..."} bodies. Details of internal errors
// are logged under the request's trace ID and never echoed to the client.
//
// Session handling: the session is taken from the session_id body field,
// then the X-Session-ID header, and is otherwise generated. The effective
// session ID is echoed in the X-Session-ID response header so clients can
// continue the conversation.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"

	"github.com/bdobrica/Kiroku/common/trace"
	"github.com/bdobrica/Kiroku/common/version"
	"github.com/bdobrica/Kiroku/internal/kiroku/agent"
	"github.com/bdobrica/Kiroku/internal/kiroku/memory"
	"github.com/bdobrica/Kiroku/internal/kiroku/observability"
)

// HeaderSessionID carries the conversation session.
const HeaderSessionID = "X-Session-ID"

// LivenessText is the body of GET /.
const LivenessText = "Backend is running ✅"

// Client-facing error messages.
const (
	errNoQuery       = "No query provided"
	errEmptyResponse = "Empty response from agent"
	errInternal      = "Internal Server Error"
)

const localsTraceID = "trace_id"

// Router answers a query within a session.
type Router interface {
	Route(ctx context.Context, sessionID, query string) (*agent.Response, error)
}

// Memory is the long-term memory round trip.
type Memory interface {
	Retrieve(ctx context.Context, query string, k int) ([]memory.Match, error)
	Store(ctx context.Context, query string, response any) error
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// CORSOrigins defaults to every origin.
	CORSOrigins []string
	// TopK is how many related past turns are retrieved per query.
	TopK int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the chat HTTP server.
type Server struct {
	app    *fiber.App
	router Router
	memory Memory
	cfg    Config
	logger *slog.Logger
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds a Server and registers its routes. It does not listen.
func New(router Router, mem Memory, cfg Config) *Server {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = memory.DefaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		router: router,
		memory: mem,
		cfg:    cfg,
		logger: cfg.Logger,
	}
	s.app = fiber.New(fiber.Config{
		AppName:      "kiroku",
		ServerHeader: "kiroku/" + version.Version,
		ErrorHandler: s.handleError,
	})

	s.app.Use(
		recoverer.New(),
		traceMiddleware,
		cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}),
		logger.New(logger.Config{
			// Skip liveness probes.
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/"
			},
		}),
	)
	s.app.Get("/", s.handleLiveness)
	s.app.Post("/chat", s.handleChat)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until Shutdown is called.
func (s *Server) Listen() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func traceMiddleware(c fiber.Ctx) error {
	id := strings.Clone(c.Get(trace.Header))
	if id == "" {
		id = trace.GenerateID()
	}
	c.Locals(localsTraceID, id)
	c.Set(trace.Header, id)
	return c.Next()
}

// requestContext returns the request's context carrying its trace ID. It
// must not outlive the handler since fiber recycles c.
func requestContext(c fiber.Ctx) context.Context {
	var ctx context.Context = c
	if id, ok := c.Locals(localsTraceID).(string); ok && id != "" {
		ctx = trace.WithTraceID(ctx, id)
	}
	return ctx
}

func (s *Server) handleLiveness(c fiber.Ctx) error {
	return c.SendString(LivenessText)
}

func (s *Server) handleChat(c fiber.Ctx) error {
	ctx := requestContext(c)
	log := observability.FromLogger(ctx, s.logger)

	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: errNoQuery})
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Error("chat: decode request", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: errInternal})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: errNoQuery})
	}

	sessionID := req.SessionID
	if sessionID == "" {
		// fasthttp reuses header buffers across keep-alive requests.
		sessionID = strings.Clone(c.Get(HeaderSessionID))
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	c.Set(HeaderSessionID, sessionID)
	log = log.With("session_id", sessionID)

	matches, err := s.memory.Retrieve(ctx, req.Query, s.cfg.TopK)
	if err != nil {
		return s.internalError(c, log, "retrieve memories", err)
	}
	if log.Enabled(ctx, slog.LevelDebug) {
		related := make([]string, 0, len(matches))
		for _, m := range matches {
			related = append(related, fmt.Sprintf("%.3f %s", m.Similarity, m.ID))
		}
		log.Debug("related memories", "count", len(matches), "matches", related)
	}

	resp, err := s.router.Route(ctx, sessionID, req.Query)
	if err != nil {
		return s.internalError(c, log, "route query", err)
	}
	if resp == nil || resp.Output == "" {
		log.Warn("chat: agent returned an empty response")
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: errEmptyResponse})
	}

	if err := s.memory.Store(ctx, req.Query, resp); err != nil {
		return s.internalError(c, log, "store turn", err)
	}

	log.Info("chat turn completed", "tool_calls", len(resp.Invocations))
	return c.JSON(chatResponse{Response: resp.Output})
}

func (s *Server) internalError(c fiber.Ctx, log *slog.Logger, op string, err error) error {
	log.Error("chat: "+op, "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: errInternal})
}

// handleError renders errors that escaped a handler, including recovered
// panics, as JSON. Fiber errors keep their status and message.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message})
	}
	observability.FromLogger(requestContext(c), s.logger).Error("unhandled error", "path", c.Path(), "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: errInternal})
}
