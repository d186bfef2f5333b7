// Package server exposes the conversational endpoint over HTTP. Each
// chat request carries the full message history and streams the event
// stream back as server-sent events, the way a remote client consumes it.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/user/stepwise/internal/agents"
	"github.com/user/stepwise/internal/stream"
	"github.com/user/stepwise/pkg/llm"
)

// Server hosts the chat endpoint.
type Server struct {
	e           *echo.Echo
	orch        *agents.Orchestrator
	turnTimeout time.Duration
}

// New creates a Server around the orchestrator.
func New(orch *agents.Orchestrator, turnTimeout time.Duration) *Server {
	s := &Server{
		e:           echo.New(),
		orch:        orch,
		turnTimeout: turnTimeout,
	}
	s.e.HideBanner = true
	s.e.GET("/health", s.handleHealth)
	s.e.POST("/api/chat", s.handleChat)
	return s
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage    `json:"messages"`
	Files    []agents.FileRef `json:"files"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON")
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages are required")
	}

	history := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.turnTimeout)
	defer cancel()

	w := stream.NewSSE(resp)
	if _, err := s.orch.Respond(ctx, w, history, req.Files); err != nil {
		// The stream has already started; the client sees the run stuck
		// in progress rather than an HTTP error.
		slog.Error("turn failed", "error", err)
	}
	return nil
}

// Start begins serving on addr and blocks.
func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
