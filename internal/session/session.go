// Package session owns the conversational-session lifecycle: the
// per-turn deadline, the conversation history handed to the orchestrator,
// and the client-side reducer state, created at session start and cleared
// at teardown.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/stepwise/internal/agents"
	"github.com/user/stepwise/internal/protocol"
	"github.com/user/stepwise/internal/reducer"
	"github.com/user/stepwise/internal/stream"
	"github.com/user/stepwise/pkg/llm"
)

// DefaultTurnTimeout bounds one conversational turn end to end.
const DefaultTurnTimeout = 30 * time.Second

// Session is one conversation. Turns are serialized; at most one
// orchestrator loop runs at a time.
type Session struct {
	orch        *agents.Orchestrator
	store       *reducer.Store
	turnTimeout time.Duration

	mu      sync.Mutex
	history []llm.Message
}

// New creates a session around the orchestrator. turnTimeout <= 0 uses
// DefaultTurnTimeout.
func New(orch *agents.Orchestrator, turnTimeout time.Duration) *Session {
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	return &Session{
		orch:        orch,
		store:       reducer.NewStore(),
		turnTimeout: turnTimeout,
	}
}

// Store exposes the session's reducer state for read access by a
// presentation layer.
func (s *Session) Store() *reducer.Store {
	return s.store
}

// Turn runs one conversational turn. Every event is folded into the
// session's reducer and, when extra is non-nil, forwarded to it as well.
// Returns the final assistant text.
func (s *Session) Turn(ctx context.Context, extra stream.Writer, text string, files []agents.FileRef) (string, error) {
	if text == "" {
		return "", fmt.Errorf("empty user message")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	// Reducer-local protocol violations are reported and skipped; they
	// must not abort the producing delegate.
	fold := stream.WriterFunc(func(ev protocol.Event) error {
		if err := s.store.Apply(ev); err != nil {
			slog.Warn("event rejected by reducer", "error", err)
		}
		return nil
	})
	var w stream.Writer = fold
	if extra != nil {
		w = stream.MultiWriter(fold, extra)
	}

	s.history = append(s.history, llm.Message{Role: "user", Content: text})
	reply, err := s.orch.Respond(ctx, w, s.history, files)
	if err != nil {
		return "", fmt.Errorf("turn failed: %w", err)
	}
	s.history = append(s.history, llm.Message{Role: "assistant", Content: reply})
	return reply, nil
}

// Close tears the session down, clearing all reducer state. Runs and
// artifacts never persist past this boundary.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Clear()
	s.history = nil
}
