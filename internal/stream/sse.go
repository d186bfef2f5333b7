package stream

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/user/stepwise/internal/protocol"
)

// SSE encodes events as server-sent-event frames onto an io.Writer,
// flushing after each frame when the writer supports it. The write path is
// synchronous: a slow client blocks the producing delegate, which is the
// intended backpressure.
type SSE struct {
	mu sync.Mutex
	w  io.Writer
	fl http.Flusher
}

// NewSSE creates an SSE encoder over w. If w implements http.Flusher each
// frame is flushed immediately for low-latency incremental rendering.
func NewSSE(w io.Writer) *SSE {
	s := &SSE{w: w}
	if fl, ok := w.(http.Flusher); ok {
		s.fl = fl
	}
	return s
}

// Write encodes the event as one "data:" frame.
func (s *SSE) Write(ev protocol.Event) error {
	raw, err := protocol.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if s.fl != nil {
		s.fl.Flush()
	}
	return nil
}
