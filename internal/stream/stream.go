// Package stream provides the single ordered outbound channel that all
// agent components append their events to. Append order becomes stream
// order; events are atomic units, so interleaving between runs can only
// happen between complete events, never inside one.
package stream

import (
	"sync"

	"github.com/user/stepwise/internal/protocol"
)

// Writer is the shared event sink. Write appends the event and returns;
// there is no acknowledgement, deduplication, or filtering. If the
// downstream transport is slow the call blocks, which in turn blocks the
// producing delegate.
type Writer interface {
	Write(ev protocol.Event) error
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(ev protocol.Event) error

func (f WriterFunc) Write(ev protocol.Event) error { return f(ev) }

// Buffer is an in-memory Writer that records events in append order.
type Buffer struct {
	mu     sync.Mutex
	events []protocol.Event
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write appends the event.
func (b *Buffer) Write(ev protocol.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

// Events returns a snapshot of all events written so far, in order.
func (b *Buffer) Events() []protocol.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of events written so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// multiWriter fans a single append out to several sinks in order.
type multiWriter struct {
	writers []Writer
}

// MultiWriter returns a Writer that forwards each event to every given
// writer, stopping at the first error. The forwarding happens inside one
// Write call, so per-caller FIFO ordering is preserved for every sink.
func MultiWriter(writers ...Writer) Writer {
	return &multiWriter{writers: writers}
}

func (m *multiWriter) Write(ev protocol.Event) error {
	for _, w := range m.writers {
		if err := w.Write(ev); err != nil {
			return err
		}
	}
	return nil
}
