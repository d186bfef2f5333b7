package stream

import (
	"errors"
	"fmt"
	"testing"

	"github.com/user/stepwise/internal/protocol"
)

func TestBufferPreservesOrder(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < 5; i++ {
		if err := b.Write(protocol.TextDelta{ID: "m1", Delta: fmt.Sprintf("%d", i)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	events := b.Events()
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, ev := range events {
		td := ev.(protocol.TextDelta)
		if td.Delta != fmt.Sprintf("%d", i) {
			t.Errorf("event %d out of order: %q", i, td.Delta)
		}
	}
	if b.Len() != 5 {
		t.Errorf("expected Len 5, got %d", b.Len())
	}
}

func TestMultiWriterFansOut(t *testing.T) {
	a := NewBuffer()
	b := NewBuffer()
	mw := MultiWriter(a, b)

	ev := protocol.SourceURL{SourceID: "source-0", URL: "https://a.co"}
	if err := mw.Write(ev); err != nil {
		t.Fatalf("write: %v", err)
	}

	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("expected each sink to receive the event, got %d and %d", a.Len(), b.Len())
	}
}

func TestMultiWriterStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	failing := WriterFunc(func(protocol.Event) error { return boom })
	after := NewBuffer()

	mw := MultiWriter(failing, after)
	err := mw.Write(protocol.TextDelta{ID: "m1", Delta: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if after.Len() != 0 {
		t.Error("writer after the failing one still received the event")
	}
}
