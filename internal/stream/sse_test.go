package stream

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/stepwise/internal/protocol"
)

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestSSEFrames(t *testing.T) {
	var rec flushRecorder
	sse := NewSSE(&rec)

	events := []protocol.Event{
		protocol.TextDelta{ID: "m1", Delta: "Hel"},
		protocol.TextDelta{ID: "m1", Delta: "lo"},
	}
	for _, ev := range events {
		if err := sse.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	out := rec.String()
	frames := strings.Split(strings.TrimSuffix(out, "\n\n"), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %q", len(frames), out)
	}
	for i, frame := range frames {
		if !strings.HasPrefix(frame, "data: ") {
			t.Errorf("frame %d missing data prefix: %q", i, frame)
		}
		if !strings.Contains(frame, `"text-delta"`) {
			t.Errorf("frame %d missing event type: %q", i, frame)
		}
	}
	if rec.flushes != 2 {
		t.Errorf("expected a flush per frame, got %d", rec.flushes)
	}
}

func TestSSEWithoutFlusher(t *testing.T) {
	var buf bytes.Buffer
	sse := NewSSE(&buf)

	if err := sse.Write(protocol.SourceURL{SourceID: "source-0", URL: "https://a.co"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n\n") {
		t.Errorf("frame missing terminator: %q", buf.String())
	}
}
