package agents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/stepwise/internal/callout"
	"github.com/user/stepwise/internal/protocol"
	"github.com/user/stepwise/internal/stream"
	"github.com/user/stepwise/pkg/llm"
)

func TestArtifactAgentStreamsDeltas(t *testing.T) {
	provider := &fakeProvider{streams: [][]llm.Delta{
		{{Content: "Hello "}, {Content: "World"}},
	}}

	agent := NewArtifactAgent(provider)
	agent.now = func() time.Time { return time.UnixMilli(2000) }

	buf := stream.NewBuffer()
	content, err := agent.Run(context.Background(), buf, "art-1", ArtifactInput{
		Title:       "Greeting",
		Description: "A short greeting",
		Plan:        "Say hello",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if content != "Hello World" {
		t.Errorf("expected accumulated content, got %q", content)
	}

	events := buf.Events()

	start, ok := events[0].(protocol.ArtifactStart)
	if !ok || start.ID != "art-1" || start.Title != "Greeting" {
		t.Fatalf("expected artifact-start first, got %#v", events[0])
	}

	runStart, ok := events[1].(protocol.RunStart)
	if !ok || runStart.Kind != protocol.RunKindArtifact {
		t.Fatalf("expected run-start second, got %#v", events[1])
	}

	var deltas []string
	var writingStatuses []protocol.Status
	for _, ev := range events {
		switch e := ev.(type) {
		case protocol.ArtifactDelta:
			if e.ID != "art-1" {
				t.Errorf("delta for wrong artifact: %q", e.ID)
			}
			deltas = append(deltas, e.Delta)
		case protocol.StepUpdate:
			if e.Kind == protocol.StepKindWriting {
				writingStatuses = append(writingStatuses, e.Status)
			}
		}
	}

	if strings.Join(deltas, "") != "Hello World" {
		t.Errorf("deltas do not reassemble the content: %v", deltas)
	}
	if len(writingStatuses) != 2 ||
		writingStatuses[0] != protocol.StatusPending ||
		writingStatuses[1] != protocol.StatusCompleted {
		t.Errorf("expected writing pending then completed, got %v", writingStatuses)
	}

	end, ok := events[len(events)-1].(protocol.RunEnd)
	if !ok || end.Status != protocol.StatusCompleted {
		t.Errorf("expected completed run-end last, got %#v", events[len(events)-1])
	}
}

func TestArtifactAgentFlashCards(t *testing.T) {
	cardArgs := `{"title":"Capitals","cards":[{"question":"Capital of France?","answer":"Paris"}]}`
	provider := &fakeProvider{streams: [][]llm.Delta{
		{
			{Content: "# Capitals\n\n"},
			{ToolCalls: []llm.ToolCall{toolCall("call-fc", "flash-card", cardArgs)}},
		},
		{},
	}}

	agent := NewArtifactAgent(provider)
	buf := stream.NewBuffer()

	content, err := agent.Run(context.Background(), buf, "art-1", ArtifactInput{
		Title:       "Capitals",
		Description: "Flash cards",
		Plan:        "One card",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !strings.Contains(content, ":::callout") {
		t.Errorf("content missing component block: %q", content)
	}

	// The block embedded in the content must decode back to the card input.
	idx := strings.Index(content, ":::callout")
	block, err := callout.Decode(content[idx:])
	if err != nil {
		t.Fatalf("decode embedded block: %v", err)
	}
	if block.Type != "flash-card" {
		t.Errorf("unexpected component type: %q", block.Type)
	}
	var inner json.RawMessage
	if err := json.Unmarshal(block.Input, &inner); err != nil {
		t.Fatalf("component input not JSON: %v", err)
	}

	var componentSteps int
	for _, ev := range buf.Events() {
		if e, ok := ev.(protocol.StepUpdate); ok && e.Kind == protocol.StepKindComponent {
			componentSteps++
			if e.StepID != "art-1" {
				t.Errorf("component step id should be the run id, got %q", e.StepID)
			}
			if e.Status != protocol.StatusCompleted {
				t.Errorf("component step not completed: %s", e.Status)
			}
			if e.Data.(protocol.ComponentData).Component != "flash-card" {
				t.Errorf("unexpected component data: %#v", e.Data)
			}
		}
	}
	if componentSteps != 1 {
		t.Errorf("expected 1 component step, got %d", componentSteps)
	}

	result, ok := provider.lastToolResult()
	if !ok || !strings.Contains(result, "Paris") {
		t.Errorf("expected cards as tool result, got %q", result)
	}
}

func TestArtifactAgentStreamFailureLeavesRunOpen(t *testing.T) {
	boom := errors.New("connection reset")
	provider := &fakeProvider{streams: [][]llm.Delta{
		{{Content: "partial "}, {Err: boom}},
	}}

	agent := NewArtifactAgent(provider)
	buf := stream.NewBuffer()

	_, err := agent.Run(context.Background(), buf, "art-1", ArtifactInput{
		Title:       "Greeting",
		Description: "D",
		Plan:        "P",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport failure to propagate, got %v", err)
	}

	// Truncated content must never be wrapped up as a finished artifact.
	var sawCompletedWriting bool
	for _, ev := range buf.Events() {
		switch e := ev.(type) {
		case protocol.RunEnd:
			t.Error("failed run must not emit run-end")
		case protocol.StepUpdate:
			if e.Kind == protocol.StepKindWriting && e.Status == protocol.StatusCompleted {
				sawCompletedWriting = true
			}
		}
	}
	if sawCompletedWriting {
		t.Error("failed run must not complete the writing step")
	}
}

func TestArtifactAgentRequiresTitle(t *testing.T) {
	agent := NewArtifactAgent(&fakeProvider{})
	buf := stream.NewBuffer()

	if _, err := agent.Run(context.Background(), buf, "art-1", ArtifactInput{}); err == nil {
		t.Fatal("expected error for missing title")
	}
	if buf.Len() != 0 {
		t.Error("invalid input must not emit events")
	}
}
