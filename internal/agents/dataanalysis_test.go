package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/stepwise/internal/protocol"
	"github.com/user/stepwise/internal/sandbox"
	"github.com/user/stepwise/internal/stream"
	"github.com/user/stepwise/pkg/llm"
)

type fakeSandbox struct {
	mu       sync.Mutex
	mkdirs   []string
	commands [][]string
	stops    int

	output string
	runErr error
}

func (f *fakeSandbox) MkDir(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirs = append(f.mkdirs, dir)
	return nil
}

func (f *fakeSandbox) RunCommand(_ context.Context, cmd string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, append([]string{cmd}, args...))
	if f.runErr != nil {
		return "", f.runErr
	}
	return f.output, nil
}

func (f *fakeSandbox) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

type fakeSandboxProvider struct {
	sb        *fakeSandbox
	createErr error
	creates   int
}

func (f *fakeSandboxProvider) Create(_ context.Context, _ string, _ time.Duration) (sandbox.Sandbox, error) {
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.sb, nil
}

func TestDataAnalysisAgentNoFiles(t *testing.T) {
	provider := &fakeProvider{
		completions: scriptToolCalls("analysis done",
			toolCall("call-code", "run-code", `{"type":"write-code","task":"Count rows","code":"print(42)"}`),
		),
	}
	sb := &fakeSandbox{output: "42"}
	sandboxes := &fakeSandboxProvider{sb: sb}

	agent := NewDataAnalysisAgent(provider, sandboxes)
	agent.now = func() time.Time { return time.UnixMilli(3000) }

	buf := stream.NewBuffer()
	summary, err := agent.Run(context.Background(), buf, "run-1", AnalysisInput{
		Title:       "Row count",
		Description: "Count the rows",
		Plan:        "Print the count",
	}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if sandboxes.creates != 1 || sb.stops != 1 {
		t.Errorf("expected one create and one stop, got %d/%d", sandboxes.creates, sb.stops)
	}
	if len(sb.mkdirs) != 0 {
		t.Errorf("no files means no directory setup, got %v", sb.mkdirs)
	}

	if !strings.Contains(summary, "Task: Count rows") || !strings.Contains(summary, "Output: 42") {
		t.Errorf("summary missing task log: %q", summary)
	}

	events := buf.Events()
	start, ok := events[0].(protocol.RunStart)
	if !ok || start.Kind != protocol.RunKindDataAnalysis {
		t.Fatalf("expected data-analysis run-start first, got %#v", events[0])
	}

	var codeStatuses []protocol.Status
	var sawSandboxCreated bool
	for _, ev := range events {
		e, ok := ev.(protocol.StepUpdate)
		if !ok {
			continue
		}
		switch e.Kind {
		case protocol.StepKindCode:
			codeStatuses = append(codeStatuses, e.Status)
			data := e.Data.(protocol.CodeData)
			if data.Task != "Count rows" || data.Code != "print(42)" {
				t.Errorf("unexpected code step data: %#v", data)
			}
			if e.Status == protocol.StatusCompleted {
				if data.Output == nil || *data.Output != "42" {
					t.Errorf("completed code step missing output: %#v", data)
				}
			} else if data.Output != nil {
				t.Error("pending code step must have no output")
			}
		case protocol.StepKindText:
			if e.Data.(protocol.TextData).Text == "Sandbox created" {
				sawSandboxCreated = true
			}
		}
	}
	if len(codeStatuses) != 2 || codeStatuses[0] != protocol.StatusPending || codeStatuses[1] != protocol.StatusCompleted {
		t.Errorf("expected code pending/completed pair, got %v", codeStatuses)
	}
	if !sawSandboxCreated {
		t.Error("missing sandbox lifecycle step")
	}

	end, ok := events[len(events)-1].(protocol.RunEnd)
	if !ok || end.Status != protocol.StatusCompleted {
		t.Errorf("expected completed run-end last, got %#v", events[len(events)-1])
	}
}

func TestDataAnalysisAgentDownloadsFiles(t *testing.T) {
	provider := &fakeProvider{completions: []llm.Response{{Content: "nothing to do"}}}
	sb := &fakeSandbox{}
	sandboxes := &fakeSandboxProvider{sb: sb}

	agent := NewDataAnalysisAgent(provider, sandboxes)
	buf := stream.NewBuffer()

	files := []FileRef{
		{Filename: "sales.csv", URL: "https://files.test/sales.csv"},
		{Filename: "costs.csv", URL: "https://files.test/costs.csv"},
	}
	summary, err := agent.Run(context.Background(), buf, "run-1", AnalysisInput{Title: "T"}, files)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sb.mkdirs) != 2 || sb.mkdirs[0] != "data" || sb.mkdirs[1] != "results" {
		t.Errorf("unexpected directory setup: %v", sb.mkdirs)
	}

	var pip, curls int
	for _, cmd := range sb.commands {
		switch cmd[0] {
		case "pip":
			pip++
		case "curl":
			curls++
			if cmd[1] != "-o" || !strings.HasPrefix(cmd[2], "./data/") {
				t.Errorf("unexpected curl invocation: %v", cmd)
			}
		}
	}
	if pip != 1 {
		t.Errorf("expected one pip install, got %d", pip)
	}
	if curls != 2 {
		t.Errorf("expected one download per file, got %d", curls)
	}

	// The model prompt names the downloaded file paths.
	if len(provider.calls) == 0 {
		t.Fatal("provider never called")
	}
	promptMsg := provider.calls[0][0].Content
	if !strings.Contains(promptMsg, "./data/sales.csv") || !strings.Contains(promptMsg, "./data/costs.csv") {
		t.Errorf("prompt missing file paths: %q", promptMsg)
	}

	if !strings.Contains(summary, "[sales.csv](https://files.test/sales.csv)") {
		t.Errorf("summary missing file links: %q", summary)
	}

	var downloadStatuses []protocol.Status
	for _, ev := range buf.Events() {
		if e, ok := ev.(protocol.StepUpdate); ok && e.Kind == protocol.StepKindText {
			text := e.Data.(protocol.TextData).Text
			if text == "Downloading files..." || text == "Files downloaded" {
				downloadStatuses = append(downloadStatuses, e.Status)
			}
		}
	}
	if len(downloadStatuses) != 2 {
		t.Errorf("expected download pending/completed pair, got %v", downloadStatuses)
	}
}

func TestDataAnalysisAgentStopsSandboxOnFailure(t *testing.T) {
	// Empty script: the first model call inside the sandbox fails.
	provider := &fakeProvider{}
	sb := &fakeSandbox{}
	sandboxes := &fakeSandboxProvider{sb: sb}

	agent := NewDataAnalysisAgent(provider, sandboxes)
	buf := stream.NewBuffer()

	_, err := agent.Run(context.Background(), buf, "run-1", AnalysisInput{Title: "T"}, nil)
	if err == nil {
		t.Fatal("expected model failure to propagate")
	}

	if sb.stops != 1 {
		t.Errorf("sandbox must be released exactly once on failure, got %d stops", sb.stops)
	}
	for _, ev := range buf.Events() {
		if _, ok := ev.(protocol.RunEnd); ok {
			t.Error("failed run must not emit run-end")
		}
	}
}

func TestDataAnalysisAgentCreateFailure(t *testing.T) {
	boom := errors.New("no capacity")
	sandboxes := &fakeSandboxProvider{createErr: boom}

	agent := NewDataAnalysisAgent(&fakeProvider{}, sandboxes)
	buf := stream.NewBuffer()

	_, err := agent.Run(context.Background(), buf, "run-1", AnalysisInput{Title: "T"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected create error to propagate, got %v", err)
	}
}
