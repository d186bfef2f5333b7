// Package agents implements the delegate agent loops (search, artifact
// writer, data analysis) and the orchestrator that sequences them. Each
// loop is a step-counted iteration over model calls with an injected
// capability table; the step cap and the capability set are plain
// configuration, not implicit call-stack depth.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/user/stepwise/pkg/llm"
)

// Capability is one internal tool available to a bounded loop.
type Capability struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	// Execute runs the capability. callID is the model's tool-invocation
	// identifier, used as the step (or run) id for progress events. An
	// error aborts the loop and propagates to the caller unhandled.
	Execute func(ctx context.Context, callID string, args json.RawMessage) (string, error)
}

// Loop drives a bounded reasoning loop: model call, tool execution,
// repeat, until the model answers without tool calls or MaxSteps model
// calls have been made.
type Loop struct {
	Provider llm.Provider
	MaxSteps int
	Caps     []Capability

	// OnText, when set, switches the loop to streaming completions and
	// receives each assistant text fragment as it arrives.
	OnText func(fragment string) error
}

// Result reports how a loop ended.
type Result struct {
	// Content is the assistant's final text, empty when the loop hit the
	// step cap mid-reasoning.
	Content string
	// Steps is the number of model calls made.
	Steps int
}

// Run executes the loop starting from the given conversation.
func (l *Loop) Run(ctx context.Context, messages []llm.Message) (*Result, error) {
	tools := make([]llm.Tool, 0, len(l.Caps))
	for _, c := range l.Caps {
		tools = append(tools, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        c.Name,
				Description: c.Description,
				Parameters:  c.Parameters,
			},
		})
	}

	msgs := make([]llm.Message, len(messages))
	copy(msgs, messages)

	for step := 0; step < l.MaxSteps; step++ {
		var (
			resp *llm.Response
			err  error
		)
		if l.OnText != nil {
			resp, err = l.streamOnce(ctx, msgs, tools)
		} else {
			resp, err = l.Provider.Complete(ctx, msgs, tools)
		}
		if err != nil {
			return nil, fmt.Errorf("model call: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return &Result{Content: resp.Content, Steps: step + 1}, nil
		}

		// Some backends omit tool-call ids; assign them before the calls
		// land in the transcript so the assistant message and the tool
		// results reference the same id.
		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = uuid.New().String()
			}
		}

		msgs = append(msgs, llm.Message{
			Role:    "assistant",
			Content: resp.Content,
			Tools:   resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			result, err := l.execute(ctx, tc)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, llm.Message{
				Role:    "tool",
				Content: result,
				Tools:   []llm.ToolCall{{ID: tc.ID}},
			})
		}
	}

	return &Result{Steps: l.MaxSteps}, nil
}

func (l *Loop) execute(ctx context.Context, tc llm.ToolCall) (string, error) {
	var found *Capability
	for i := range l.Caps {
		if l.Caps[i].Name == tc.Function.Name {
			found = &l.Caps[i]
			break
		}
	}
	if found == nil {
		// Model hallucinated a tool name; tell it rather than abort.
		return fmt.Sprintf("error: unknown tool %q", tc.Function.Name), nil
	}

	result, err := found.Execute(ctx, tc.ID, tc.Function.Arguments)
	if err != nil {
		return "", fmt.Errorf("%s: %w", found.Name, err)
	}
	return result, nil
}

// streamOnce performs one streaming model call, forwarding text fragments
// to OnText and assembling the full response.
func (l *Loop) streamOnce(ctx context.Context, msgs []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	deltas, err := l.Provider.Stream(ctx, msgs, tools)
	if err != nil {
		return nil, err
	}

	resp := &llm.Response{}
	for delta := range deltas {
		if delta.Err != nil {
			return nil, fmt.Errorf("stream: %w", delta.Err)
		}
		if delta.Content != "" {
			resp.Content += delta.Content
			if err := l.OnText(delta.Content); err != nil {
				return nil, fmt.Errorf("forward text fragment: %w", err)
			}
		}
		if len(delta.ToolCalls) > 0 {
			resp.ToolCalls = append(resp.ToolCalls, delta.ToolCalls...)
		}
	}
	return resp, nil
}
