package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/stepwise/internal/callout"
	"github.com/user/stepwise/internal/protocol"
	"github.com/user/stepwise/internal/stream"
	"github.com/user/stepwise/pkg/llm"
)

const artifactLoopSteps = 3

// flashCardComponent is the embeddable component the writer can produce.
const flashCardComponent = "flash-card"

// ArtifactInput describes the document to author.
type ArtifactInput struct {
	Title       string
	Description string
	Plan        string
}

// FlashCard is one question/answer pair of a flash-card component.
type FlashCard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ArtifactAgent authors a document through a bounded generation loop,
// streaming every text fragment as an artifact delta the moment it
// arrives and embedding component blocks for flash cards.
type ArtifactAgent struct {
	provider llm.Provider
	now      func() time.Time
}

// NewArtifactAgent creates an artifact-writer delegate.
func NewArtifactAgent(provider llm.Provider) *ArtifactAgent {
	return &ArtifactAgent{provider: provider, now: time.Now}
}

// Run authors one artifact. runID is the caller's tool-invocation id and
// doubles as the artifact id. Returns the fully accumulated content.
func (a *ArtifactAgent) Run(ctx context.Context, w stream.Writer, runID string, in ArtifactInput) (string, error) {
	if in.Title == "" {
		return "", fmt.Errorf("title is required")
	}

	err := w.Write(protocol.ArtifactStart{
		ID:          runID,
		Title:       in.Title,
		Description: in.Description,
		Plan:        in.Plan,
	})
	if err != nil {
		return "", err
	}

	start := a.now().UnixMilli()
	err = w.Write(protocol.RunStart{
		ID:            runID,
		Kind:          protocol.RunKindArtifact,
		Status:        protocol.StatusPending,
		StartDatetime: start,
	})
	if err != nil {
		return "", err
	}

	writingStepID := uuid.New().String()
	err = w.Write(protocol.StepUpdate{
		RunID:         runID,
		StepID:        writingStepID,
		Kind:          protocol.StepKindWriting,
		Status:        protocol.StatusPending,
		Data:          protocol.WritingData{Content: fmt.Sprintf("Writing artifact titled: '%s'", in.Title)},
		StartDatetime: start,
	})
	if err != nil {
		return "", err
	}

	var content strings.Builder
	loop := &Loop{
		Provider: a.provider,
		MaxSteps: artifactLoopSteps,
		Caps:     []Capability{a.flashCardCapability(w, runID, &content)},
		OnText: func(fragment string) error {
			content.WriteString(fragment)
			return w.Write(protocol.ArtifactDelta{ID: runID, Delta: fragment})
		},
	}

	writerPrompt := fmt.Sprintf(`You are a writer and you write a detailed report based on the following:
title: %s
description: %s
plan: %s

Follow these rules:
- use the markdown format to write the document.
- write the document following the plan and the description.
- DO NOT have preambles like "Sure! Here's the report..." or anything like that, go straight to the content.
- If you need to create flash cards, use the flash-card tool to create them.`,
		in.Title, in.Description, in.Plan)

	if _, err := loop.Run(ctx, []llm.Message{{Role: "user", Content: writerPrompt}}); err != nil {
		return "", err
	}

	err = w.Write(protocol.StepUpdate{
		RunID:  runID,
		StepID: writingStepID,
		Kind:   protocol.StepKindWriting,
		Status: protocol.StatusCompleted,
		Data:   protocol.WritingData{Content: fmt.Sprintf("Wrote artifact titled: '%s'", in.Title)},
	})
	if err != nil {
		return "", err
	}

	err = w.Write(protocol.RunEnd{
		ID:          runID,
		Status:      protocol.StatusCompleted,
		EndDatetime: a.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}

	return content.String(), nil
}

// flashCardCapability serializes the tool call into a callout block,
// forwards it as a delta, and records a completed component step.
func (a *ArtifactAgent) flashCardCapability(w stream.Writer, runID string, content *strings.Builder) Capability {
	return Capability{
		Name:        flashCardComponent,
		Description: "Use the flash-card tool when creating flash cards",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "The title of the flash cards"},
				"cards": {
					"type": "array",
					"description": "The cards of the flash card",
					"items": {
						"type": "object",
						"properties": {
							"question": {"type": "string", "description": "The question of the flash card"},
							"answer": {"type": "string", "description": "The answer of the flash card"}
						},
						"required": ["question", "answer"]
					}
				}
			},
			"required": ["title", "cards"]
		}`),
		Execute: func(_ context.Context, _ string, args json.RawMessage) (string, error) {
			var input struct {
				Title string      `json:"title"`
				Cards []FlashCard `json:"cards"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}

			block, err := callout.Encode(flashCardComponent, args)
			if err != nil {
				return "", fmt.Errorf("encode component block: %w", err)
			}
			if err := w.Write(protocol.ArtifactDelta{ID: runID, Delta: block}); err != nil {
				return "", err
			}
			content.WriteString(block)

			err = w.Write(protocol.StepUpdate{
				RunID:  runID,
				StepID: runID,
				Kind:   protocol.StepKindComponent,
				Status: protocol.StatusCompleted,
				Data:   protocol.ComponentData{Component: flashCardComponent},
			})
			if err != nil {
				return "", err
			}

			raw, err := json.Marshal(input.Cards)
			if err != nil {
				return "", fmt.Errorf("marshal cards: %w", err)
			}
			return string(raw), nil
		},
	}
}
