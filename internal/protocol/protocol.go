// Package protocol defines the wire events exchanged between the agent side
// and the consuming client: run lifecycle, step upserts, artifact streaming,
// and source attributions. Events are self-contained; ordering is total per
// run/artifact id and unspecified across unrelated ids.
package protocol

// Wire discriminator values, one per event type.
const (
	TypeRunStart      = "data-chain-of-thought-run-start"
	TypeStepUpdate    = "data-chain-of-thought-step-update"
	TypeRunEnd        = "data-chain-of-thought-run-end"
	TypeArtifactStart = "data-artifact-start"
	TypeArtifactDelta = "data-artifact-delta"
	TypeSourceURL     = "source-url"
	TypeTextDelta     = "text-delta"
)

// RunKind identifies which delegate owns a run.
type RunKind string

const (
	RunKindSearch       RunKind = "agentic-search"
	RunKindCode         RunKind = "agentic-code"
	RunKindDataAnalysis RunKind = "agentic-data-analysis"
	RunKindArtifact     RunKind = "agentic-artifact"
)

// StepKind identifies the payload shape carried by a step.
type StepKind string

const (
	StepKindSearch       StepKind = "search"
	StepKindText         StepKind = "text"
	StepKindImage        StepKind = "image"
	StepKindCode         StepKind = "code"
	StepKindDate         StepKind = "date"
	StepKindWriting      StepKind = "writing"
	StepKindComponent    StepKind = "component"
	StepKindDataAnalysis StepKind = "data-analysis"
)

// Status is the lifecycle state shared by runs and steps.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Event is implemented by every wire event.
type Event interface {
	EventType() string
}

// StepData is the closed set of step payloads, discriminated by the step's
// kind. The kind of a step never changes across upserts, so the payload
// variant is stable for the lifetime of a step id.
type StepData interface {
	StepKind() StepKind
}

// SearchResult is one web search hit.
type SearchResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// SearchData is the payload of a search step: the query plus the results
// collected so far (empty while the step is pending).
type SearchData struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

func (SearchData) StepKind() StepKind { return StepKindSearch }

// TextData is a free-text step payload.
type TextData struct {
	Text string `json:"text"`
}

func (TextData) StepKind() StepKind { return StepKindText }

// ImageData references a generated or fetched image.
type ImageData struct {
	Image string `json:"image"`
}

func (ImageData) StepKind() StepKind { return StepKindImage }

// DateData carries a resolved date string.
type DateData struct {
	Date string `json:"date"`
}

func (DateData) StepKind() StepKind { return StepKindDate }

// WritingData describes progress of an artifact writing pass.
type WritingData struct {
	Content string `json:"content"`
}

func (WritingData) StepKind() StepKind { return StepKindWriting }

// CodeData is the payload of a code-execution step. Output is nil until the
// snippet has run.
type CodeData struct {
	Task   string  `json:"task"`
	Code   string  `json:"code"`
	Output *string `json:"output,omitempty"`
}

func (CodeData) StepKind() StepKind { return StepKindCode }

// ComponentData records which embeddable component a delegate produced.
type ComponentData struct {
	Component string `json:"component"`
}

func (ComponentData) StepKind() StepKind { return StepKindComponent }

// AnalysisData is the payload of a data-analysis step.
type AnalysisData struct {
	Text string `json:"text"`
}

func (AnalysisData) StepKind() StepKind { return StepKindDataAnalysis }

// RunStart opens a run. Steps always starts empty; the client fills it from
// subsequent StepUpdate events.
type RunStart struct {
	ID            string
	Kind          RunKind
	Status        Status
	StartDatetime int64
}

func (RunStart) EventType() string { return TypeRunStart }

// StepUpdate upserts one step of a run: the first event for a (RunID, StepID)
// pair creates the step, later events replace its status and data in place.
type StepUpdate struct {
	RunID         string
	StepID        string
	Kind          StepKind
	Status        Status
	Data          StepData
	StartDatetime int64
	EndDatetime   int64
}

func (StepUpdate) EventType() string { return TypeStepUpdate }

// RunEnd closes a run. Status is never pending.
type RunEnd struct {
	ID          string
	Status      Status
	EndDatetime int64
}

func (RunEnd) EventType() string { return TypeRunEnd }

// ArtifactStart announces a new artifact before any content deltas.
type ArtifactStart struct {
	ID          string
	Title       string
	Description string
	Plan        string
}

func (ArtifactStart) EventType() string { return TypeArtifactStart }

// ArtifactDelta appends a content fragment to an artifact.
type ArtifactDelta struct {
	ID    string
	Delta string
}

func (ArtifactDelta) EventType() string { return TypeArtifactDelta }

// SourceURL attributes part of a search summary to a source.
type SourceURL struct {
	SourceID string
	URL      string
}

func (SourceURL) EventType() string { return TypeSourceURL }

// TextDelta is a fragment of the orchestrator's own conversational text,
// interleaved with delegate events on the same stream.
type TextDelta struct {
	ID    string
	Delta string
}

func (TextDelta) EventType() string { return TypeTextDelta }
