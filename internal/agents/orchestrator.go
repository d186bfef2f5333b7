package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/user/stepwise/internal/protocol"
	"github.com/user/stepwise/internal/stream"
	"github.com/user/stepwise/pkg/llm"
)

const orchestratorSteps = 10

// Orchestrator is the top-level bounded reasoning loop. It exposes the
// three delegates as callable tools, executes at most one delegate at a
// time, and streams its own text to the client interleaved with whichever
// delegate is currently emitting events.
type Orchestrator struct {
	provider llm.Provider
	search   *SearchAgent
	artifact *ArtifactAgent
	analysis *DataAnalysisAgent
}

// NewOrchestrator creates the top-level loop over the three delegates.
func NewOrchestrator(provider llm.Provider, search *SearchAgent, artifact *ArtifactAgent, analysis *DataAnalysisAgent) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		search:   search,
		artifact: artifact,
		analysis: analysis,
	}
}

// Respond runs one conversational turn over the given history. files are
// tabular attachments extracted from conversation metadata; their
// presence nudges the model toward the data-analysis delegate. Returns
// the final assistant text.
func (o *Orchestrator) Respond(ctx context.Context, w stream.Writer, history []llm.Message, files []FileRef) (string, error) {
	messageID := uuid.New().String()

	loop := &Loop{
		Provider: o.provider,
		MaxSteps: orchestratorSteps,
		Caps: []Capability{
			o.searchTool(w),
			o.artifactTool(w),
			o.analysisTool(w, files),
		},
		OnText: func(fragment string) error {
			return w.Write(protocol.TextDelta{ID: messageID, Delta: fragment})
		},
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt(files)})
	msgs = append(msgs, history...)

	res, err := loop.Run(ctx, msgs)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

func (o *Orchestrator) searchTool(w stream.Writer) Capability {
	return Capability{
		Name:        "agenticSearch",
		Description: "Search the web for information",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"}
			},
			"required": ["query"]
		}`),
		Execute: func(ctx context.Context, callID string, args json.RawMessage) (string, error) {
			var in struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			if in.Query == "" {
				return "error: query is required", nil
			}
			return o.search.Run(ctx, w, callID, in.Query)
		},
	}
}

func (o *Orchestrator) artifactTool(w stream.Writer) Capability {
	return Capability{
		Name: "agenticArtifact",
		Description: "Use the artifact tool when creating reports or summaries of information, " +
			"you can use the flash-card tool to create flash cards.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "The title of the artifact"},
				"description": {"type": "string", "description": "The description of the artifact"},
				"plan": {"type": "string", "description": "a point-by-point of what needs to be written in the artifact"}
			},
			"required": ["title", "description", "plan"]
		}`),
		Execute: func(ctx context.Context, callID string, args json.RawMessage) (string, error) {
			var in struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				Plan        string `json:"plan"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			if in.Title == "" || in.Description == "" || in.Plan == "" {
				return "error: title, description, and plan are required", nil
			}
			return o.artifact.Run(ctx, w, callID, ArtifactInput{
				Title:       in.Title,
				Description: in.Description,
				Plan:        in.Plan,
			})
		},
	}
}

func (o *Orchestrator) analysisTool(w stream.Writer, files []FileRef) Capability {
	return Capability{
		Name:        "agenticDataAnalysis",
		Description: "Analyze CSV, Excel, or JSON data",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "The title of the data analysis"},
				"description": {"type": "string", "description": "The description of the data analysis"},
				"plan": {"type": "string", "description": "The step-by-step plan of the data analysis"}
			},
			"required": ["title", "description", "plan"]
		}`),
		Execute: func(ctx context.Context, callID string, args json.RawMessage) (string, error) {
			var in struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				Plan        string `json:"plan"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			if in.Title == "" || in.Description == "" || in.Plan == "" {
				return "error: title, description, and plan are required", nil
			}
			return o.analysis.Run(ctx, w, callID, AnalysisInput{
				Title:       in.Title,
				Description: in.Description,
				Plan:        in.Plan,
			}, files)
		},
	}
}

func systemPrompt(files []FileRef) string {
	var nudge string
	if len(files) > 0 {
		links := make([]string, 0, len(files))
		for _, f := range files {
			links = append(links, fmt.Sprintf("[%s](%s)", f.Filename, f.URL))
		}
		nudge = fmt.Sprintf("Tabular data has been provided. File(s): %s. Use the agentic data analysis tool to analyze the data.",
			strings.Join(links, ", "))
	}

	return fmt.Sprintf(`You are a helpful assistant. Follow these instructions:
- Use the agentic search tool to find information.
- Use the agentic artifact tool to create an artifact/document/report/flash cards, best used to display information in a structured way.
- Use the agentic data analysis tool to analyze the data, use this when you need to analyze csv data.

%s`, nudge)
}
