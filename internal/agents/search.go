package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/user/stepwise/internal/prompt"
	"github.com/user/stepwise/internal/protocol"
	"github.com/user/stepwise/internal/searchprov"
	"github.com/user/stepwise/internal/stream"
	"github.com/user/stepwise/pkg/llm"
)

const (
	searchLoopSteps    = 5
	defaultResultCount = 5
)

var summarySchema = llm.Schema{
	Name: "search_summary",
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"relevantSources": {
				"type": "array",
				"items": {"type": "string"},
				"description": "The sources that are relevant to the information"
			}
		},
		"required": ["text", "relevantSources"],
		"additionalProperties": false
	}`),
}

// SearchAgent researches a query through a bounded loop of web searches,
// then distills everything it found into a plain-prose report with source
// attributions.
type SearchAgent struct {
	provider llm.Provider
	searcher searchprov.Provider
	budgeter *prompt.Budgeter

	now func() time.Time
}

// NewSearchAgent creates a search delegate. budgeter may be nil to skip
// token budgeting of the summarizer prompt.
func NewSearchAgent(provider llm.Provider, searcher searchprov.Provider, budgeter *prompt.Budgeter) *SearchAgent {
	return &SearchAgent{
		provider: provider,
		searcher: searcher,
		budgeter: budgeter,
		now:      time.Now,
	}
}

// Run executes one search delegation. runID is assigned by the caller,
// typically the orchestrator's tool-invocation id. The returned text is
// the delegate's tool result for the orchestrator.
//
// Provider and summarizer failures propagate to the caller; the run is
// then left without a run-end event and the client shows it in progress.
func (a *SearchAgent) Run(ctx context.Context, w stream.Writer, runID, query string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	err := w.Write(protocol.RunStart{
		ID:            runID,
		Kind:          protocol.RunKindSearch,
		Status:        protocol.StatusPending,
		StartDatetime: a.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}

	var collected []protocol.SearchResult
	loop := &Loop{
		Provider: a.provider,
		MaxSteps: searchLoopSteps,
		Caps: []Capability{
			a.searchCapability(w, runID, &collected),
			a.dateCapability(w, runID),
		},
	}

	researchPrompt := fmt.Sprintf(`You are an advanced researcher. Here is how you work:
1. You start by using the date tool to get the current date.
2. You break down the query into relevant topics and use the search tool to find the most relevant information. The query is: %s with the current date.
3. You summarise the information you found.`, query)

	if _, err := loop.Run(ctx, []llm.Message{{Role: "user", Content: researchPrompt}}); err != nil {
		return "", err
	}

	return a.summarize(ctx, w, runID, collected)
}

func (a *SearchAgent) searchCapability(w stream.Writer, runID string, collected *[]protocol.SearchResult) Capability {
	return Capability{
		Name:        "search",
		Description: "Search the web for information, for more complex queries, increase the number of results",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"},
				"count": {"type": "integer", "description": "Number of results (default: 5)"}
			},
			"required": ["query"]
		}`),
		Execute: func(ctx context.Context, callID string, args json.RawMessage) (string, error) {
			var params struct {
				Query string `json:"query"`
				Count int    `json:"count"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			if params.Count <= 0 {
				params.Count = defaultResultCount
			}

			err := w.Write(protocol.StepUpdate{
				RunID:  runID,
				StepID: callID,
				Kind:   protocol.StepKindSearch,
				Status: protocol.StatusPending,
				Data:   protocol.SearchData{Query: params.Query, Results: []protocol.SearchResult{}},
			})
			if err != nil {
				return "", err
			}

			hits, err := a.searcher.Search(ctx, params.Query, params.Count)
			if err != nil {
				return "", fmt.Errorf("web search: %w", err)
			}
			results := make([]protocol.SearchResult, 0, len(hits))
			for _, h := range hits {
				results = append(results, protocol.SearchResult{URL: h.URL, Title: h.Title, Text: h.Text})
			}
			*collected = append(*collected, results...)

			err = w.Write(protocol.StepUpdate{
				RunID:  runID,
				StepID: callID,
				Kind:   protocol.StepKindSearch,
				Status: protocol.StatusCompleted,
				Data:   protocol.SearchData{Query: params.Query, Results: results},
			})
			if err != nil {
				return "", err
			}

			raw, err := json.Marshal(results)
			if err != nil {
				return "", fmt.Errorf("marshal results: %w", err)
			}
			return string(raw), nil
		},
	}
}

func (a *SearchAgent) dateCapability(w stream.Writer, runID string) Capability {
	return Capability{
		Name:        "date",
		Description: "Get the current date",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		Execute: func(_ context.Context, callID string, _ json.RawMessage) (string, error) {
			date := a.now().Format("January 2, 2006")
			err := w.Write(protocol.StepUpdate{
				RunID:  runID,
				StepID: callID,
				Kind:   protocol.StepKindDate,
				Status: protocol.StatusCompleted,
				Data:   protocol.DateData{Date: date},
			})
			if err != nil {
				return "", err
			}
			return date, nil
		},
	}
}

// summarize distills the collected results into prose via a
// schema-constrained generation, attributing relevant sources.
func (a *SearchAgent) summarize(ctx context.Context, w stream.Writer, runID string, collected []protocol.SearchResult) (string, error) {
	summaryID := uuid.New().String()
	err := w.Write(protocol.StepUpdate{
		RunID:  runID,
		StepID: summaryID,
		Kind:   protocol.StepKindText,
		Status: protocol.StatusPending,
		Data:   protocol.TextData{},
	})
	if err != nil {
		return "", err
	}

	material, err := json.Marshal(collected)
	if err != nil {
		return "", fmt.Errorf("marshal sources: %w", err)
	}
	content := string(material)
	if a.budgeter != nil {
		content = a.budgeter.Truncate(content)
	}

	summaryPrompt := fmt.Sprintf(`You read vast amounts of information and give a detailed report of the following information in point form.
Remember to include the source of the information in the report.
Content: %s
Return plain text: no markdown, no html, no json, no code.`, content)

	raw, err := a.provider.CompleteStructured(ctx,
		[]llm.Message{{Role: "user", Content: summaryPrompt}}, summarySchema)
	if err != nil {
		return "", fmt.Errorf("summarize results: %w", err)
	}

	var summary struct {
		Text            string   `json:"text"`
		RelevantSources []string `json:"relevantSources"`
	}
	if err := json.Unmarshal(raw, &summary); err != nil {
		return "", fmt.Errorf("parse summary: %w", err)
	}

	for i, src := range summary.RelevantSources {
		err := w.Write(protocol.SourceURL{SourceID: fmt.Sprintf("source-%d", i), URL: src})
		if err != nil {
			return "", err
		}
	}

	err = w.Write(protocol.StepUpdate{
		RunID:  runID,
		StepID: summaryID,
		Kind:   protocol.StepKindText,
		Status: protocol.StatusCompleted,
		Data:   protocol.TextData{Text: summary.Text},
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

	return "Write a detailed report of the following information:" + summary.Text, nil
}
