package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/user/stepwise/internal/protocol"
	"github.com/user/stepwise/internal/sandbox"
	"github.com/user/stepwise/internal/stream"
	"github.com/user/stepwise/pkg/llm"
)

const (
	analysisLoopSteps     = 5
	defaultSandboxRuntime = "python3.13"
	defaultSandboxTimeout = time.Minute
)

// AnalysisInput describes the requested analysis.
type AnalysisInput struct {
	Title       string
	Description string
	Plan        string
}

// FileRef is a remote data file extracted from conversation attachments.
type FileRef struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// DataAnalysisAgent analyzes tabular data inside a scoped, time-boxed
// remote sandbox. The sandbox is released on every exit path.
type DataAnalysisAgent struct {
	provider  llm.Provider
	sandboxes sandbox.Provider
	runtime   string
	timeout   time.Duration
	now       func() time.Time
}

// NewDataAnalysisAgent creates a data-analysis delegate.
func NewDataAnalysisAgent(provider llm.Provider, sandboxes sandbox.Provider) *DataAnalysisAgent {
	return &DataAnalysisAgent{
		provider:  provider,
		sandboxes: sandboxes,
		runtime:   defaultSandboxRuntime,
		timeout:   defaultSandboxTimeout,
		now:       time.Now,
	}
}

// Run executes one analysis delegation. runID is the caller's
// tool-invocation id; files are supplied out-of-band from conversation
// metadata. Returns the formatted task/output summary for the
// orchestrator.
func (a *DataAnalysisAgent) Run(ctx context.Context, w stream.Writer, runID string, in AnalysisInput, files []FileRef) (string, error) {
	err := w.Write(protocol.RunStart{
		ID:            runID,
		Kind:          protocol.RunKindDataAnalysis,
		Status:        protocol.StatusPending,
		StartDatetime: a.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}

	startStepID := uuid.New().String()
	if err := a.textStep(w, runID, startStepID, protocol.StatusPending, "Starting Sandbox..."); err != nil {
		return "", err
	}

	var response strings.Builder
	err = sandbox.With(ctx, a.sandboxes, a.runtime, a.timeout, func(sb sandbox.Sandbox) error {
		if err := a.textStep(w, runID, startStepID, protocol.StatusCompleted, "Sandbox created"); err != nil {
			return err
		}

		filePaths, err := a.loadFiles(ctx, w, runID, sb, files)
		if err != nil {
			return err
		}

		loop := &Loop{
			Provider: a.provider,
			MaxSteps: analysisLoopSteps,
			Caps:     []Capability{a.runCodeCapability(w, runID, sb, &response)},
		}
		_, err = loop.Run(ctx, []llm.Message{{Role: "user", Content: analystPrompt(in, filePaths)}})
		return err
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

	return analysisSummary(files, response.String()), nil
}

// loadFiles prepares the sandbox working directories and downloads every
// input file concurrently. With no files it does nothing and emits no
// steps.
func (a *DataAnalysisAgent) loadFiles(ctx context.Context, w stream.Writer, runID string, sb sandbox.Sandbox, files []FileRef) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}

	if err := sb.MkDir(ctx, "data"); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := sb.MkDir(ctx, "results"); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	if _, err := sb.RunCommand(ctx, "pip", "install", "pandas"); err != nil {
		return nil, fmt.Errorf("install pandas: %w", err)
	}

	downloadStepID := uuid.New().String()
	if err := a.textStep(w, runID, downloadStepID, protocol.StatusPending, "Downloading files..."); err != nil {
		return nil, err
	}

	// The only place with true concurrency: downloads have no ordering
	// requirement among files.
	filePaths := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		path := "./data/" + f.Filename
		filePaths[i] = path
		g.Go(func() error {
			if _, err := sb.RunCommand(gctx, "curl", "-o", path, f.URL); err != nil {
				return fmt.Errorf("download %s: %w", f.Filename, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := a.textStep(w, runID, downloadStepID, protocol.StatusCompleted, "Files downloaded"); err != nil {
		return nil, err
	}
	return filePaths, nil
}

// runCodeCapability executes model-written python inside the sandbox,
// reporting each snippet as a pending/completed code step pair and
// accumulating the task/output log.
func (a *DataAnalysisAgent) runCodeCapability(w stream.Writer, runID string, sb sandbox.Sandbox, response *strings.Builder) Capability {
	return Capability{
		Name:        "run-code",
		Description: "Run code in the sandbox",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"type": {"type": "string", "enum": ["read-data", "write-code"], "description": "The type of task being performed"},
				"task": {"type": "string", "description": "The task to perform"},
				"code": {"type": "string", "description": "Python code to run"}
			},
			"required": ["type", "task", "code"]
		}`),
		Execute: func(ctx context.Context, callID string, args json.RawMessage) (string, error) {
			var params struct {
				Type string `json:"type"`
				Task string `json:"task"`
				Code string `json:"code"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}

			err := w.Write(protocol.StepUpdate{
				RunID:  runID,
				StepID: callID,
				Kind:   protocol.StepKindCode,
				Status: protocol.StatusPending,
				Data:   protocol.CodeData{Task: params.Task, Code: params.Code},
			})
			if err != nil {
				return "", err
			}

			output, err := sb.RunCommand(ctx, "python", "-c", params.Code)
			if err != nil {
				return "", fmt.Errorf("run code: %w", err)
			}
			fmt.Fprintf(response, "\nTask: %s\nOutput: %s\n", params.Task, output)

			err = w.Write(protocol.StepUpdate{
				RunID:  runID,
				StepID: callID,
				Kind:   protocol.StepKindCode,
				Status: protocol.StatusCompleted,
				Data:   protocol.CodeData{Task: params.Task, Code: params.Code, Output: &output},
			})
			if err != nil {
				return "", err
			}
			return output, nil
		},
	}
}

func (a *DataAnalysisAgent) textStep(w stream.Writer, runID, stepID string, status protocol.Status, text string) error {
	return w.Write(protocol.StepUpdate{
		RunID:  runID,
		StepID: stepID,
		Kind:   protocol.StepKindText,
		Status: status,
		Data:   protocol.TextData{Text: text},
	})
}

func analystPrompt(in AnalysisInput, filePaths []string) string {
	return fmt.Sprintf(`You are a data analyst, you are given a title, description, a plan and a list of data files.

The data files are in the following directory:
%s

Follow these rules:
- use pandas to analyze the data
- read files only from the ./data/ directory
- Optionally, write results to the results/ directory
- ALWAYS use print statements to debug your code, or to review results
- Use print statements to review data from data analysis from pandas

Possible Approaches:
- break down each step of the plan into tasks
- You can start off by only reading the data files and understanding the data
- Based on the shape, type of data, you can run your analysis based on the shape of the data
- Write your code in a python file and run it

Here is the title, description, and plan:
title: %s
description: %s
plan: %s

Write code to fulfill the title, description, and plan.`,
		strings.Join(filePaths, "\n"), in.Title, in.Description, in.Plan)
}

func analysisSummary(files []FileRef, response string) string {
	links := make([]string, 0, len(files))
	for _, f := range files {
		links = append(links, fmt.Sprintf("[%s](%s)", f.Filename, f.URL))
	}
	return fmt.Sprintf(`The files analyzed are:
%s
The following is the output of the code for each task:
%s
Return tabular data in table markdown format.
Return any other relevant information in markdown format.

Reuse the files analysed should there be follow up questions.`,
		strings.Join(links, "\n"), response)
}
