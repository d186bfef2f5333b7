// Package reducer folds the ordered event stream into queryable
// Run/Step/Artifact state on the consuming side. It owns that state
// exclusively: producers never read it, they only append events.
package reducer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/user/stepwise/internal/protocol"
)

// Protocol violations surfaced by Apply. They never corrupt state for
// unrelated runs or artifacts.
var (
	ErrUnknownRun      = errors.New("unknown run")
	ErrUnknownArtifact = errors.New("unknown artifact")
	ErrStepKindChanged = errors.New("step kind changed across updates")
	ErrStatusRegressed = errors.New("run status regressed")
)

// Step is one reported unit of sub-progress within a run, upserted by id.
type Step struct {
	ID            string
	Kind          protocol.StepKind
	Status        protocol.Status
	Data          protocol.StepData
	StartDatetime int64
	EndDatetime   int64
}

// Run is one delegation episode.
type Run struct {
	ID            string
	Kind          protocol.RunKind
	Status        protocol.Status
	StartDatetime int64
	EndDatetime   int64
	Steps         map[string]Step
}

// Artifact is an authored document streamed by the artifact delegate.
// Content grows by strictly ordered append-only concatenation of deltas.
type Artifact struct {
	ID          string
	Title       string
	Description string
	Plan        string
	Content     string
}

// Source is one attributed search source.
type Source struct {
	ID  string
	URL string
}

// Store is the client-side state for one conversational session. It is
// created at session start and cleared at teardown; nothing persists past
// that boundary.
type Store struct {
	mu        sync.RWMutex
	runs      map[string]*Run
	artifacts map[string]*Artifact
	active    string
	sources   []Source
	text      map[string]*strings.Builder
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.runs = make(map[string]*Run)
	s.artifacts = make(map[string]*Artifact)
	s.active = ""
	s.sources = nil
	s.text = make(map[string]*strings.Builder)
}

// Apply folds one event into the store. Applying the same upsert twice
// yields the same state as applying it once.
func (s *Store) Apply(ev protocol.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case protocol.RunStart:
		// A run is created by exactly one run-start; a duplicate id never
		// overwrites the existing run.
		if _, exists := s.runs[e.ID]; exists {
			return nil
		}
		s.runs[e.ID] = &Run{
			ID:            e.ID,
			Kind:          e.Kind,
			Status:        e.Status,
			StartDatetime: e.StartDatetime,
			Steps:         make(map[string]Step),
		}
		return nil

	case protocol.StepUpdate:
		run, ok := s.runs[e.RunID]
		if !ok {
			return fmt.Errorf("step %s: %w: %s", e.StepID, ErrUnknownRun, e.RunID)
		}
		if prev, ok := run.Steps[e.StepID]; ok && prev.Kind != e.Kind {
			return fmt.Errorf("step %s/%s: %w: %s -> %s",
				e.RunID, e.StepID, ErrStepKindChanged, prev.Kind, e.Kind)
		}
		run.Steps[e.StepID] = Step{
			ID:            e.StepID,
			Kind:          e.Kind,
			Status:        e.Status,
			Data:          e.Data,
			StartDatetime: e.StartDatetime,
			EndDatetime:   e.EndDatetime,
		}
		return nil

	case protocol.RunEnd:
		run, ok := s.runs[e.ID]
		if !ok {
			return fmt.Errorf("run-end: %w: %s", ErrUnknownRun, e.ID)
		}
		// Status only moves forward from pending; a repeated identical
		// run-end is a no-op.
		if run.Status != protocol.StatusPending && run.Status != e.Status {
			return fmt.Errorf("run %s: %w: %s -> %s", e.ID, ErrStatusRegressed, run.Status, e.Status)
		}
		run.Status = e.Status
		run.EndDatetime = e.EndDatetime
		return nil

	case protocol.ArtifactStart:
		if _, exists := s.artifacts[e.ID]; !exists {
			s.artifacts[e.ID] = &Artifact{
				ID:          e.ID,
				Title:       e.Title,
				Description: e.Description,
				Plan:        e.Plan,
			}
		}
		s.active = e.ID
		return nil

	case protocol.ArtifactDelta:
		art, ok := s.artifacts[e.ID]
		if !ok {
			return fmt.Errorf("artifact-delta: %w: %s", ErrUnknownArtifact, e.ID)
		}
		art.Content += e.Delta
		return nil

	case protocol.SourceURL:
		s.sources = append(s.sources, Source{ID: e.SourceID, URL: e.URL})
		return nil

	case protocol.TextDelta:
		b, ok := s.text[e.ID]
		if !ok {
			b = &strings.Builder{}
			s.text[e.ID] = b
		}
		b.WriteString(e.Delta)
		return nil

	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
}

// Runs returns a copy of all runs keyed by id.
func (s *Store) Runs() map[string]Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Run, len(s.runs))
	for id, run := range s.runs {
		out[id] = copyRun(run)
	}
	return out
}

// Run returns one run by id.
func (s *Store) Run(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return copyRun(run), true
}

// Artifacts returns a copy of all artifacts keyed by id.
func (s *Store) Artifacts() map[string]Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Artifact, len(s.artifacts))
	for id, art := range s.artifacts {
		out[id] = *art
	}
	return out
}

// Artifact returns one artifact by id.
func (s *Store) Artifact(id string) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.artifacts[id]
	if !ok {
		return Artifact{}, false
	}
	return *art, true
}

// ActiveArtifact returns the artifact currently marked for display.
func (s *Store) ActiveArtifact() (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return Artifact{}, false
	}
	art, ok := s.artifacts[s.active]
	if !ok {
		return Artifact{}, false
	}
	return *art, true
}

// Sources returns the attributed search sources in arrival order.
func (s *Store) Sources() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Text returns the accumulated conversational text for a message id.
func (s *Store) Text(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.text[id]; ok {
		return b.String()
	}
	return ""
}

// Clear drops all state. Invoked at session teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func copyRun(run *Run) Run {
	out := *run
	out.Steps = make(map[string]Step, len(run.Steps))
	for id, step := range run.Steps {
		out.Steps[id] = step
	}
	return out
}
