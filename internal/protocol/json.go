// Wire encoding. Chain-of-thought events nest their payload under "data"
// with the discriminator on the envelope; source-url and text-delta are flat.
// Step payloads are decoded into concrete StepData variants based on the
// step's kind field.
package protocol

import (
	"encoding/json"
	"fmt"
)

type runStartWire struct {
	ID            string              `json:"id"`
	Kind          RunKind             `json:"type"`
	Status        Status              `json:"status"`
	StartDatetime int64               `json:"startDatetime"`
	Steps         map[string]struct{} `json:"steps"`
}

type stepUpdateWire struct {
	RunID         string          `json:"runId"`
	StepID        string          `json:"stepId"`
	Kind          StepKind        `json:"type"`
	Status        Status          `json:"status"`
	Data          json.RawMessage `json:"data"`
	StartDatetime int64           `json:"startDatetime,omitempty"`
	EndDatetime   int64           `json:"endDatetime,omitempty"`
}

type runEndWire struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	EndDatetime int64  `json:"endDatetime"`
}

type artifactStartWire struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Plan        string `json:"plan"`
}

type artifactDeltaWire struct {
	Delta string `json:"delta"`
}

type envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`

	// Flat events.
	SourceID string `json:"sourceId,omitempty"`
	URL      string `json:"url,omitempty"`
	Delta    string `json:"delta,omitempty"`
}

// Marshal encodes an event into its wire form.
func Marshal(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case RunStart:
		data, err := json.Marshal(runStartWire{
			ID:            e.ID,
			Kind:          e.Kind,
			Status:        e.Status,
			StartDatetime: e.StartDatetime,
			Steps:         map[string]struct{}{},
		})
		if err != nil {
			return nil, fmt.Errorf("marshal run-start: %w", err)
		}
		return json.Marshal(envelope{Type: TypeRunStart, Data: data})

	case StepUpdate:
		if e.Data == nil {
			return nil, fmt.Errorf("step-update %s/%s: nil data", e.RunID, e.StepID)
		}
		if e.Data.StepKind() != e.Kind {
			return nil, fmt.Errorf("step-update %s/%s: kind %q does not match payload %q",
				e.RunID, e.StepID, e.Kind, e.Data.StepKind())
		}
		payload, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal step data: %w", err)
		}
		data, err := json.Marshal(stepUpdateWire{
			RunID:         e.RunID,
			StepID:        e.StepID,
			Kind:          e.Kind,
			Status:        e.Status,
			Data:          payload,
			StartDatetime: e.StartDatetime,
			EndDatetime:   e.EndDatetime,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal step-update: %w", err)
		}
		return json.Marshal(envelope{Type: TypeStepUpdate, Data: data})

	case RunEnd:
		data, err := json.Marshal(runEndWire{ID: e.ID, Status: e.Status, EndDatetime: e.EndDatetime})
		if err != nil {
			return nil, fmt.Errorf("marshal run-end: %w", err)
		}
		return json.Marshal(envelope{Type: TypeRunEnd, Data: data})

	case ArtifactStart:
		data, err := json.Marshal(artifactStartWire{Title: e.Title, Description: e.Description, Plan: e.Plan})
		if err != nil {
			return nil, fmt.Errorf("marshal artifact-start: %w", err)
		}
		return json.Marshal(envelope{Type: TypeArtifactStart, ID: e.ID, Data: data})

	case ArtifactDelta:
		data, err := json.Marshal(artifactDeltaWire{Delta: e.Delta})
		if err != nil {
			return nil, fmt.Errorf("marshal artifact-delta: %w", err)
		}
		return json.Marshal(envelope{Type: TypeArtifactDelta, ID: e.ID, Data: data})

	case SourceURL:
		return json.Marshal(envelope{Type: TypeSourceURL, SourceID: e.SourceID, URL: e.URL})

	case TextDelta:
		return json.Marshal(envelope{Type: TypeTextDelta, ID: e.ID, Delta: e.Delta})

	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}
}

// Unmarshal decodes a wire event. Unknown discriminators are an error.
func Unmarshal(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch env.Type {
	case TypeRunStart:
		var w runStartWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode run-start: %w", err)
		}
		return RunStart{ID: w.ID, Kind: w.Kind, Status: w.Status, StartDatetime: w.StartDatetime}, nil

	case TypeStepUpdate:
		var w stepUpdateWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode step-update: %w", err)
		}
		data, err := decodeStepData(w.Kind, w.Data)
		if err != nil {
			return nil, fmt.Errorf("decode step %s/%s: %w", w.RunID, w.StepID, err)
		}
		return StepUpdate{
			RunID:         w.RunID,
			StepID:        w.StepID,
			Kind:          w.Kind,
			Status:        w.Status,
			Data:          data,
			StartDatetime: w.StartDatetime,
			EndDatetime:   w.EndDatetime,
		}, nil

	case TypeRunEnd:
		var w runEndWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode run-end: %w", err)
		}
		return RunEnd{ID: w.ID, Status: w.Status, EndDatetime: w.EndDatetime}, nil

	case TypeArtifactStart:
		var w artifactStartWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode artifact-start: %w", err)
		}
		return ArtifactStart{ID: env.ID, Title: w.Title, Description: w.Description, Plan: w.Plan}, nil

	case TypeArtifactDelta:
		var w artifactDeltaWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode artifact-delta: %w", err)
		}
		return ArtifactDelta{ID: env.ID, Delta: w.Delta}, nil

	case TypeSourceURL:
		return SourceURL{SourceID: env.SourceID, URL: env.URL}, nil

	case TypeTextDelta:
		return TextDelta{ID: env.ID, Delta: env.Delta}, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

func decodeStepData(kind StepKind, raw json.RawMessage) (StepData, error) {
	unmarshal := func(v StepData) (StepData, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", kind, err)
		}
		return v, nil
	}

	switch kind {
	case StepKindSearch:
		v, err := unmarshal(&SearchData{})
		if err != nil {
			return nil, err
		}
		return *v.(*SearchData), nil
	case StepKindText:
		v, err := unmarshal(&TextData{})
		if err != nil {
			return nil, err
		}
		return *v.(*TextData), nil
	case StepKindImage:
		v, err := unmarshal(&ImageData{})
		if err != nil {
			return nil, err
		}
		return *v.(*ImageData), nil
	case StepKindCode:
		v, err := unmarshal(&CodeData{})
		if err != nil {
			return nil, err
		}
		return *v.(*CodeData), nil
	case StepKindDate:
		v, err := unmarshal(&DateData{})
		if err != nil {
			return nil, err
		}
		return *v.(*DateData), nil
	case StepKindWriting:
		v, err := unmarshal(&WritingData{})
		if err != nil {
			return nil, err
		}
		return *v.(*WritingData), nil
	case StepKindComponent:
		v, err := unmarshal(&ComponentData{})
		if err != nil {
			return nil, err
		}
		return *v.(*ComponentData), nil
	case StepKindDataAnalysis:
		v, err := unmarshal(&AnalysisData{})
		if err != nil {
			return nil, err
		}
		return *v.(*AnalysisData), nil
	default:
		return nil, fmt.Errorf("unknown step kind %q", kind)
	}
}
