// Package consult holds the consultation domain: wire types shared with the
// backend, the lifecycle state machine that the views drive, and the backend
// implementations (live HTTP and scripted mock).
package consult

import "encoding/json"

// Status enumerates the backend-reported consultation states.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the status ends polling for a session.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Request is the payload sent to start a consultation. Immutable once sent.
type Request struct {
	Question string `json:"question"`
	Model    string `json:"model"`
}

// Session correlates progress polls with a running consultation. The id is
// opaque to the client.
type Session struct {
	ID string `json:"session_id"`
}

// Snapshot is one progress report. Each poll replaces the previous snapshot
// wholesale; snapshots are never merged.
//
// Result is raw because its shape depends on Status: a full consultation
// result when completed, or {"error": "..."} when the backend failed.
type Snapshot struct {
	Progress    float64         `json:"progress"`
	CurrentStep string          `json:"current_step"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Expert describes one recruited member of the consultation panel.
type Expert struct {
	Role        string `json:"role"`
	Description string `json:"description"`
	Hierarchy   string `json:"hierarchy,omitempty"`
}

// Result is the terminal payload of a completed consultation. Produced exactly
// once and never mutated afterwards.
//
// FinalAnswers maps expert role to that expert's closing opinion.
// RoundOpinions maps round label ("1", "2", ...) to role to opinion.
type Result struct {
	SessionID     string                       `json:"session_id,omitempty"`
	Question      string                       `json:"question"`
	Experts       []Expert                     `json:"experts"`
	RoundOpinions map[string]map[string]string `json:"round_opinions"`
	FinalAnswers  map[string]string            `json:"final_answers"`
	Decision      string                       `json:"decision"`
	Duration      float64                      `json:"duration"`
	StartTime     string                       `json:"start_time,omitempty"`
	EndTime       string                       `json:"end_time,omitempty"`
}

// DecodeResult extracts the terminal payload from a completed snapshot.
// It returns ok=false when the snapshot carries no usable result.
func (s Snapshot) DecodeResult() (*Result, bool) {
	if len(s.Result) == 0 {
		return nil, false
	}
	var r Result
	if err := json.Unmarshal(s.Result, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// DecodeError extracts a backend-reported error message from a snapshot whose
// status is "error". Empty when the backend supplied none.
func (s Snapshot) DecodeError() string {
	if len(s.Result) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(s.Result, &payload); err != nil {
		return ""
	}
	return payload.Error
}
