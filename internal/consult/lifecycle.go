package consult

import (
	"fmt"
	"strings"
)

// Phase enumerates the consultation lifecycle. Exactly one phase is active at
// any time; Completed and Errored only return to Idle through an explicit
// reset.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseCompleted  Phase = "completed"
	PhaseErrored    Phase = "errored"
)

// genericBackendError is surfaced when the backend reports status "error"
// without a message of its own.
const genericBackendError = "会诊过程中发生未知错误"

// State is the full lifecycle snapshot the views render from. It is a plain
// value; Reduce never mutates its input.
type State struct {
	Phase       Phase
	Question    string
	Session     Session
	Progress    float64
	CurrentStep string
	Result      *Result
	Err         string
}

// NewState returns the initial idle state.
func NewState() State {
	return State{Phase: PhaseIdle}
}

// PollActive reports whether a poll loop should be running for this state.
func (s State) PollActive() bool {
	return s.Phase == PhasePolling
}

// Event is a lifecycle input. Events originating from a poll loop carry the
// session id they belong to so stale sessions can be discarded.
type Event interface{ isEvent() }

// SubmitRequested asks to start a consultation with the given question.
// Ignored unless idle, or when the trimmed question is empty.
type SubmitRequested struct {
	Question string
}

// StartSucceeded reports that the backend accepted the consultation.
type StartSucceeded struct {
	Session Session
}

// StartFailed reports that the start call failed; no polling begins.
type StartFailed struct {
	Err error
}

// SnapshotReceived delivers one poll result for a session.
type SnapshotReceived struct {
	SessionID string
	Snapshot  Snapshot
}

// PollFailed reports a transport failure on a poll tick. A single failure is
// terminal for the session.
type PollFailed struct {
	SessionID string
	Err       error
}

// ResetRequested clears everything and returns to idle.
type ResetRequested struct{}

func (SubmitRequested) isEvent()  {}
func (StartSucceeded) isEvent()   {}
func (StartFailed) isEvent()      {}
func (SnapshotReceived) isEvent() {}
func (PollFailed) isEvent()       {}
func (ResetRequested) isEvent()   {}

// Reduce applies one event to the lifecycle and returns the next state.
// Events that are not legal in the current phase, and poll events whose
// session no longer matches, leave the state unchanged.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case SubmitRequested:
		if s.Phase != PhaseIdle {
			return s
		}
		question := strings.TrimSpace(ev.Question)
		if question == "" {
			return s
		}
		next := NewState()
		next.Phase = PhaseSubmitting
		next.Question = question
		return next

	case StartSucceeded:
		if s.Phase != PhaseSubmitting {
			return s
		}
		next := s
		next.Phase = PhasePolling
		next.Session = ev.Session
		return next

	case StartFailed:
		if s.Phase != PhaseSubmitting {
			return s
		}
		next := s
		next.Phase = PhaseErrored
		next.Err = fmt.Sprintf("启动会诊失败: %v", ev.Err)
		return next

	case SnapshotReceived:
		if s.Phase != PhasePolling || ev.SessionID != s.Session.ID {
			return s
		}
		next := s
		next.Progress = ev.Snapshot.Progress
		next.CurrentStep = ev.Snapshot.CurrentStep
		switch ev.Snapshot.Status {
		case StatusCompleted:
			result, ok := ev.Snapshot.DecodeResult()
			if !ok {
				// Completed without a payload: keep polling.
				return next
			}
			next.Phase = PhaseCompleted
			next.Result = result
		case StatusError:
			msg := ev.Snapshot.DecodeError()
			if msg == "" {
				msg = genericBackendError
			}
			next.Phase = PhaseErrored
			next.Err = msg
		}
		return next

	case PollFailed:
		if s.Phase != PhasePolling || ev.SessionID != s.Session.ID {
			return s
		}
		next := s
		next.Phase = PhaseErrored
		next.Err = fmt.Sprintf("获取进度失败: %v", ev.Err)
		return next

	case ResetRequested:
		return NewState()
	}
	return s
}
