package consult

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPollInterval is how often progress is fetched while a consultation
// runs.
const DefaultPollInterval = 2 * time.Second

// Runner drives one consultation end to end without any UI: submit, poll on a
// fixed interval, stop on the first terminal snapshot. Cancelling the context
// suppresses all further ticks; an in-flight HTTP call is left to finish on
// its own.
type Runner struct {
	backend  Backend
	model    string
	interval time.Duration
	onUpdate func(State)
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithModel sets the model name sent with the start request.
func WithModel(model string) RunnerOption {
	return func(r *Runner) {
		if strings.TrimSpace(model) != "" {
			r.model = model
		}
	}
}

// WithPollInterval overrides the poll cadence.
func WithPollInterval(interval time.Duration) RunnerOption {
	return func(r *Runner) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithUpdateFunc registers a callback invoked after every state change.
func WithUpdateFunc(fn func(State)) RunnerOption {
	return func(r *Runner) { r.onUpdate = fn }
}

// NewRunner creates a runner over the given backend.
func NewRunner(backend Backend, opts ...RunnerOption) *Runner {
	r := &Runner{
		backend:  backend,
		model:    "gpt-4o-mini",
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run executes a full consultation and returns the terminal result. It fails
// when the question is blank, the context is cancelled, or the session ends
// in the errored phase; the error message then carries the surfaced detail.
func (r *Runner) Run(ctx context.Context, question string) (*Result, error) {
	state := Reduce(NewState(), SubmitRequested{Question: question})
	if state.Phase != PhaseSubmitting {
		return nil, errors.New("consult: question must not be empty")
	}
	r.publish(state)

	session, err := r.backend.Start(ctx, Request{Question: state.Question, Model: r.model})
	if err != nil {
		state = Reduce(state, StartFailed{Err: err})
		r.publish(state)
		return nil, errors.New(state.Err)
	}
	state = Reduce(state, StartSucceeded{Session: session})
	r.publish(state)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for state.PollActive() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("consult: consultation cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
		snap, err := r.backend.Progress(ctx, session)
		if err != nil {
			state = Reduce(state, PollFailed{SessionID: session.ID, Err: err})
		} else {
			state = Reduce(state, SnapshotReceived{SessionID: session.ID, Snapshot: snap})
		}
		r.publish(state)
	}

	if state.Phase == PhaseErrored {
		return nil, errors.New(state.Err)
	}
	return state.Result, nil
}

func (r *Runner) publish(state State) {
	if r.onUpdate != nil {
		r.onUpdate(state)
	}
}
