package consult

import (
	"context"
	"testing"
)

func TestScriptedBackendWalksScript(t *testing.T) {
	backend := NewScriptedBackend(DemoScript())
	ctx := context.Background()

	session, err := backend.Start(ctx, Request{Question: "最近总是失眠怎么办？", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected a session id")
	}

	var last Snapshot
	previous := -1.0
	for i := 0; i < 50; i++ {
		snap, err := backend.Progress(ctx, session)
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
		if snap.Progress < previous {
			t.Fatalf("progress went backwards: %v after %v", snap.Progress, previous)
		}
		previous = snap.Progress
		last = snap
		if snap.Status.Terminal() {
			break
		}
	}
	if last.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", last.Status)
	}
	result, ok := last.DecodeResult()
	if !ok {
		t.Fatal("completed snapshot must carry a result")
	}
	if result.Question != "最近总是失眠怎么办？" {
		t.Fatalf("result must echo the session question, got %q", result.Question)
	}
	if result.SessionID != session.ID {
		t.Fatalf("result session mismatch: %q vs %q", result.SessionID, session.ID)
	}
	if len(result.Experts) == 0 || result.Decision == "" {
		t.Fatalf("demo result incomplete: %+v", result)
	}
	if result.Duration != DemoScript().NominalDuration().Seconds() {
		t.Fatalf("duration must equal nominal step total, got %v", result.Duration)
	}
}

func TestScriptedBackendTerminalSnapshotRepeats(t *testing.T) {
	backend := NewScriptedBackend(DemoScript())
	ctx := context.Background()
	session, err := backend.Start(ctx, Request{Question: "q"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var snap Snapshot
	for !snap.Status.Terminal() {
		snap, err = backend.Progress(ctx, session)
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
	}
	again, err := backend.Progress(ctx, session)
	if err != nil {
		t.Fatalf("progress after terminal: %v", err)
	}
	if again.Status != StatusCompleted || again.Progress != snap.Progress {
		t.Fatalf("terminal snapshot must repeat, got %+v", again)
	}
}

func TestScriptedBackendSessionsAreIndependent(t *testing.T) {
	backend := NewScriptedBackend(DemoScript())
	ctx := context.Background()
	first, _ := backend.Start(ctx, Request{Question: "a"})
	second, _ := backend.Start(ctx, Request{Question: "b"})

	for i := 0; i < 3; i++ {
		if _, err := backend.Progress(ctx, first); err != nil {
			t.Fatalf("progress first: %v", err)
		}
	}
	snap, err := backend.Progress(ctx, second)
	if err != nil {
		t.Fatalf("progress second: %v", err)
	}
	if snap.Progress != DemoScript().Steps[0].Progress {
		t.Fatalf("second session must start from the first step, got %v", snap.Progress)
	}
}

func TestScriptedBackendRejectsUnknownSession(t *testing.T) {
	backend := NewScriptedBackend(DemoScript())
	if _, err := backend.Progress(context.Background(), Session{ID: "missing"}); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
