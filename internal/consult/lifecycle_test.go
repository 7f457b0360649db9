package consult

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func completedSnapshot(t *testing.T, result Result) Snapshot {
	t.Helper()
	payload, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("encode result: %v", err)
	}
	return Snapshot{Progress: 100, CurrentStep: "会诊完成！", Status: StatusCompleted, Result: payload}
}

func TestSubmitGuardsBlankQuestion(t *testing.T) {
	for _, question := range []string{"", "   ", "\n\t "} {
		state := Reduce(NewState(), SubmitRequested{Question: question})
		if state.Phase != PhaseIdle {
			t.Fatalf("blank question %q must stay idle, got %s", question, state.Phase)
		}
	}
}

func TestSubmitTrimsQuestion(t *testing.T) {
	state := Reduce(NewState(), SubmitRequested{Question: "  头痛两周  "})
	if state.Phase != PhaseSubmitting {
		t.Fatalf("expected submitting, got %s", state.Phase)
	}
	if state.Question != "头痛两周" {
		t.Fatalf("expected trimmed question, got %q", state.Question)
	}
}

func TestHappyPathToCompleted(t *testing.T) {
	result := Result{
		Question:     "孩子发烧怎么办",
		Decision:     "建议就医",
		Duration:     86,
		Experts:      []Expert{{Role: "儿科医生", Description: "儿童保健"}},
		FinalAnswers: map[string]string{"儿科医生": "先化验"},
	}

	state := Reduce(NewState(), SubmitRequested{Question: result.Question})
	state = Reduce(state, StartSucceeded{Session: Session{ID: "s1"}})
	if state.Phase != PhasePolling {
		t.Fatalf("expected polling after start, got %s", state.Phase)
	}

	ticks := []Snapshot{
		{Progress: 30, CurrentStep: "第一轮讨论", Status: StatusRunning},
		{Progress: 70, CurrentStep: "最终讨论", Status: StatusRunning},
	}
	for _, snap := range ticks {
		state = Reduce(state, SnapshotReceived{SessionID: "s1", Snapshot: snap})
		if state.Phase != PhasePolling {
			t.Fatalf("running tick must keep polling, got %s", state.Phase)
		}
		if state.Progress != snap.Progress || state.CurrentStep != snap.CurrentStep {
			t.Fatalf("tick must update progress unconditionally: %+v", state)
		}
	}

	state = Reduce(state, SnapshotReceived{SessionID: "s1", Snapshot: completedSnapshot(t, result)})
	if state.Phase != PhaseCompleted {
		t.Fatalf("expected completed, got %s", state.Phase)
	}
	if state.Result == nil || state.Result.Decision != result.Decision || state.Result.Duration != result.Duration {
		t.Fatalf("displayed result must equal the payload: %+v", state.Result)
	}
	if state.PollActive() {
		t.Fatal("polling must stop after the completed tick")
	}
}

func TestCompletedWithoutPayloadKeepsPolling(t *testing.T) {
	state := Reduce(NewState(), SubmitRequested{Question: "q"})
	state = Reduce(state, StartSucceeded{Session: Session{ID: "s1"}})
	state = Reduce(state, SnapshotReceived{SessionID: "s1", Snapshot: Snapshot{
		Progress: 100, CurrentStep: "会诊完成！", Status: StatusCompleted,
	}})
	if state.Phase != PhasePolling {
		t.Fatalf("completed tick without result must keep polling, got %s", state.Phase)
	}
	if state.Progress != 100 {
		t.Fatalf("progress must still update, got %v", state.Progress)
	}
}

func TestBackendErrorUsesProvidedMessage(t *testing.T) {
	state := Reduce(NewState(), SubmitRequested{Question: "q"})
	state = Reduce(state, StartSucceeded{Session: Session{ID: "s1"}})
	state = Reduce(state, SnapshotReceived{SessionID: "s1", Snapshot: Snapshot{
		Status: StatusError,
		Result: json.RawMessage(`{"error":"模型服务不可用"}`),
	}})
	if state.Phase != PhaseErrored {
		t.Fatalf("expected errored, got %s", state.Phase)
	}
	if state.Err != "模型服务不可用" {
		t.Fatalf("expected backend message, got %q", state.Err)
	}
}

func TestBackendErrorFallsBackToGenericMessage(t *testing.T) {
	state := Reduce(NewState(), SubmitRequested{Question: "q"})
	state = Reduce(state, StartSucceeded{Session: Session{ID: "s1"}})
	state = Reduce(state, SnapshotReceived{SessionID: "s1", Snapshot: Snapshot{Status: StatusError}})
	if state.Err != genericBackendError {
		t.Fatalf("expected generic fallback, got %q", state.Err)
	}
}

func TestStartFailureSkipsPolling(t *testing.T) {
	state := Reduce(NewState(), SubmitRequested{Question: "q"})
	state = Reduce(state, StartFailed{Err: errors.New("connection refused")})
	if state.Phase != PhaseErrored {
		t.Fatalf("expected errored, got %s", state.Phase)
	}
	if !strings.HasPrefix(state.Err, "启动会诊失败: ") {
		t.Fatalf("unexpected error message %q", state.Err)
	}
	if state.PollActive() {
		t.Fatal("start failure must never enter polling")
	}
}

func TestPollFailureIsTerminal(t *testing.T) {
	state := Reduce(NewState(), SubmitRequested{Question: "q"})
	state = Reduce(state, StartSucceeded{Session: Session{ID: "s1"}})
	state = Reduce(state, PollFailed{SessionID: "s1", Err: errors.New("timeout")})
	if state.Phase != PhaseErrored {
		t.Fatalf("expected errored, got %s", state.Phase)
	}
	if !strings.HasPrefix(state.Err, "获取进度失败: ") {
		t.Fatalf("unexpected error message %q", state.Err)
	}
}

func TestStaleSessionEventsIgnored(t *testing.T) {
	state := Reduce(NewState(), SubmitRequested{Question: "q"})
	state = Reduce(state, StartSucceeded{Session: Session{ID: "s2"}})

	ignored := Reduce(state, SnapshotReceived{SessionID: "s1", Snapshot: Snapshot{
		Progress: 99, Status: StatusRunning,
	}})
	if ignored.Progress != state.Progress {
		t.Fatal("snapshot from a previous session must be ignored")
	}
	ignored = Reduce(state, PollFailed{SessionID: "s1", Err: errors.New("late failure")})
	if ignored.Phase != PhasePolling {
		t.Fatal("poll failure from a previous session must be ignored")
	}
}

func TestResetClearsEverything(t *testing.T) {
	result := Result{Question: "q", Decision: "d"}
	state := Reduce(NewState(), SubmitRequested{Question: "q"})
	state = Reduce(state, StartSucceeded{Session: Session{ID: "s1"}})
	state = Reduce(state, SnapshotReceived{SessionID: "s1", Snapshot: completedSnapshot(t, result)})

	state = Reduce(state, ResetRequested{})
	if state.Phase != PhaseIdle {
		t.Fatalf("expected idle after reset, got %s", state.Phase)
	}
	if state.Question != "" || state.Result != nil || state.Err != "" ||
		state.Progress != 0 || state.CurrentStep != "" || state.Session.ID != "" {
		t.Fatalf("reset must clear all fields: %+v", state)
	}
}

func TestTerminalPhasesIgnoreSubmit(t *testing.T) {
	state := Reduce(NewState(), SubmitRequested{Question: "q"})
	state = Reduce(state, StartFailed{Err: errors.New("boom")})
	next := Reduce(state, SubmitRequested{Question: "another"})
	if next.Phase != PhaseErrored {
		t.Fatalf("errored phase must require an explicit reset, got %s", next.Phase)
	}
}
