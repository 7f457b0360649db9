package simserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mzhao/medcouncil/internal/consult"
)

func testScript() consult.Script {
	return consult.Script{
		Steps: []consult.ScriptStep{
			{Progress: 30, Step: "第一步"},
			{Progress: 70, Step: "第二步"},
			{Progress: 100, Step: "会诊完成！"},
		},
		Result: consult.Result{
			Question:     "占位问题",
			Decision:     "模拟结论",
			Duration:     5,
			Experts:      []consult.Expert{{Role: "全科医生", Description: "整体评估"}},
			FinalAnswers: map[string]string{"全科医生": "多休息"},
		},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(New(WithScript(testScript())).Router())
	t.Cleanup(server.Close)
	return server
}

func pollUntilTerminal(t *testing.T, backend consult.Backend, session consult.Session) consult.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := backend.Progress(context.Background(), session)
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal status")
	return consult.Snapshot{}
}

func TestSimulatorServesFullConsultation(t *testing.T) {
	server := newTestServer(t)
	backend, err := consult.NewHTTPBackend(server.URL)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}

	session, err := backend.Start(context.Background(), consult.Request{
		Question: "孩子发烧三天了怎么办？",
		Model:    "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected a session id")
	}

	snap := pollUntilTerminal(t, backend, session)
	if snap.Status != consult.StatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	result, ok := snap.DecodeResult()
	if !ok {
		t.Fatal("completed snapshot must carry a result")
	}
	if result.Question != "孩子发烧三天了怎么办？" {
		t.Fatalf("result must echo the submitted question, got %q", result.Question)
	}
	if result.SessionID != session.ID || result.Decision != "模拟结论" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSimulatorUnknownSessionIs404(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/api/consultation/nope/progress")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "Session not found" {
		t.Fatalf("unexpected error body: %v", payload)
	}
}

func TestSimulatorStreamEndsAtTerminalStatus(t *testing.T) {
	server := newTestServer(t)
	backend, _ := consult.NewHTTPBackend(server.URL)
	session, err := backend.Start(context.Background(), consult.Request{Question: "q"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	pollUntilTerminal(t, backend, session)

	resp, err := http.Get(server.URL + "/api/consultation/" + session.ID + "/stream")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var events []consult.Snapshot
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap consult.Snapshot
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		events = append(events, snap)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	if last := events[len(events)-1]; last.Status != consult.StatusCompleted {
		t.Fatalf("stream must end with the terminal snapshot, got %s", last.Status)
	}
}
