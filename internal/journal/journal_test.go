package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	j.Info("会诊已启动 · 会话 %s", "abc")
	j.Warn("进度响应缓慢")
	j.Error("获取进度失败: %v", "timeout")

	lines := j.Tail(10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[0], "abc") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[2], "ERROR") {
		t.Fatalf("unexpected last line %q", lines[2])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Count(string(data), "\n") != 3 {
		t.Fatalf("log file must hold one line per entry:\n%s", data)
	}
}

func TestTailLimitsLines(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "client.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 10; i++ {
		j.Info("entry %d", i)
	}
	lines := j.Tail(3)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[2], "entry 9") {
		t.Fatalf("tail must return the most recent entries, got %q", lines[2])
	}
}

func TestNilJournalIsSafe(t *testing.T) {
	var j *Journal
	j.Info("ignored")
	j.Warn("ignored")
	j.Error("ignored")
	if j.Tail(5) != nil {
		t.Fatal("nil journal must return no lines")
	}
	if j.Path() != "" {
		t.Fatal("nil journal must have empty path")
	}
}
