package observers

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/frontdesk/pkg/metrics"
	"github.com/harunnryd/frontdesk/pkg/redact"
)

func TestTimelineObserverWritesJSONLPerCall(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventToolFailed,
		Time: time.Now(),
		Tags: map[string]string{"call_id": "call/1", "client_id": "client-1", "tool": "create_job"},
	})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventAgentIteration, Time: time.Now()})
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "call_1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"event":"tool_failed"`) || !strings.Contains(lines[0], `"tool":"create_job"`) {
		t.Fatalf("unexpected line: %s", lines[0])
	}
}

func TestTimelineRedactsFields(t *testing.T) {
	redact.SetEnabled(true)
	t.Cleanup(func() { redact.SetEnabled(false) })

	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventStreamFallback,
		Time:   time.Now(),
		Tags:   map[string]string{"call_id": "c2"},
		Fields: map[string]any{"text": "call me at 555-123-4567"},
	})
	_ = obs.Close()

	b, _ := os.ReadFile(filepath.Join(dir, "c2.jsonl"))
	if strings.Contains(string(b), "555-123-4567") {
		t.Fatalf("phone number leaked: %s", b)
	}
}

func TestPurgeTimelines(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jsonl")
	fresh := filepath.Join(dir, "fresh.jsonl")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-72 * time.Hour)
	_ = os.Chtimes(old, past, past)
	_ = os.Chtimes(other, past, past)

	n, err := PurgeTimelines(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh timeline removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("non-timeline file removed")
	}

	if n, err := PurgeTimelines(filepath.Join(dir, "missing"), time.Hour); err != nil || n != 0 {
		t.Fatalf("missing dir: n=%d err=%v", n, err)
	}
}

func TestLoggerObserverLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	obs := NewMultiObserver(NewLoggerObserver(logger), nil)

	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventAgentIteration, Value: 1})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventToolEscalated, Value: 1, Tags: map[string]string{"tool": "create_job"}})

	out := buf.String()
	if strings.Contains(out, "metrics_agent_iteration") {
		t.Fatalf("debug event logged at warn level: %s", out)
	}
	if !strings.Contains(out, "metrics_tool_escalated") || !strings.Contains(out, "tool=create_job") {
		t.Fatalf("escalation not logged: %s", out)
	}
}
