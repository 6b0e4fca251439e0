package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quotepilot/internal/config"
)

func newTestRecorder(t *testing.T, maxTraces int) (*Recorder, string, string) {
	t.Helper()
	base := t.TempDir()
	shots := filepath.Join(base, "shots")
	traces := filepath.Join(base, "traces")
	r, err := New(config.RecorderConfig{
		ScreenshotDir: shots,
		TraceDir:      traces,
		MaxTraces:     maxTraces,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r, shots, traces
}

func TestTraceRotation(t *testing.T) {
	r, _, traces := newTestRecorder(t, 3)

	for i := 0; i < 5; i++ {
		if err := r.StartTrace("task1"); err != nil {
			t.Fatal(err)
		}
		r.Log("step", "task1", "progressive", map[string]string{"msg": "hello"})
		time.Sleep(10 * time.Millisecond) // distinct mod times
	}
	r.Close()

	entries, err := os.ReadDir(traces)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 trace files after rotation, got %d", len(entries))
	}
}

func TestTraceLogging(t *testing.T) {
	r, _, traces := newTestRecorder(t, 3)

	if err := r.StartTrace("task1"); err != nil {
		t.Fatal(err)
	}
	r.Log("navigate", "task1", "geico", "https://example.com")
	r.Close()

	entries, err := os.ReadDir(traces)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 trace file, got %d", len(entries))
	}
	content, err := os.ReadFile(filepath.Join(traces, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(content), `{"ts":`) {
		t.Errorf("unexpected trace format: %s", content)
	}
	if !strings.Contains(string(content), `"carrier_id":"geico"`) {
		t.Errorf("expected carrier id in trace: %s", content)
	}
}

func TestLogWithoutTraceIsDropped(t *testing.T) {
	r, _, traces := newTestRecorder(t, 3)

	r.Log("orphan", "task1", "", nil)

	entries, err := os.ReadDir(traces)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no trace files, got %d", len(entries))
	}
}

func TestSaveScreenshot(t *testing.T) {
	r, shots, _ := newTestRecorder(t, 3)

	path, err := r.SaveScreenshot("task1", "progressive_entry", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != shots {
		t.Errorf("screenshot saved outside configured dir: %s", path)
	}
	if !strings.Contains(filepath.Base(path), "task1_progressive_entry_") {
		t.Errorf("unexpected screenshot name: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("screenshot file missing: %v", err)
	}
}

func TestSaveScreenshotEmpty(t *testing.T) {
	r, _, _ := newTestRecorder(t, 3)
	if _, err := r.SaveScreenshot("task1", "ctx", nil); err == nil {
		t.Error("expected error for empty screenshot")
	}
}
