// Package recorder captures diagnostics for failed quote flows: error
// screenshots and a rotating jsonl trace of flow events. Capture is best
// effort; a recorder failure never fails the flow that triggered it.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"quotepilot/internal/config"
)

// Event is a single record in the flow trace.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	CarrierID string    `json:"carrier_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Recorder manages error screenshots and rotating trace files.
type Recorder struct {
	mu            sync.Mutex
	file          *os.File
	encoder       *json.Encoder
	screenshotDir string
	traceDir      string
	maxTraces     int
}

// New creates a recorder and ensures its directories exist.
func New(cfg config.RecorderConfig) (*Recorder, error) {
	screenshotDir := cfg.ScreenshotDir
	if screenshotDir == "" {
		screenshotDir = "data/screenshots"
	}
	traceDir := cfg.TraceDir
	if traceDir == "" {
		traceDir = "data/traces"
	}
	for _, dir := range []string{screenshotDir, traceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Recorder{
		screenshotDir: screenshotDir,
		traceDir:      traceDir,
		maxTraces:     cfg.GetMaxTraces(),
	}, nil
}

// SaveScreenshot writes a PNG captured on an error path and returns its path.
// The context string names the failure site (e.g. "progressive_entry").
func (r *Recorder) SaveScreenshot(taskID, context string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("empty screenshot for task %s", taskID)
	}
	name := fmt.Sprintf("%s_%s_%d.png", taskID, context, time.Now().UnixMilli())
	path := filepath.Join(r.screenshotDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("save screenshot: %w", err)
	}
	return path, nil
}

// StartTrace opens a fresh trace file for a task, rotating older traces so
// only the newest maxTraces remain.
func (r *Recorder) StartTrace(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
		r.encoder = nil
	}

	if err := r.rotateLocked(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	name := fmt.Sprintf("trace_%s_%d.jsonl", taskID, time.Now().UnixMilli())
	f, err := os.Create(filepath.Join(r.traceDir, name))
	if err != nil {
		return err
	}
	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Log appends an event to the current trace. Dropped silently when no trace
// is open.
func (r *Recorder) Log(eventType, taskID, carrierID string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		TaskID:    taskID,
		CarrierID: carrierID,
		Data:      data,
	})
}

// rotateLocked keeps only the newest maxTraces-1 files, leaving room for the
// one about to be created.
func (r *Recorder) rotateLocked() error {
	entries, err := os.ReadDir(r.traceDir)
	if err != nil {
		return err
	}

	var traces []struct {
		Name string
		Time time.Time
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, struct {
			Name string
			Time time.Time
		}{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].Time.After(traces[j].Time)
	})

	if len(traces) >= r.maxTraces {
		keep := r.maxTraces - 1
		if keep < 0 {
			keep = 0
		}
		for i := keep; i < len(traces); i++ {
			_ = os.Remove(filepath.Join(r.traceDir, traces[i].Name))
		}
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
