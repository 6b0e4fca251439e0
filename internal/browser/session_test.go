package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quotepilot/internal/config"

	"github.com/go-rod/rod"
)

// fakeHandle stands in for a CDP page so the recovery path can run without
// a Chrome binary.
type fakeHandle struct {
	mu      sync.Mutex
	healthy bool
	url     string
	closed  bool
	visited []string
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{healthy: true}
}

func (h *fakeHandle) Probe(timeout time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.healthy {
		return errors.New("page closed")
	}
	return nil
}

func (h *fakeHandle) Goto(url string, timeout time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.url = url
	h.visited = append(h.visited, url)
	return nil
}

func (h *fakeHandle) URL() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url, nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) Page() *rod.Page { return nil }

func (h *fakeHandle) poison() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = false
}

// fakeSession builds a Session whose spawn hands out the given handles in
// order.
func fakeSession(t *testing.T, handles ...*fakeHandle) *Session {
	t.Helper()
	next := 0
	return &Session{
		Key:        "task1_progressive",
		navTimeout: time.Second,
		spawn: func(ctx context.Context) (pageHandle, error) {
			if next >= len(handles) {
				t.Fatal("spawn called more times than handles provided")
			}
			h := handles[next]
			next++
			return h, nil
		},
	}
}

func TestRecoveryRestoresLastKnownURL(t *testing.T) {
	first := newFakeHandle()
	second := newFakeHandle()
	s := fakeSession(t, first, second)
	ctx := context.Background()

	// A successful action on a page at some URL records it as last known good.
	err := s.do(ctx, func(page *rod.Page) error {
		first.mu.Lock()
		first.url = "https://example.com/step2"
		first.mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.LastURL() != "https://example.com/step2" {
		t.Fatalf("expected last URL recorded, got %q", s.LastURL())
	}

	// The page dies between actions. The next action must transparently get
	// a replacement already navigated back to the recorded URL.
	first.poison()

	ranOnRecovered := false
	err = s.do(ctx, func(page *rod.Page) error {
		ranOnRecovered = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ranOnRecovered {
		t.Error("action did not run after recovery")
	}
	if !first.closed {
		t.Error("poisoned page should be closed")
	}
	if len(second.visited) != 1 || second.visited[0] != "https://example.com/step2" {
		t.Errorf("replacement page should restore the last URL, visited %v", second.visited)
	}
	if s.LastURL() != "https://example.com/step2" {
		t.Errorf("last URL lost across recovery: %q", s.LastURL())
	}
}

func TestPoisonedMidActionRetriedOnce(t *testing.T) {
	first := newFakeHandle()
	second := newFakeHandle()
	s := fakeSession(t, first, second)

	calls := 0
	err := s.do(context.Background(), func(page *rod.Page) error {
		calls++
		if calls == 1 {
			return errors.New("rpc: target closed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected transparent recovery, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly one retry, got %d calls", calls)
	}
	if !first.closed {
		t.Error("poisoned page should be closed during recovery")
	}
}

func TestBenignFailureIsNotRetried(t *testing.T) {
	first := newFakeHandle()
	s := fakeSession(t, first)

	calls := 0
	err := s.do(context.Background(), func(page *rod.Page) error {
		calls++
		return errors.New("element not found: #zip")
	})
	if err == nil {
		t.Fatal("expected the element failure to surface")
	}
	if calls != 1 {
		t.Errorf("benign failures must not trigger recovery, got %d calls", calls)
	}
	if first.closed {
		t.Error("page must survive a benign failure")
	}
}

func TestCloseTaskTearsDownOnlyThatTask(t *testing.T) {
	mine := newFakeHandle()
	other := newFakeHandle()
	m := NewManager(config.BrowserConfig{})
	m.sessions["task1_progressive"] = &Session{Key: "task1_progressive", page: mine}
	m.sessions["task2_geico"] = &Session{Key: "task2_geico", page: other}

	m.CloseTask("task1")

	if !mine.closed {
		t.Error("task1 session should be closed")
	}
	if other.closed {
		t.Error("task2 session must be untouched")
	}
	if _, ok := m.sessions["task1_progressive"]; ok {
		t.Error("task1 session should be removed")
	}
	if _, ok := m.sessions["task2_geico"]; !ok {
		t.Error("task2 session should remain")
	}
}

func TestWaitForRejectsEmptyCondition(t *testing.T) {
	s := &Session{Key: "task1_progressive"}

	res := s.WaitFor(context.Background(), WaitOpts{})
	if res.Success {
		t.Fatal("expected empty wait condition to fail")
	}
	if !strings.Contains(res.Error, "no wait condition") {
		t.Errorf("unexpected error message: %q", res.Error)
	}
}

func TestSnapshotEvalErr(t *testing.T) {
	if err := snapshotEvalErr(false, nil); err != nil {
		t.Errorf("expected nil for a good result, got %v", err)
	}

	err := snapshotEvalErr(true, nil)
	if err == nil || strings.Contains(err.Error(), "%!w") {
		t.Errorf("nil result must yield a clean error, got %v", err)
	}

	wrapped := snapshotEvalErr(false, errors.New("ctx canceled"))
	if wrapped == nil || !strings.Contains(wrapped.Error(), "ctx canceled") {
		t.Errorf("expected wrapped eval error, got %v", wrapped)
	}
}
