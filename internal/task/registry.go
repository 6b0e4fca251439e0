// Package task owns the quote-task lifecycle: identity, accumulated user
// data, per-carrier status and inactivity reaping. It holds no browser state;
// cleanup of sessions happens through the registered hook.
package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the task-level lifecycle phase, advanced by the carrier agents.
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusStarting        Status = "starting"
	StatusWaitingForInput Status = "waiting_for_input"
	StatusProcessing      Status = "processing"
	StatusExtractingQuote Status = "extracting_quote"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
	StatusInactive        Status = "inactive"
)

// Task is one user's quote attempt across one or more carriers. UserData
// accumulates across updates; CarrierStatus tracks each carrier's flow
// independently.
type Task struct {
	ID            string
	Carriers      []string
	UserData      map[string]any
	Status        Status
	CarrierStatus map[string]CarrierState
	CreatedAt     time.Time
	LastActive    time.Time
	Error         string
}

// CarrierState is the per-carrier slice of a task's progress.
type CarrierState struct {
	Status           Status
	CurrentStep      int
	CurrentStepLabel string
	Error            string
}

// CleanupFunc releases resources tied to a task (browser sessions, carrier
// state) when it is removed or reaped.
type CleanupFunc func(taskID string)

// Registry is the in-memory task store. All exported methods are safe for
// concurrent use; returned tasks are snapshots, never shared pointers.
type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	onCleanup CleanupFunc
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// OnCleanup registers the hook invoked after a task is removed. Must be set
// before traffic starts.
func (r *Registry) OnCleanup(fn CleanupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCleanup = fn
}

// Create registers a new task for the given carriers and returns its id.
func (r *Registry) Create(carriers []string) *Task {
	now := time.Now()
	t := &Task{
		ID:            uuid.NewString(),
		Carriers:      append([]string(nil), carriers...),
		UserData:      make(map[string]any),
		Status:        StatusInitializing,
		CarrierStatus: make(map[string]CarrierState, len(carriers)),
		CreatedAt:     now,
		LastActive:    now,
	}
	for _, c := range carriers {
		t.CarrierStatus[c] = CarrierState{Status: StatusInitializing}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
	return snapshot(t)
}

// Get returns a snapshot of the task, or an error if it does not exist.
func (r *Registry) Get(taskID string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	return snapshot(t), nil
}

// UpdateUserData merges new fields into the accumulated data. Later values
// overwrite earlier ones key by key; untouched keys survive.
func (r *Registry) UpdateUserData(taskID string, data map[string]any) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	for k, v := range data {
		t.UserData[k] = v
	}
	t.LastActive = time.Now()
	return snapshot(t), nil
}

// SetStatus updates the task-level status and, on error, the message.
func (r *Registry) SetStatus(taskID string, status Status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}
	t.Status = status
	t.Error = errMsg
	t.LastActive = time.Now()
	return nil
}

// SetCarrierState records one carrier's progress within a task.
func (r *Registry) SetCarrierState(taskID, carrierID string, state CarrierState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}
	t.CarrierStatus[carrierID] = state
	t.LastActive = time.Now()
	return nil
}

// Touch refreshes the inactivity clock without other changes.
func (r *Registry) Touch(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[taskID]; ok {
		t.LastActive = time.Now()
	}
}

// Remove deletes a task and fires the cleanup hook. Removing a missing task
// is not an error.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	_, existed := r.tasks[taskID]
	delete(r.tasks, taskID)
	fn := r.onCleanup
	r.mu.Unlock()

	if existed && fn != nil {
		fn(taskID)
	}
}

// ReapInactive removes every task idle for longer than ttl and returns the
// removed ids.
func (r *Registry) ReapInactive(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var expired []string
	for id, t := range r.tasks {
		if t.LastActive.Before(cutoff) {
			expired = append(expired, id)
			delete(r.tasks, id)
		}
	}
	fn := r.onCleanup
	r.mu.Unlock()

	if fn != nil {
		for _, id := range expired {
			fn(id)
		}
	}
	return expired
}

// StartSweeper reaps inactive tasks on a fixed interval until stop is closed.
func (r *Registry) StartSweeper(ttl, interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.ReapInactive(ttl)
			}
		}
	}()
}

// Count reports how many tasks are live.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func snapshot(t *Task) *Task {
	out := *t
	out.Carriers = append([]string(nil), t.Carriers...)
	out.UserData = make(map[string]any, len(t.UserData))
	for k, v := range t.UserData {
		out.UserData[k] = v
	}
	out.CarrierStatus = make(map[string]CarrierState, len(t.CarrierStatus))
	for k, v := range t.CarrierStatus {
		out.CarrierStatus[k] = v
	}
	return &out
}
