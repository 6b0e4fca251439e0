// Package carrier defines the agent contract every carrier flow implements,
// plus the shared machinery the flows are built from: step detection against
// live page signals and heuristic field filling.
package carrier

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quotepilot/internal/browser"
	"quotepilot/internal/recorder"
	"quotepilot/internal/task"
)

// Quote is the extracted result of a completed flow.
type Quote struct {
	Carrier string `json:"carrier"`
	Price   string `json:"price"`
	Term    string `json:"term,omitempty"`
	// Raw preserves the page text the price was pulled from.
	Raw string `json:"raw,omitempty"`
}

// Response is what every agent operation returns: where the flow is now and,
// when input is needed, which unified fields would unblock it.
type Response struct {
	Status           task.Status `json:"status"`
	CurrentStep      int         `json:"currentStep"`
	CurrentStepLabel string      `json:"currentStepLabel,omitempty"`
	// Unified field ids still missing for the current step.
	RequiredFields []string `json:"requiredFields,omitempty"`
	Quote          *Quote   `json:"quote,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Context carries everything an agent needs for one operation. Data is the
// task's accumulated unified data; the agent translates it to carrier
// vocabulary itself.
type Context struct {
	TaskID    string
	CarrierID string
	Data      map[string]any
	Session   browser.Driver
	Shots     *recorder.Recorder
}

// Agent is one carrier's quote flow. Implementations keep per-task state
// internally and must be safe for concurrent use across tasks.
type Agent interface {
	// ID is the stable carrier identifier ("progressive").
	ID() string
	// Start opens the carrier's quote entry and advances as far as the
	// available data allows.
	Start(ctx context.Context, fc *Context) Response
	// Step resumes the flow after new data arrived.
	Step(ctx context.Context, fc *Context, data map[string]any) Response
	// Status reports the last known position without touching the browser.
	Status(taskID string) Response
	// RequiredFields lists every unified field id the full flow can consume.
	RequiredFields() []string
	// Cleanup drops per-task state after the task ends.
	Cleanup(taskID string)
}

// Registry holds the available agents by carrier id.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent; a duplicate id is a wiring bug and panics at startup.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.agents[a.ID()]; dup {
		panic(fmt.Sprintf("carrier registered twice: %s", a.ID()))
	}
	r.agents[a.ID()] = a
}

// Get returns the agent for a carrier id.
func (r *Registry) Get(carrierID string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[carrierID]
	if !ok {
		return nil, fmt.Errorf("unsupported carrier: %s", carrierID)
	}
	return a, nil
}

// IDs returns the registered carrier ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idsLocked()
}

// All returns every registered agent in id order.
func (r *Registry) All() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, id := range r.idsLocked() {
		out = append(out, r.agents[id])
	}
	return out
}

func (r *Registry) idsLocked() []string {
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
