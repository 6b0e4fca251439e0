// Package progressive drives the Progressive auto quote flow. The flow is a
// state machine over live page signals: every resume re-detects where the
// site actually is instead of trusting a stored step counter, because the
// carrier inserts and reorders pages without notice.
package progressive

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"quotepilot/internal/browser"
	"quotepilot/internal/carrier"
	"quotepilot/internal/schema"
	"quotepilot/internal/task"
)

const (
	carrierID = "progressive"
	entryURL  = "https://www.progressive.com/auto/"

	// maxAdvances bounds one resume so an unexpected page loop cannot spin
	// the browser forever.
	maxAdvances = 8
)

var stepOrder = map[string]int{
	"entry":         1,
	"personal_info": 2,
	"address":       3,
	"vehicle":       4,
	"history":       5,
	"quote_results": 6,
}

var stepSigs = []carrier.StepSignature{
	{Name: "quote_results", URLContains: []string{"/rates", "/quote-results"}, BodyContains: []string{"your quote is ready", "per month"}},
	{Name: "history", URLContains: []string{"/final-details", "/driver-history"}, TitleContains: []string{"final details"}, BodyContains: []string{"accidents or claims"}},
	{Name: "vehicle", URLContains: []string{"/vehicles", "/vehicle"}, TitleContains: []string{"vehicle"}, BodyContains: []string{"tell us about your vehicle"}},
	{Name: "address", URLContains: []string{"/address", "/where-you-live"}, BodyContains: []string{"where do you live"}},
	{Name: "personal_info", URLContains: []string{"/about-you", "/drivers"}, TitleContains: []string{"about you"}, BodyContains: []string{"tell us about yourself"}},
	{Name: "entry", URLContains: []string{"progressive.com/auto"}, BodyContains: []string{"get a quote"}},
}

// stepNeeds maps each step to the unified fields it cannot proceed without.
var stepNeeds = map[string][]string{
	"entry":         {"zipCode"},
	"personal_info": {"firstName", "lastName", "dateOfBirth", "email"},
	"address":       {"streetAddress", "city", "state"},
	"vehicle":       {"vehicles"},
	"history":       {"accidents", "violations", "continuousInsurance"},
}

type flowState struct {
	step  int
	label string
	quote *carrier.Quote
	// vehiclesDone counts vehicle entries already submitted; each pass
	// through the vehicle step fills the next one.
	vehiclesDone int
}

// Agent implements the Progressive quote flow. Per-task positions live in
// states; the live page stays authoritative over them.
type Agent struct {
	mu     sync.Mutex
	states map[string]*flowState
}

func New() *Agent {
	return &Agent{states: make(map[string]*flowState)}
}

func (a *Agent) ID() string { return carrierID }

// RequiredFields lists every unified field the full flow can consume.
func (a *Agent) RequiredFields() []string {
	return []string{
		"zipCode", "firstName", "lastName", "dateOfBirth", "email",
		"streetAddress", "aptUnit", "city", "state",
		"vehicles", "accidents", "violations", "continuousInsurance",
		"gender", "maritalStatus", "homeOwnership",
	}
}

func (a *Agent) state(taskID string) *flowState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked(taskID)
}

func (a *Agent) stateLocked(taskID string) *flowState {
	st, ok := a.states[taskID]
	if !ok {
		st = &flowState{}
		a.states[taskID] = st
	}
	return st
}

// stateSnapshot copies the fields under the lock. Callers outside advance
// must never read the shared flowState directly; the flow goroutine writes
// it concurrently.
func (a *Agent) stateSnapshot(taskID string) flowState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.stateLocked(taskID)
}

// Start opens the quote entry, submits the ZIP and advances as far as the
// available data allows.
func (a *Agent) Start(ctx context.Context, fc *carrier.Context) carrier.Response {
	if missing := missingFields(fc.Data, stepNeeds["entry"]); len(missing) > 0 {
		return carrier.Response{
			Status:           task.StatusWaitingForInput,
			CurrentStepLabel: "entry",
			RequiredFields:   missing,
		}
	}

	if res := fc.Session.Navigate(ctx, entryURL); !res.Success {
		return a.fail(ctx, fc, "entry_navigate", fmt.Errorf("open quote entry: %s", res.Error))
	}
	return a.advance(ctx, fc)
}

// Step resumes the flow after new data arrived. The task layer has already
// merged data into fc.Data; it is passed separately only for logging.
func (a *Agent) Step(ctx context.Context, fc *carrier.Context, data map[string]any) carrier.Response {
	st := a.stateSnapshot(fc.TaskID)
	if st.quote != nil {
		// Flow already finished; resuming is idempotent.
		return carrier.Response{
			Status:           task.StatusCompleted,
			CurrentStep:      st.step,
			CurrentStepLabel: st.label,
			Quote:            st.quote,
		}
	}
	if fc.Shots != nil && len(data) > 0 {
		fc.Shots.Log("step_resume", fc.TaskID, carrierID, map[string]int{"new_fields": len(data)})
	}
	return a.advance(ctx, fc)
}

// Status reports the last known position without touching the browser.
func (a *Agent) Status(taskID string) carrier.Response {
	st := a.stateSnapshot(taskID)
	status := task.StatusProcessing
	if st.quote != nil {
		status = task.StatusCompleted
	}
	return carrier.Response{
		Status:           status,
		CurrentStep:      st.step,
		CurrentStepLabel: st.label,
		Quote:            st.quote,
	}
}

// Cleanup drops per-task state after the task ends.
func (a *Agent) Cleanup(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, taskID)
}

// advance re-detects the current page and handles steps until the flow needs
// input, finishes, or fails.
func (a *Agent) advance(ctx context.Context, fc *carrier.Context) carrier.Response {
	st := a.state(fc.TaskID)

	for i := 0; i < maxAdvances; i++ {
		step, ok := carrier.DetectStep(ctx, fc.Session, stepSigs)
		if !ok {
			return a.fail(ctx, fc, "unknown_state", carrier.UnknownStateError(ctx, fc.Session))
		}

		a.mu.Lock()
		st.step = stepOrder[step]
		st.label = step
		a.mu.Unlock()

		if missing := missingFields(fc.Data, stepNeeds[step]); len(missing) > 0 {
			return carrier.Response{
				Status:           task.StatusWaitingForInput,
				CurrentStep:      stepOrder[step],
				CurrentStepLabel: step,
				RequiredFields:   missing,
			}
		}

		var err error
		switch step {
		case "entry":
			err = a.handleEntry(ctx, fc)
		case "personal_info":
			err = a.handlePersonalInfo(ctx, fc)
		case "address":
			err = a.handleAddress(ctx, fc)
		case "vehicle":
			err = a.handleVehicle(ctx, fc)
		case "history":
			err = a.handleHistory(ctx, fc)
		case "quote_results":
			return a.extractQuote(ctx, fc, st)
		}
		if err != nil {
			return a.fail(ctx, fc, step, err)
		}

		// Give the carrier's scripts time to swap pages before re-detecting.
		browser.Sleep(ctx, 500*time.Millisecond)
		if ctx.Err() != nil {
			return a.fail(ctx, fc, step, ctx.Err())
		}
	}

	return a.fail(ctx, fc, "advance_loop", fmt.Errorf("flow did not settle after %d transitions", maxAdvances))
}

func (a *Agent) handleEntry(ctx context.Context, fc *carrier.Context) error {
	td := a.vocab(fc)
	if err := carrier.FillFields(ctx, fc.Session, []carrier.FieldTarget{
		{Purpose: "zipcode", Value: str(td, "ZipCode"), Fallbacks: []string{"#zip-code-input"}},
	}); err != nil {
		return err
	}
	return carrier.ClickPurpose(ctx, fc.Session, "start_quote_button", "#qsButton_overlay")
}

func (a *Agent) handlePersonalInfo(ctx context.Context, fc *carrier.Context) error {
	td := a.vocab(fc)
	targets := []carrier.FieldTarget{
		{Purpose: "firstname", Value: str(td, "FirstName")},
		{Purpose: "lastname", Value: str(td, "LastName")},
		// Per-keystroke date masking rejects pasted values.
		{Purpose: "date_of_birth", Value: str(td, "DateOfBirth"), Slowly: true},
		{Purpose: "email", Value: str(td, "EmailAddress")},
	}
	if g := str(td, "Gender"); g != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "gender", Value: g, Select: true})
	}
	if m := str(td, "MaritalStatus"); m != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "marital_status", Value: m, Select: true})
	}
	if err := carrier.FillFields(ctx, fc.Session, targets); err != nil {
		return err
	}
	return carrier.ClickPurpose(ctx, fc.Session, "continue_button")
}

func (a *Agent) handleAddress(ctx context.Context, fc *carrier.Context) error {
	td := a.vocab(fc)
	targets := []carrier.FieldTarget{
		{Purpose: "address", Value: str(td, "MailingAddress")},
		{Purpose: "city", Value: str(td, "City")},
		{Purpose: "state", Value: str(td, "State"), Select: true},
	}
	if apt := str(td, "ApartmentUnit"); apt != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "apt_unit", Value: apt})
	}
	if own := str(td, "ResidenceType"); own != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "home_ownership", Value: own, Select: true})
	}
	if err := carrier.FillFields(ctx, fc.Session, targets); err != nil {
		return err
	}
	return carrier.ClickPurpose(ctx, fc.Session, "continue_button")
}

func (a *Agent) handleVehicle(ctx context.Context, fc *carrier.Context) error {
	td := a.vocab(fc)
	vehicles, _ := td["Vehicles"].([]any)
	if len(vehicles) == 0 {
		return fmt.Errorf("no vehicles in task data")
	}

	// The page collects one vehicle at a time; each pass through this step
	// submits the next unsubmitted entry. Once all are in, the step just
	// continues (the site re-shows the vehicle list before moving on).
	a.mu.Lock()
	idx := a.stateLocked(fc.TaskID).vehiclesDone
	a.mu.Unlock()
	if idx >= len(vehicles) {
		return carrier.ClickPurpose(ctx, fc.Session, "continue_button")
	}

	v, _ := vehicles[idx].(map[string]any)
	if v == nil {
		return fmt.Errorf("vehicle entry %d is not an object", idx)
	}

	targets := []carrier.FieldTarget{
		{Purpose: "vehicle_year", Value: numStr(v["year"]), Select: true},
		{Purpose: "vehicle_make", Value: str(v, "make"), Select: true},
		{Purpose: "vehicle_model", Value: str(v, "model"), Select: true},
	}
	if own, _ := v["ownership"].(string); own != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "vehicle_ownership", Value: own, Select: true})
	}
	if err := carrier.FillFields(ctx, fc.Session, targets); err != nil {
		return err
	}
	if err := carrier.ClickPurpose(ctx, fc.Session, "continue_button"); err != nil {
		return err
	}

	a.mu.Lock()
	a.stateLocked(fc.TaskID).vehiclesDone = idx + 1
	a.mu.Unlock()
	return nil
}

func (a *Agent) handleHistory(ctx context.Context, fc *carrier.Context) error {
	td := a.vocab(fc)
	// Accidents and violations render as selects with numeric options.
	targets := []carrier.FieldTarget{
		{Purpose: "accidents", Value: numStr(td["AccidentCount"]), Select: true, Fallbacks: []string{"#accidents"}},
		{Purpose: "violations", Value: numStr(td["ViolationCount"]), Select: true, Fallbacks: []string{"#violations"}},
		{Purpose: "prior_insurance", Value: str(td, "PriorInsurance"), Select: true, Fallbacks: []string{"#prior-insurance"}},
	}
	if insurer := str(td, "CurrentCarrier"); insurer != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "current_insurer", Value: insurer})
	}
	if err := carrier.FillFields(ctx, fc.Session, targets); err != nil {
		return err
	}
	return carrier.ClickPurpose(ctx, fc.Session, "continue_button")
}

// extractQuote pulls the monthly price off the results page.
func (a *Agent) extractQuote(ctx context.Context, fc *carrier.Context, st *flowState) carrier.Response {
	var price string
	for _, sel := range []string{"[data-testid=\"monthly-premium\"]", ".monthly-price", "#rate-price", ".price-display"} {
		if res := fc.Session.ExtractText(ctx, sel); res.Success && res.Data != "" {
			price = res.Data
			break
		}
	}
	if price == "" {
		return a.fail(ctx, fc, "quote_results", fmt.Errorf("results page reached but no price element found"))
	}

	quote := &carrier.Quote{
		Carrier: carrierID,
		Price:   price,
		Term:    "monthly",
		Raw:     price,
	}
	a.mu.Lock()
	st.quote = quote
	st.label = "quote_results"
	st.step = stepOrder["quote_results"]
	a.mu.Unlock()

	if fc.Shots != nil {
		fc.Shots.Log("quote_extracted", fc.TaskID, carrierID, quote)
	}
	return carrier.Response{
		Status:           task.StatusCompleted,
		CurrentStep:      stepOrder["quote_results"],
		CurrentStepLabel: "quote_results",
		Quote:            quote,
	}
}

func (a *Agent) fail(ctx context.Context, fc *carrier.Context, site string, err error) carrier.Response {
	log.Printf("progressive flow error for task %s at %s: %v", fc.TaskID, site, err)
	carrier.CaptureFailure(ctx, fc, carrierID+"_"+site)

	st := a.stateSnapshot(fc.TaskID)
	return carrier.Response{
		Status:           task.StatusError,
		CurrentStep:      st.step,
		CurrentStepLabel: st.label,
		Error:            err.Error(),
	}
}

// vocab translates accumulated unified data into Progressive's field names.
func (a *Agent) vocab(fc *carrier.Context) map[string]any {
	td, err := schema.TransformDataForCarrier(fc.Data, carrierID)
	if err != nil {
		return map[string]any{}
	}
	return td
}

func missingFields(data map[string]any, needed []string) []string {
	var missing []string
	for _, id := range needed {
		if v, ok := data[id]; !ok || v == nil || v == "" {
			missing = append(missing, id)
		}
	}
	return missing
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numStr(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	case string:
		return n
	default:
		return ""
	}
}
