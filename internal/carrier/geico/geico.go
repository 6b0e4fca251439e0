// Package geico drives the GEICO auto quote flow. Structure mirrors the
// progressive package; the differences are the page signatures, the carrier
// vocabulary and an optional discounts interstitial that only some visitors
// see.
package geico

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
	carrierID = "geico"
	entryURL  = "https://www.geico.com/auto-insurance/"

	maxAdvances = 8
)

var stepOrder = map[string]int{
	"entry":         1,
	"personal_info": 2,
	"address":       3,
	"vehicle":       4,
	"discounts":     5,
	"quote_results": 6,
}

var stepSigs = []carrier.StepSignature{
	{Name: "quote_results", URLContains: []string{"/quote/rate", "/your-rate"}, BodyContains: []string{"your rate", "6-month premium"}},
	{Name: "discounts", URLContains: []string{"/discounts", "/savings"}, BodyContains: []string{"save even more", "bundle and save"}},
	{Name: "vehicle", URLContains: []string{"/vehicle"}, TitleContains: []string{"vehicle"}, BodyContains: []string{"what do you drive"}},
	{Name: "address", URLContains: []string{"/address"}, BodyContains: []string{"where do you park"}},
	{Name: "personal_info", URLContains: []string{"/personal", "/driver-info"}, TitleContains: []string{"about the driver"}},
	{Name: "entry", URLContains: []string{"geico.com/auto"}, BodyContains: []string{"start your quote"}},
}

var stepNeeds = map[string][]string{
	"entry":         {"zipCode"},
	"personal_info": {"firstName", "lastName", "dateOfBirth"},
	"address":       {"streetAddress", "city", "state"},
	"vehicle":       {"vehicles"},
}

type flowState struct {
	step  int
	label string
	quote *carrier.Quote
	// vehiclesDone counts vehicle entries already submitted; each pass
	// through the vehicle step fills the next one.
	vehiclesDone int
}

// Agent implements the GEICO quote flow.
type Agent struct {
	mu     sync.Mutex
	states map[string]*flowState
}

func New() *Agent {
	return &Agent{states: make(map[string]*flowState)}
}

func (a *Agent) ID() string { return carrierID }

func (a *Agent) RequiredFields() []string {
	return []string{
		"zipCode", "firstName", "lastName", "dateOfBirth", "email",
		"streetAddress", "aptUnit", "city", "state",
		"vehicles", "gender", "maritalStatus", "homeOwnership",
		"bundleHome", "paperlessDiscount",
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

func (a *Agent) Step(ctx context.Context, fc *carrier.Context, data map[string]any) carrier.Response {
	st := a.stateSnapshot(fc.TaskID)
	if st.quote != nil {
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

func (a *Agent) Cleanup(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, taskID)
}

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
		case "discounts":
			err = a.handleDiscounts(ctx, fc)
		case "quote_results":
			return a.extractQuote(ctx, fc, st)
		}
		if err != nil {
			return a.fail(ctx, fc, step, err)
		}

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
		{Purpose: "zipcode", Value: str(td, "zip")},
	}); err != nil {
		return err
	}
	return carrier.ClickPurpose(ctx, fc.Session, "start_quote_button", "#submitButton")
}

func (a *Agent) handlePersonalInfo(ctx context.Context, fc *carrier.Context) error {
	td := a.vocab(fc)
	targets := []carrier.FieldTarget{
		{Purpose: "firstname", Value: str(td, "first_name")},
		{Purpose: "lastname", Value: str(td, "last_name")},
		{Purpose: "date_of_birth", Value: str(td, "date_of_birth"), Slowly: true},
	}
	if email := str(td, "email_address"); email != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "email", Value: email})
	}
	if g := str(td, "gender"); g != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "gender", Value: g, Select: true})
	}
	if m := str(td, "marital_status"); m != "" {
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
		{Purpose: "address", Value: str(td, "street_address")},
		{Purpose: "city", Value: str(td, "city")},
		{Purpose: "state", Value: str(td, "state"), Select: true},
	}
	if apt := str(td, "apt"); apt != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "apt_unit", Value: apt})
	}
	if own := str(td, "home_type"); own != "" {
		targets = append(targets, carrier.FieldTarget{Purpose: "home_ownership", Value: own, Select: true})
	}
	if err := carrier.FillFields(ctx, fc.Session, targets); err != nil {
		return err
	}
	return carrier.ClickPurpose(ctx, fc.Session, "continue_button")
}

func (a *Agent) handleVehicle(ctx context.Context, fc *carrier.Context) error {
	td := a.vocab(fc)
	vehicles, _ := td["vehicles"].([]any)
	if len(vehicles) == 0 {
		return fmt.Errorf("no vehicles in task data")
	}
	a.mu.Lock()
	idx := a.stateLocked(fc.TaskID).vehiclesDone
	a.mu.Unlock()
	if idx >= len(vehicles) {
		// Every vehicle entry is already submitted; the page is asking
		// whether to add another. Decline and move on.
		return carrier.ClickPurpose(ctx, fc.Session, "continue_button")
	}
	v, _ := vehicles[idx].(map[string]any)
	if v == nil {
		return fmt.Errorf("vehicle entry %d is not an object", idx)
	}

	if err := carrier.FillFields(ctx, fc.Session, []carrier.FieldTarget{
		{Purpose: "vehicle_year", Value: numStr(v["year"]), Select: true},
		{Purpose: "vehicle_make", Value: str(v, "make"), Select: true},
		{Purpose: "vehicle_model", Value: str(v, "model"), Select: true},
	}); err != nil {
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

// handleDiscounts deals with the optional savings interstitial. Only some
// visitors see the bundle and paperless toggles; their absence is expected
// and never an error.
func (a *Agent) handleDiscounts(ctx context.Context, fc *carrier.Context) error {
	td := a.vocab(fc)

	if wantsBool(td["bundle_home"]) {
		snap, err := fc.Session.Snapshot(ctx)
		if err == nil {
			for _, el := range snap {
				if el.Attr("name") == "bundleHome" || el.Attr("id") == "bundle-home" {
					if res := fc.Session.Click(ctx, el.Selector); !res.Success {
						log.Printf("geico bundle toggle for task %s: %s", fc.TaskID, res.Error)
					}
					break
				}
			}
		}
	}
	if wantsBool(td["paperless"]) {
		if res := fc.Session.ExtractText(ctx, "#paperless-discount"); res.Success {
			if click := fc.Session.Click(ctx, "#paperless-discount"); !click.Success {
				log.Printf("geico paperless toggle for task %s: %s", fc.TaskID, click.Error)
			}
		}
	}

	return carrier.ClickPurpose(ctx, fc.Session, "continue_button")
}

func (a *Agent) extractQuote(ctx context.Context, fc *carrier.Context, st *flowState) carrier.Response {
	var price string
	for _, sel := range []string{"[data-testid=\"premium-amount\"]", ".rate-amount", "#premium-total", ".quote-price"} {
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
		Term:    "6-month",
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
	log.Printf("geico flow error for task %s at %s: %v", fc.TaskID, site, err)
	carrier.CaptureFailure(ctx, fc, carrierID+"_"+site)

	st := a.stateSnapshot(fc.TaskID)
	return carrier.Response{
		Status:           task.StatusError,
		CurrentStep:      st.step,
		CurrentStepLabel: st.label,
		Error:            err.Error(),
	}
}

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

func wantsBool(v any) bool {
	b, _ := v.(bool)
	return b
}
