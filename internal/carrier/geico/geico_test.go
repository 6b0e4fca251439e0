package geico

import (
	"context"
	"sync"
	"testing"
	"time"

	"quotepilot/internal/browser"
	"quotepilot/internal/carrier"
	"quotepilot/internal/carrier/carriertest"
	"quotepilot/internal/task"
)

type page struct {
	url      string
	title    string
	body     string
	elements []browser.SnapshotElement
}

type scriptedDriver struct {
	*carriertest.Driver
	pages []page
	at    int
}

func newScripted(pages []page) *scriptedDriver {
	d := &scriptedDriver{Driver: carriertest.New(), pages: pages}
	d.apply()
	d.Driver.OnNavigate = func(string) { d.at = 0; d.apply() }
	return d
}

func (d *scriptedDriver) apply() {
	p := d.pages[d.at]
	d.Driver.SetPage(p.url, p.title, p.body, p.elements...)
}

func (d *scriptedDriver) Click(ctx context.Context, selector string) browser.ActionResult {
	res := d.Driver.Click(ctx, selector)
	// Only submit-style controls move the flow; discount toggles do not.
	if res.Success && (selector == "#start" || selector == "#next1" || selector == "#next2" || selector == "#next3" || selector == "#next4") && d.at < len(d.pages)-1 {
		d.at++
		d.apply()
	}
	return res
}

func input(selector, name string) browser.SnapshotElement {
	return browser.SnapshotElement{Tag: "input", Selector: selector, Attrs: map[string]string{"name": name}}
}

func sel(selector, name string) browser.SnapshotElement {
	return browser.SnapshotElement{Tag: "select", Selector: selector, Attrs: map[string]string{"name": name}}
}

func button(selector, text string) browser.SnapshotElement {
	return browser.SnapshotElement{Tag: "button", Selector: selector, Text: text}
}

func pagesWithDiscounts(includeToggles bool) []page {
	discountEls := []browser.SnapshotElement{button("#next4", "Continue")}
	if includeToggles {
		discountEls = append(discountEls,
			browser.SnapshotElement{Tag: "input", Selector: "#bundle", Attrs: map[string]string{"name": "bundleHome"}},
		)
	}
	return []page{
		{
			url:  "https://www.geico.com/auto-insurance/",
			body: "Start your quote today",
			elements: []browser.SnapshotElement{
				input("#zip", "zip"),
				button("#start", "Start Quote"),
			},
		},
		{
			url:   "https://sales.geico.com/quote/personal",
			title: "About the Driver",
			elements: []browser.SnapshotElement{
				input("#first", "first_name"),
				input("#last", "last_name"),
				input("#dob", "date_of_birth"),
				button("#next1", "Continue"),
			},
		},
		{
			url:  "https://sales.geico.com/quote/address",
			body: "Where do you park at night?",
			elements: []browser.SnapshotElement{
				input("#street", "street_address"),
				input("#city", "city"),
				sel("#state", "state"),
				button("#next2", "Continue"),
			},
		},
		{
			url:   "https://sales.geico.com/quote/vehicle",
			title: "Your Vehicle",
			elements: []browser.SnapshotElement{
				sel("#year", "vehicle_year"),
				sel("#make", "vehicle_make"),
				sel("#model", "vehicle_model"),
				button("#next3", "Continue"),
			},
		},
		{
			url:      "https://sales.geico.com/quote/discounts",
			body:     "Bundle and save",
			elements: discountEls,
		},
		{
			url:  "https://sales.geico.com/quote/rate",
			body: "Your rate is ready",
			elements: []browser.SnapshotElement{
				{Tag: "div", Selector: "#premium-total", Text: "$612.00", Attrs: map[string]string{"id": "premium-total"}},
			},
		},
	}
}

func fullData() map[string]any {
	return map[string]any{
		"zipCode":       "30301",
		"firstName":     "Grace",
		"lastName":      "Hopper",
		"dateOfBirth":   "12/09/1970",
		"streetAddress": "1 Compiler Ct",
		"city":          "Atlanta",
		"state":         "GA",
		"vehicles":      []any{map[string]any{"year": float64(2019), "make": "Toyota", "model": "Camry"}},
	}
}

func TestStartWithoutZipWaitsForInput(t *testing.T) {
	a := New()
	d := newScripted(pagesWithDiscounts(false))

	resp := a.Start(context.Background(), &carrier.Context{
		TaskID: "t1", CarrierID: carrierID, Data: map[string]any{}, Session: d,
	})
	if resp.Status != task.StatusWaitingForInput {
		t.Fatalf("expected waiting_for_input, got %q", resp.Status)
	}
	if len(resp.RequiredFields) != 1 || resp.RequiredFields[0] != "zipCode" {
		t.Errorf("expected zipCode required, got %v", resp.RequiredFields)
	}
}

func TestFullFlowWithoutDiscountToggles(t *testing.T) {
	// The savings page renders without toggles for this visitor; the flow
	// must continue past it rather than fail.
	a := New()
	d := newScripted(pagesWithDiscounts(false))
	data := fullData()
	data["bundleHome"] = true
	data["paperlessDiscount"] = true

	resp := a.Start(context.Background(), &carrier.Context{
		TaskID: "t1", CarrierID: carrierID, Data: data, Session: d,
	})
	if resp.Status != task.StatusCompleted {
		t.Fatalf("expected completed flow, got %q (err %q, step %q)", resp.Status, resp.Error, resp.CurrentStepLabel)
	}
	if resp.Quote == nil || resp.Quote.Price != "$612.00" || resp.Quote.Term != "6-month" {
		t.Fatalf("unexpected quote: %+v", resp.Quote)
	}
}

func TestDiscountToggleClickedWhenPresent(t *testing.T) {
	a := New()
	d := newScripted(pagesWithDiscounts(true))
	data := fullData()
	data["bundleHome"] = true

	resp := a.Start(context.Background(), &carrier.Context{
		TaskID: "t1", CarrierID: carrierID, Data: data, Session: d,
	})
	if resp.Status != task.StatusCompleted {
		t.Fatalf("expected completed flow, got %q (err %q)", resp.Status, resp.Error)
	}

	clickedBundle := false
	for _, act := range d.Actions {
		if act == "click #bundle" {
			clickedBundle = true
		}
	}
	if !clickedBundle {
		t.Errorf("expected bundle toggle clicked, actions: %v", d.Actions)
	}
}

func TestStatusSafeWhileFlowRuns(t *testing.T) {
	// The server polls Status from request goroutines while Start is still
	// driving the flow.
	a := New()
	d := newScripted(pagesWithDiscounts(false))
	fc := &carrier.Context{TaskID: "t1", CarrierID: carrierID, Data: fullData(), Session: d}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					st := a.Status("t1")
					if st.Status == task.StatusCompleted && st.Quote == nil {
						t.Error("completed status without a quote")
						return
					}
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	resp := a.Start(context.Background(), fc)
	close(done)
	wg.Wait()

	if resp.Status != task.StatusCompleted {
		t.Fatalf("expected completed flow, got %q (err %q)", resp.Status, resp.Error)
	}
	if got := a.Status("t1"); got.Status != task.StatusCompleted || got.Quote == nil {
		t.Errorf("unexpected final status: %+v", got)
	}
}

func TestStatusStartsEmpty(t *testing.T) {
	a := New()
	resp := a.Status("t-none")
	if resp.Status != task.StatusProcessing || resp.Quote != nil {
		t.Errorf("unexpected zero-state status: %+v", resp)
	}
}
