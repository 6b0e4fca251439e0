package carrier

import (
	"context"
	"fmt"
	"log"
	"strings"

	"quotepilot/internal/browser"
	"quotepilot/internal/discovery"
)

// StepSignature classifies a live page as one step of a carrier flow. Signals
// are checked in reliability order across all signatures: URL substrings
// first, then title, then body text. The live page is authoritative; a flow
// never trusts its own step counter over these signals.
type StepSignature struct {
	Name          string
	URLContains   []string
	TitleContains []string
	BodyContains  []string
}

// DetectStep matches the current page against the signatures. URL matches on
// any signature beat title matches on any, which beat body-text matches.
func DetectStep(ctx context.Context, d browser.Driver, sigs []StepSignature) (string, bool) {
	info := d.Info(ctx)
	url := strings.ToLower(info.URL)
	title := strings.ToLower(info.Title)

	for _, sig := range sigs {
		for _, frag := range sig.URLContains {
			if frag != "" && strings.Contains(url, strings.ToLower(frag)) {
				return sig.Name, true
			}
		}
	}
	for _, sig := range sigs {
		for _, frag := range sig.TitleContains {
			if frag != "" && strings.Contains(title, strings.ToLower(frag)) {
				return sig.Name, true
			}
		}
	}
	for _, sig := range sigs {
		for _, frag := range sig.BodyContains {
			if frag != "" && d.HasText(ctx, frag) {
				return sig.Name, true
			}
		}
	}
	return "", false
}

// FieldTarget is one fill instruction: resolve an element for a semantic
// purpose and enter a value. Fallbacks are raw selectors tried in order when
// heuristic discovery misses; Select switches from typing to option choosing.
type FieldTarget struct {
	Purpose   string
	Value     string
	Fallbacks []string
	Select    bool
	Slowly    bool
}

// FillFields resolves and fills each target on the current page. One snapshot
// serves all targets. A target whose purpose and every fallback miss fails
// the whole call; the caller decides whether that is fatal for the step.
func FillFields(ctx context.Context, d browser.Driver, targets []FieldTarget) error {
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot page: %w", err)
	}

	for _, t := range targets {
		selector, ok := discovery.IdentifyFieldByPurpose(snap, t.Purpose)
		if !ok {
			selector, ok = firstPresent(ctx, d, t.Fallbacks)
		}
		if !ok {
			return fmt.Errorf("could not discover element for purpose: %s", t.Purpose)
		}

		var res browser.ActionResult
		if t.Select {
			res = d.SelectOption(ctx, selector, t.Value)
		} else {
			res = d.Type(ctx, selector, t.Value, browser.TypeOpts{Slowly: t.Slowly})
		}
		if !res.Success {
			return fmt.Errorf("fill %s: %s", t.Purpose, res.Error)
		}
	}
	return nil
}

// firstPresent returns the first fallback selector that resolves to a real
// element. Individual misses are expected and skipped.
func firstPresent(ctx context.Context, d browser.Driver, selectors []string) (string, bool) {
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		if res := d.ExtractText(ctx, sel); res.Success {
			return sel, true
		}
	}
	return "", false
}

// ClickPurpose resolves a clickable element by purpose (with selector
// fallbacks) and clicks it.
func ClickPurpose(ctx context.Context, d browser.Driver, purpose string, fallbacks ...string) error {
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot page: %w", err)
	}
	selector, ok := discovery.IdentifyFieldByPurpose(snap, purpose)
	if !ok {
		selector, ok = firstPresent(ctx, d, fallbacks)
	}
	if !ok {
		return fmt.Errorf("could not discover element for purpose: %s", purpose)
	}
	if res := d.Click(ctx, selector); !res.Success {
		return fmt.Errorf("click %s: %s", purpose, res.Error)
	}
	return nil
}

// CaptureFailure grabs a screenshot for the diagnostics directory on a fatal
// flow error. Best effort: capture problems are logged, not propagated.
func CaptureFailure(ctx context.Context, fc *Context, site string) {
	if fc.Shots == nil {
		return
	}
	png, err := fc.Session.Screenshot(ctx)
	if err != nil {
		log.Printf("failure screenshot for task %s at %s: %v", fc.TaskID, site, err)
		return
	}
	if _, err := fc.Shots.SaveScreenshot(fc.TaskID, site, png); err != nil {
		log.Printf("save failure screenshot for task %s at %s: %v", fc.TaskID, site, err)
	}
	fc.Shots.Log("failure", fc.TaskID, fc.CarrierID, map[string]string{"site": site, "url": fc.Session.LastURL()})
}

// UnknownStateError builds the uniform error for a page no signature claims.
func UnknownStateError(ctx context.Context, d browser.Driver) error {
	info := d.Info(ctx)
	return fmt.Errorf("unrecognized page state at %s (title %q)", info.URL, info.Title)
}
