package discovery

import (
	"testing"

	"quotepilot/internal/browser"
)

func el(tag, selector, text string, attrs map[string]string) browser.SnapshotElement {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return browser.SnapshotElement{Tag: tag, Selector: selector, Text: text, Attrs: attrs}
}

func TestIdentifyByAttributeSubstring(t *testing.T) {
	elements := []browser.SnapshotElement{
		el("input", "#other", "", map[string]string{"name": "query"}),
		el("input", "#zip", "", map[string]string{"name": "homeZipCode"}),
	}

	sel, ok := IdentifyFieldByPurpose(elements, "zipcode")
	if !ok {
		t.Fatal("expected zipcode to resolve")
	}
	if sel != "#zip" {
		t.Errorf("expected #zip, got %q", sel)
	}
}

func TestIdentifyExactAttributeMatch(t *testing.T) {
	elements := []browser.SnapshotElement{
		// "type=email" must be exact, so a type of "email-like" must not match.
		el("input", "#weird", "", map[string]string{"type": "email-like"}),
		el("input", "#mail", "", map[string]string{"type": "Email"}),
	}

	sel, ok := IdentifyFieldByPurpose(elements, "email")
	if !ok {
		t.Fatal("expected email to resolve")
	}
	if sel != "#mail" {
		t.Errorf("expected #mail (case-insensitive exact match), got %q", sel)
	}
}

func TestAttributePriorityOverText(t *testing.T) {
	// One element matches the text layer, another the attribute layer. The
	// attribute layer must win regardless of element order.
	elements := []browser.SnapshotElement{
		el("input", "#by-text", "Zip Code", nil),
		el("input", "#by-attr", "", map[string]string{"id": "zipInput"}),
	}

	sel, ok := IdentifyFieldByPurpose(elements, "zipcode")
	if !ok {
		t.Fatal("expected zipcode to resolve")
	}
	if sel != "#by-attr" {
		t.Errorf("expected attribute match #by-attr to win, got %q", sel)
	}
}

func TestDeclarationOrderBreaksTies(t *testing.T) {
	// Both elements match attribute patterns for zipcode; the name*=zip
	// pattern is declared before id*=zip, so the name match wins even though
	// the id element appears first in the snapshot.
	elements := []browser.SnapshotElement{
		el("input", "#by-id", "", map[string]string{"id": "zipField"}),
		el("input", "#by-name", "", map[string]string{"name": "zip"}),
	}

	sel, ok := IdentifyFieldByPurpose(elements, "zipcode")
	if !ok {
		t.Fatal("expected zipcode to resolve")
	}
	if sel != "#by-name" {
		t.Errorf("expected earlier-declared pattern to win, got %q", sel)
	}
}

func TestTextLayerFallback(t *testing.T) {
	elements := []browser.SnapshotElement{
		el("button", "#go", "Save & Continue", nil),
	}

	sel, ok := IdentifyFieldByPurpose(elements, "continue_button")
	if !ok {
		t.Fatal("expected continue_button to resolve")
	}
	if sel != "#go" {
		t.Errorf("expected #go, got %q", sel)
	}
}

func TestTypeLayerFallback(t *testing.T) {
	elements := []browser.SnapshotElement{
		el("input", "#anon", "", map[string]string{"type": "email"}),
	}

	sel, ok := IdentifyFieldByPurpose(elements, "email")
	if !ok {
		t.Fatal("expected email to resolve by input type")
	}
	if sel != "#anon" {
		t.Errorf("expected #anon, got %q", sel)
	}
}

func TestMaxLengthLayerFallback(t *testing.T) {
	elements := []browser.SnapshotElement{
		el("input", "#short", "", map[string]string{"maxlength": "5"}),
		el("textarea", "#long", "", map[string]string{"maxlength": "5"}),
	}

	sel, ok := IdentifyFieldByPurpose(elements, "zipcode")
	if !ok {
		t.Fatal("expected zipcode to resolve by maxlength")
	}
	if sel != "#short" {
		t.Errorf("expected input #short (not textarea), got %q", sel)
	}
}

func TestDeterministic(t *testing.T) {
	elements := []browser.SnapshotElement{
		el("input", "#a", "Zip Code", map[string]string{"name": "postalZip"}),
		el("input", "#b", "", map[string]string{"id": "zip"}),
		el("input", "#c", "", map[string]string{"maxlength": "5"}),
	}

	first, ok1 := IdentifyFieldByPurpose(elements, "zipcode")
	second, ok2 := IdentifyFieldByPurpose(elements, "zipcode")
	if ok1 != ok2 || first != second {
		t.Errorf("discovery not deterministic: %q vs %q", first, second)
	}
}

func TestUnknownPurpose(t *testing.T) {
	if _, ok := IdentifyFieldByPurpose(nil, "warp_drive"); ok {
		t.Error("expected unknown purpose to resolve to nothing")
	}
	if KnownPurpose("warp_drive") {
		t.Error("expected warp_drive to be unknown")
	}
	if !KnownPurpose("zipcode") {
		t.Error("expected zipcode to be known")
	}
}

func TestDiscoverFields(t *testing.T) {
	elements := []browser.SnapshotElement{
		el("input", "#zip", "", map[string]string{"name": "zip"}),
		el("input", "#first", "", map[string]string{"name": "firstName"}),
		el("button", "#next", "Continue", nil),
	}

	found := DiscoverFields(elements, []string{"zipcode", "firstname", "continue_button", "vehicle_make"})
	if len(found) != 3 {
		t.Fatalf("expected 3 resolutions, got %d: %v", len(found), found)
	}
	if found["zipcode"] != "#zip" || found["firstname"] != "#first" || found["continue_button"] != "#next" {
		t.Errorf("unexpected mapping: %v", found)
	}
	if _, ok := found["vehicle_make"]; ok {
		t.Error("vehicle_make should be absent when nothing matches")
	}
}
