// Package discovery maps semantic field purposes ("zipcode", "continue_button")
// onto live page elements without fixed selectors. Carrier markup changes
// without notice, so no single heuristic is reliable; layering cheap specific
// checks before fuzzier ones maximizes hit rate while keeping false positives
// down.
package discovery

import (
	"strings"

	"quotepilot/internal/browser"
)

// attrPattern is one attribute check, parsed from the "name*=zip" notation:
// "*=" means case-insensitive substring, "=" means exact match.
type attrPattern struct {
	attr  string
	value string
	exact bool
}

func parsePattern(raw string) attrPattern {
	if attr, value, ok := strings.Cut(raw, "*="); ok {
		return attrPattern{attr: attr, value: strings.ToLower(value)}
	}
	attr, value, _ := strings.Cut(raw, "=")
	return attrPattern{attr: attr, value: value, exact: true}
}

func (p attrPattern) matches(el browser.SnapshotElement) bool {
	v, ok := el.Attrs[p.attr]
	if !ok {
		return false
	}
	if p.exact {
		return strings.EqualFold(v, p.value)
	}
	return strings.Contains(strings.ToLower(v), p.value)
}

// heuristic is the layered rule set for one purpose. Layers are evaluated in
// order (attributes, then label text, then input type, then maxlength) and
// declaration order within a layer breaks ties, so results are deterministic
// for a given snapshot.
type heuristic struct {
	attrs     []string
	labels    []string
	types     []string
	maxLength string
}

// KnownPurpose reports whether a purpose has a heuristic table.
func KnownPurpose(purpose string) bool {
	_, ok := purposes[purpose]
	return ok
}

// IdentifyFieldByPurpose returns the best-guess selector for a purpose, or
// false when every layer comes up empty. First match per layer wins.
func IdentifyFieldByPurpose(elements []browser.SnapshotElement, purpose string) (string, bool) {
	h, ok := purposes[purpose]
	if !ok {
		return "", false
	}

	for _, raw := range h.attrs {
		pattern := parsePattern(raw)
		for _, el := range elements {
			if pattern.matches(el) {
				return el.Selector, true
			}
		}
	}

	for _, phrase := range h.labels {
		for _, el := range elements {
			if el.Text == "" {
				continue
			}
			if strings.Contains(strings.ToLower(el.Text), phrase) {
				return el.Selector, true
			}
		}
	}

	for _, typ := range h.types {
		for _, el := range elements {
			if el.Tag != "input" {
				continue
			}
			if strings.EqualFold(el.Attr("type"), typ) {
				return el.Selector, true
			}
		}
	}

	if h.maxLength != "" {
		for _, el := range elements {
			if el.Tag != "input" {
				continue
			}
			if el.Attr("maxlength") == h.maxLength {
				return el.Selector, true
			}
		}
	}

	return "", false
}

// DiscoverFields resolves a batch of purposes against one snapshot. Purposes
// that resolve to nothing are simply absent from the result; the caller
// decides whether that is fatal.
func DiscoverFields(elements []browser.SnapshotElement, purposeList []string) map[string]string {
	found := make(map[string]string, len(purposeList))
	for _, purpose := range purposeList {
		if selector, ok := IdentifyFieldByPurpose(elements, purpose); ok {
			found[purpose] = selector
		}
	}
	return found
}
