// Package carriertest provides a scriptable in-memory browser.Driver so the
// carrier state machines can be exercised without a Chrome binary.
package carriertest

import (
	"context"
	"strings"
	"sync"

	"quotepilot/internal/browser"
)

// Driver is a fake browser session. Tests set its page state (URL, title,
// body, elements) and inspect the actions the flow performed against it.
type Driver struct {
	mu sync.Mutex

	URL      string
	Title    string
	Body     string
	Elements []browser.SnapshotElement

	// Values holds per-selector input state readable through ExtractText.
	Values map[string]string

	// FailSelectors makes actions against these selectors fail.
	FailSelectors map[string]bool

	// Actions is the ordered action log, entries like "click #go" or
	// "type #zip=94103".
	Actions []string

	// OnNavigate lets a test mutate page state when a URL loads.
	OnNavigate func(url string)
}

func New() *Driver {
	return &Driver{
		Values:        make(map[string]string),
		FailSelectors: make(map[string]bool),
	}
}

// SetPage swaps the whole visible page in one call.
func (d *Driver) SetPage(url, title, body string, elements ...browser.SnapshotElement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.URL, d.Title, d.Body, d.Elements = url, title, body, elements
}

func (d *Driver) log(entry string) {
	d.Actions = append(d.Actions, entry)
}

func (d *Driver) Navigate(ctx context.Context, url string) browser.ActionResult {
	d.mu.Lock()
	d.URL = url
	d.log("navigate " + url)
	fn := d.OnNavigate
	d.mu.Unlock()
	if fn != nil {
		fn(url)
	}
	return browser.ActionResult{Success: true, Data: url}
}

func (d *Driver) Click(ctx context.Context, selector string) browser.ActionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log("click " + selector)
	if d.FailSelectors[selector] {
		return browser.ActionResult{Error: "element not found: " + selector}
	}
	return browser.ActionResult{Success: true}
}

func (d *Driver) Type(ctx context.Context, selector, text string, opts browser.TypeOpts) browser.ActionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log("type " + selector + "=" + text)
	if d.FailSelectors[selector] {
		return browser.ActionResult{Error: "element not found: " + selector}
	}
	d.Values[selector] = text
	return browser.ActionResult{Success: true, Data: text}
}

func (d *Driver) SelectOption(ctx context.Context, selector, value string) browser.ActionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log("select " + selector + "=" + value)
	if d.FailSelectors[selector] {
		return browser.ActionResult{Error: "element not found: " + selector}
	}
	d.Values[selector] = value
	return browser.ActionResult{Success: true, Data: value}
}

func (d *Driver) WaitFor(ctx context.Context, opts browser.WaitOpts) browser.ActionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	if opts.Text != "" && !d.hasTextLocked(opts.Text) {
		return browser.ActionResult{Error: "text did not appear: " + opts.Text}
	}
	if opts.TextGone != "" && d.hasTextLocked(opts.TextGone) {
		return browser.ActionResult{Error: "text did not disappear: " + opts.TextGone}
	}
	return browser.ActionResult{Success: true}
}

func (d *Driver) ExtractText(ctx context.Context, selector string) browser.ActionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailSelectors[selector] {
		return browser.ActionResult{Error: "element not found: " + selector}
	}
	if v, ok := d.Values[selector]; ok {
		return browser.ActionResult{Success: true, Data: v}
	}
	for _, el := range d.Elements {
		if el.Selector == selector {
			return browser.ActionResult{Success: true, Data: el.Text}
		}
	}
	return browser.ActionResult{Error: "element not found: " + selector}
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log("screenshot")
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (d *Driver) Snapshot(ctx context.Context) ([]browser.SnapshotElement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.SnapshotElement(nil), d.Elements...), nil
}

func (d *Driver) HasText(ctx context.Context, text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasTextLocked(text)
}

func (d *Driver) hasTextLocked(text string) bool {
	return strings.Contains(strings.ToLower(d.Body), strings.ToLower(text))
}

func (d *Driver) Info(ctx context.Context) browser.PageInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return browser.PageInfo{URL: d.URL, Title: d.Title}
}

func (d *Driver) LastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.URL
}

var _ browser.Driver = (*Driver)(nil)
