package browser

import (
	"context"
	"time"
)

// Driver is the browser capability surface the carrier state machines work
// against. *Session implements it; tests substitute fakes so the machines
// can be exercised without a Chrome binary.
type Driver interface {
	Navigate(ctx context.Context, url string) ActionResult
	Click(ctx context.Context, selector string) ActionResult
	Type(ctx context.Context, selector, text string, opts TypeOpts) ActionResult
	SelectOption(ctx context.Context, selector, value string) ActionResult
	WaitFor(ctx context.Context, opts WaitOpts) ActionResult
	ExtractText(ctx context.Context, selector string) ActionResult
	Screenshot(ctx context.Context) ([]byte, error)
	Snapshot(ctx context.Context) ([]SnapshotElement, error)
	HasText(ctx context.Context, text string) bool
	Info(ctx context.Context) PageInfo
	LastURL() string
}

var _ Driver = (*Session)(nil)

// Sleep is a context-aware pause shared by flow code that needs to yield to
// slow carrier-side scripts between actions.
func Sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
