package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ActionResult is the uniform outcome of every browser primitive. Failures
// are reported here, never thrown past this layer; the carrier machines
// decide what is fatal.
type ActionResult struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TypeOpts tunes text entry for pages with keystroke-driven validation.
type TypeOpts struct {
	// Slowly types character by character instead of inserting the whole value.
	Slowly bool
	// Submit presses Enter after the text is entered.
	Submit bool
}

// WaitOpts describes a wait condition. Exactly one of Text, TextGone or
// Duration is expected; Timeout bounds the text waits.
type WaitOpts struct {
	Text     string
	TextGone string
	Duration time.Duration
	Timeout  time.Duration
}

// PageInfo is the cheap classification signal pair for step detection.
type PageInfo struct {
	URL   string
	Title string
}

func failResult(op string, err error) ActionResult {
	return ActionResult{Error: fmt.Sprintf("%s: %v", op, err)}
}

// do runs one primitive against a healthy page. A page found poisoned
// mid-action is replaced and the action retried once transparently;
// only the second failure surfaces.
func (s *Session) do(ctx context.Context, fn func(page *rod.Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.ensureLocked(ctx)
	if err != nil {
		return err
	}

	err = fn(h.Page())
	if err != nil && isPoisonedErr(err) {
		h, err = s.recoverLocked(ctx)
		if err == nil {
			err = fn(h.Page())
		}
	}
	if err != nil {
		return err
	}

	s.noteURLLocked(h)
	return nil
}

// Navigate loads a URL and waits for minimal DOM readiness (load event, not
// network idle, to bound latency against slow third-party analytics).
// Transient failures are retried a bounded number of times with backoff.
func (s *Session) Navigate(ctx context.Context, url string) ActionResult {
	nav := s.mgr.cfg.NavigationTimeout()

	err := s.do(ctx, func(page *rod.Page) error {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxElapsedTime = 0
		return backoff.Retry(func() error {
			if err := page.Timeout(nav).Navigate(url); err != nil {
				if isPoisonedErr(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			if err := page.Timeout(nav).WaitLoad(); err != nil {
				return err
			}
			return nil
		}, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
	})
	if err != nil {
		return failResult("navigate "+url, err)
	}
	return ActionResult{Success: true, Data: url}
}

// Click locates the first element matching the selector and clicks it with
// real mouse events.
func (s *Session) Click(ctx context.Context, selector string) ActionResult {
	action := s.mgr.cfg.ActionTimeout()

	err := s.do(ctx, func(page *rod.Page) error {
		el, err := page.Timeout(action).Element(selector)
		if err != nil {
			return fmt.Errorf("element not found: %s", selector)
		}
		if visible, err := el.Visible(); err != nil || !visible {
			return fmt.Errorf("element not visible: %s", selector)
		}
		return el.Click("left", 1)
	})
	if err != nil {
		return failResult("click "+selector, err)
	}
	return ActionResult{Success: true}
}

// Type clears the target input and enters text. Slowly feeds one character at
// a time for pages that validate per keystroke; Submit presses Enter after.
func (s *Session) Type(ctx context.Context, selector, text string, opts TypeOpts) ActionResult {
	action := s.mgr.cfg.ActionTimeout()

	var finalValue string
	err := s.do(ctx, func(page *rod.Page) error {
		el, err := page.Timeout(action).Element(selector)
		if err != nil {
			return fmt.Errorf("element not found: %s", selector)
		}
		if err := el.SelectAllText(); err == nil {
			_ = el.Input("")
		}
		if opts.Slowly {
			for _, r := range text {
				if err := el.Input(string(r)); err != nil {
					return err
				}
				time.Sleep(40 * time.Millisecond)
			}
		} else {
			if err := el.Input(text); err != nil {
				return err
			}
		}
		if opts.Submit {
			if err := page.Keyboard.Press('\r'); err != nil {
				return fmt.Errorf("submit keystroke: %w", err)
			}
		}
		if prop, err := el.Property("value"); err == nil {
			finalValue = prop.Str()
		}
		return nil
	})
	if err != nil {
		return failResult("type "+selector, err)
	}
	return ActionResult{Success: true, Data: finalValue}
}

// SelectOption chooses a dropdown option by value, falling back to visible
// text. Non-native dropdowns are opened with a click so the caller can pick
// an option element on the next action.
func (s *Session) SelectOption(ctx context.Context, selector, value string) ActionResult {
	action := s.mgr.cfg.ActionTimeout()

	err := s.do(ctx, func(page *rod.Page) error {
		el, err := page.Timeout(action).Element(selector)
		if err != nil {
			return fmt.Errorf("element not found: %s", selector)
		}
		tag, _ := el.Property("tagName")
		if tag.Str() == "SELECT" {
			if err := el.Select([]string{value}, true, "value"); err != nil {
				if err := el.Select([]string{value}, true, "text"); err != nil {
					return fmt.Errorf("option not found: %s", value)
				}
			}
			return nil
		}
		return el.Click("left", 1)
	})
	if err != nil {
		return failResult("select "+selector, err)
	}
	return ActionResult{Success: true, Data: value}
}

// WaitFor blocks until literal text appears or disappears, or a fixed
// duration elapses. Used when no structural signal is available.
func (s *Session) WaitFor(ctx context.Context, opts WaitOpts) ActionResult {
	if opts.Duration <= 0 && opts.Text == "" && opts.TextGone == "" {
		return failResult("wait", errors.New("no wait condition: set Text, TextGone or Duration"))
	}
	if opts.Duration > 0 {
		select {
		case <-ctx.Done():
			return failResult("wait", ctx.Err())
		case <-time.After(opts.Duration):
			return ActionResult{Success: true}
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.mgr.cfg.ActionTimeout()
	}
	deadline := time.Now().Add(timeout)

	for {
		if opts.Text != "" && s.HasText(ctx, opts.Text) {
			return ActionResult{Success: true, Data: opts.Text}
		}
		if opts.TextGone != "" && !s.HasText(ctx, opts.TextGone) {
			return ActionResult{Success: true}
		}
		if time.Now().After(deadline) {
			if opts.Text != "" {
				return failResult("wait", fmt.Errorf("text %q did not appear within %v", opts.Text, timeout))
			}
			return failResult("wait", fmt.Errorf("text %q did not disappear within %v", opts.TextGone, timeout))
		}
		select {
		case <-ctx.Done():
			return failResult("wait", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// ExtractText returns the visible text of the first element matching the
// selector.
func (s *Session) ExtractText(ctx context.Context, selector string) ActionResult {
	action := s.mgr.cfg.ActionTimeout()

	var text string
	err := s.do(ctx, func(page *rod.Page) error {
		el, err := page.Timeout(action).Element(selector)
		if err != nil {
			return fmt.Errorf("element not found: %s", selector)
		}
		text, err = el.Text()
		return err
	})
	if err != nil {
		return failResult("extract "+selector, err)
	}
	return ActionResult{Success: true, Data: strings.TrimSpace(text)}
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.do(ctx, func(page *rod.Page) error {
		var err error
		data, err = page.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

// HasText is a fast optimistic probe for literal body text. A short timeout
// is intentional: it lets the state machine fall through to an alternate
// strategy instead of stalling on a likely-absent signal.
func (s *Session) HasText(ctx context.Context, text string) bool {
	probe := s.mgr.cfg.OptimisticProbeTimeout()

	found := false
	err := s.do(ctx, func(page *rod.Page) error {
		js := fmt.Sprintf(
			`() => !!document.body && document.body.innerText.toLowerCase().includes(%q)`,
			strings.ToLower(text),
		)
		res, err := page.Timeout(probe).Eval(js)
		if err != nil {
			return err
		}
		found = res.Value.Bool()
		return nil
	})
	return err == nil && found
}

// Info reports the current URL and title for step classification.
func (s *Session) Info(ctx context.Context) PageInfo {
	var out PageInfo
	_ = s.do(ctx, func(page *rod.Page) error {
		info, err := page.Info()
		if err != nil {
			return err
		}
		out = PageInfo{URL: info.URL, Title: info.Title}
		return nil
	})
	return out
}
