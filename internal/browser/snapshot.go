package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
)

// SnapshotElement is one interactive element serialized from the live page.
// Snapshots are ephemeral: the underlying page mutates continuously, so they
// are recomputed for every discovery request and never persisted.
type SnapshotElement struct {
	Tag      string            `json:"tag"`
	Text     string            `json:"text"`
	Ref      string            `json:"ref"`
	Selector string            `json:"selector"`
	Attrs    map[string]string `json:"attrs"`
}

// Attr returns an attribute value, empty when absent.
func (e SnapshotElement) Attr(name string) string {
	return e.Attrs[name]
}

// snapshotEvalErr normalizes the two distinct eval failure modes: a real
// error, and a nil result with no error at all.
func snapshotEvalErr(noResult bool, err error) error {
	if err != nil {
		return fmt.Errorf("snapshot eval: %w", err)
	}
	if noResult {
		return errors.New("snapshot eval returned no result")
	}
	return nil
}

// Snapshot serializes up to the configured number of interactive elements
// (inputs, selects, textareas, buttons, anchors) with tag, visible text and
// attribute map. Each element carries a best-effort stable reference:
// data-testid, then id, then name, then a synthetic index, with a usable CSS
// selector derived the same way.
func (s *Session) Snapshot(ctx context.Context) ([]SnapshotElement, error) {
	limit := s.mgr.cfg.SnapshotLimit()

	js := fmt.Sprintf(`
	() => {
		const limit = %d;
		const esc = (v) => v.replace(/\\/g, '\\\\').replace(/"/g, '\\"');
		const cssPath = (el) => {
			const parts = [];
			let node = el;
			while (node && node.nodeType === 1 && parts.length < 6) {
				let part = node.tagName.toLowerCase();
				if (node.id) {
					parts.unshift(part + '[id="' + esc(node.id) + '"]');
					break;
				}
				const parent = node.parentElement;
				if (parent) {
					const siblings = Array.from(parent.children).filter(c => c.tagName === node.tagName);
					if (siblings.length > 1) {
						part += ':nth-of-type(' + (siblings.indexOf(node) + 1) + ')';
					}
				}
				parts.unshift(part);
				node = parent;
			}
			return parts.join(' > ');
		};

		const out = [];
		document.querySelectorAll('input, select, textarea, button, a[href]').forEach((el, idx) => {
			if (out.length >= limit) return;

			const attrs = {};
			for (const { name, value } of Array.from(el.attributes || [])) {
				attrs[name] = value;
			}

			const testId = el.getAttribute('data-testid') || '';
			const elId = el.id || '';
			const elName = el.getAttribute('name') || '';

			let ref, selector;
			if (testId) {
				ref = testId;
				selector = '[data-testid="' + esc(testId) + '"]';
			} else if (elId) {
				ref = elId;
				selector = '[id="' + esc(elId) + '"]';
			} else if (elName) {
				ref = elName;
				selector = el.tagName.toLowerCase() + '[name="' + esc(elName) + '"]';
			} else {
				ref = 'el-' + idx;
				selector = cssPath(el);
			}

			out.push({
				tag: el.tagName.toLowerCase(),
				text: (el.innerText || el.value || '').trim().slice(0, 200),
				ref: ref,
				selector: selector,
				attrs: attrs
			});
		});
		return out;
	}
	`, limit)

	var elements []SnapshotElement
	err := s.do(ctx, func(page *rod.Page) error {
		res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
			JS:           js,
			ByValue:      true,
			AwaitPromise: true,
		})
		if ferr := snapshotEvalErr(res == nil, err); ferr != nil {
			return ferr
		}
		raw, err := res.Value.MarshalJSON()
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		elements = elements[:0]
		if err := json.Unmarshal(raw, &elements); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return elements, nil
}
