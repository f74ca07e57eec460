// Package snapshot is the perception layer: a depth-bounded accessibility
// read of a tab's structure and a substring element finder, both addressing
// elements through durable ref ids written as a DOM attribute.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stepdrive/browserpilot/internal/browser"
)

// DefaultMaxDepth bounds the tree walk when the caller does not say
// otherwise.
const DefaultMaxDepth = 15

// FilterInteractive keeps only elements a user could act on; structural
// elements still contribute their children.
const FilterInteractive = "interactive"

// Evaluator is the slice of the browser session the perception layer needs.
type Evaluator interface {
	Evaluate(ctx context.Context, tabID int, script string, args ...any) (any, error)
}

// Reader builds textual page snapshots with stable ref ids.
type Reader struct {
	ev   Evaluator
	refs *Refs
}

func NewReader(ev Evaluator, refs *Refs) *Reader {
	return &Reader{ev: ev, refs: refs}
}

// ReadOptions scope one snapshot.
type ReadOptions struct {
	MaxDepth int
	Filter   string
	StartRef string // re-inspect the subtree rooted at an already-tagged element
}

// Read walks the tab's document pre-order and returns one line per surfaced
// element: `<indent><ref> <role>[: "name"]`. Elements already carrying a ref
// keep it; only newly discovered elements are assigned fresh ids, so
// re-reading an unchanged page yields identical refs.
func (r *Reader) Read(ctx context.Context, tabID int, opts ReadOptions) (string, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	val, err := r.ev.Evaluate(ctx, tabID, readPageScript, map[string]any{
		"start":    r.refs.peek(tabID),
		"maxDepth": opts.MaxDepth,
		"filter":   opts.Filter,
		"startRef": opts.StartRef,
	})
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	var out struct {
		Error     string `json:"error"`
		Text      string `json:"text"`
		Allocated int    `json:"allocated"`
	}
	if err := decode(val, &out); err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	if out.Error == "start_ref_not_found" {
		return "", fmt.Errorf("start ref %s: %w", opts.StartRef, browser.ErrElementNotFound)
	}
	r.refs.advance(tabID, out.Allocated)
	if strings.TrimSpace(out.Text) == "" {
		return "(page is empty)", nil
	}
	return out.Text, nil
}

// PageText returns the tab's full visible text.
func (r *Reader) PageText(ctx context.Context, tabID int) (string, error) {
	val, err := r.ev.Evaluate(ctx, tabID, `() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", fmt.Errorf("page text: %w", err)
	}
	text, _ := val.(string)
	return text, nil
}

// decode round-trips an Evaluate result through JSON into a typed struct.
func decode(val any, into any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

// The page walk runs entirely in one Evaluate call. It receives the next
// unallocated ordinal and reports back how many ids it consumed; the Go side
// owns the counter.
const readPageScript = `(opts) => {
	const ATTR = "` + browser.RefAttribute + `";
	let next = opts.start;
	let allocated = 0;

	const tagRoles = {
		a: "link", button: "button", input: "textbox", textarea: "textbox",
		select: "combobox", img: "image",
		h1: "heading", h2: "heading", h3: "heading", h4: "heading", h5: "heading", h6: "heading",
		nav: "navigation", main: "main", form: "form"
	};
	const interactiveTags = new Set(["a", "button", "input", "select", "textarea"]);

	function isHidden(el) {
		const s = window.getComputedStyle(el);
		return s.display === "none" || s.visibility === "hidden";
	}

	function isInteractive(el) {
		const tag = el.tagName.toLowerCase();
		if (interactiveTags.has(tag)) return true;
		if (el.onclick != null) return true;
		if ((el.getAttribute("role") || "") === "button") return true;
		if (el.hasAttribute("tabindex")) return true;
		return false;
	}

	function roleOf(el) {
		const explicit = el.getAttribute("role");
		if (explicit) return explicit;
		return tagRoles[el.tagName.toLowerCase()] || "generic";
	}

	function nameOf(el) {
		let n = el.getAttribute("aria-label") || el.getAttribute("alt") || el.getAttribute("title") || "";
		if (!n) {
			n = (el.textContent || "").replace(/\s+/g, " ").trim();
		}
		return n.slice(0, 50);
	}

	function ensureRef(el) {
		let r = el.getAttribute(ATTR);
		if (!r) {
			r = "ref_" + next;
			next++;
			allocated++;
			el.setAttribute(ATTR, r);
		}
		return r;
	}

	let root = document.body;
	if (opts.startRef) {
		root = document.querySelector('[' + ATTR + '="' + opts.startRef + '"]');
		if (!root) return {error: "start_ref_not_found"};
	}
	if (!root) return {text: "", allocated: 0};

	const lines = [];
	function visit(el, depth, indent) {
		if (depth > opts.maxDepth) return;
		if (el.nodeType !== Node.ELEMENT_NODE) return;
		if (isHidden(el)) return;

		let childIndent = indent;
		const surfaced = opts.filter !== "interactive" || isInteractive(el);
		if (surfaced) {
			const ref = ensureRef(el);
			const name = nameOf(el);
			let line = "  ".repeat(indent) + ref + " " + roleOf(el);
			if (name) line += ': "' + name + '"';
			lines.push(line);
			childIndent = indent + 1;
		}
		for (const child of el.children) {
			visit(child, depth + 1, childIndent);
		}
	}
	visit(root, 0, 0);
	return {text: lines.join("\n"), allocated: allocated};
}`
