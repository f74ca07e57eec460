package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/stepdrive/browserpilot/internal/browser"
)

// MaxFindResults caps one find call. Traversal short-circuits once reached.
const MaxFindResults = 20

// Element is one finder match. The coordinates describe the current layout
// only; they must not be cached across navigations or resizes.
type Element struct {
	Ref     string  `json:"ref"`
	Tag     string  `json:"tag"`
	Text    string  `json:"text"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Finder locates visible elements by case-insensitive substring match,
// independent of the accessibility tree.
type Finder struct {
	ev   Evaluator
	refs *Refs
}

func NewFinder(ev Evaluator, refs *Refs) *Finder {
	return &Finder{ev: ev, refs: refs}
}

// Find matches the query against text content, aria-label, placeholder,
// title, id and class list in document pre-order, stopping at MaxFindResults.
// Matches without a ref id get one from the session allocator.
func (f *Finder) Find(ctx context.Context, tabID int, query string) ([]Element, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("find query must not be empty")
	}
	val, err := f.ev.Evaluate(ctx, tabID, findScript, map[string]any{
		"query": query,
		"limit": MaxFindResults,
		"start": f.refs.peek(tabID),
	})
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", query, err)
	}

	var out struct {
		Matches   []Element `json:"matches"`
		Allocated int       `json:"allocated"`
	}
	if err := decode(val, &out); err != nil {
		return nil, fmt.Errorf("find %q: %w", query, err)
	}
	f.refs.advance(tabID, out.Allocated)
	return out.Matches, nil
}

const findScript = `(opts) => {
	const ATTR = "` + browser.RefAttribute + `";
	const q = opts.query.toLowerCase();
	let next = opts.start;
	let allocated = 0;
	const matches = [];

	function classList(el) {
		// svg elements expose SVGAnimatedString; never assume a plain string.
		const c = el.className;
		if (typeof c === "string") return c;
		if (c && typeof c.baseVal === "string") return c.baseVal;
		return "";
	}

	const all = document.body ? document.body.querySelectorAll("*") : [];
	for (const el of all) {
		if (matches.length >= opts.limit) break;

		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) continue;
		const style = window.getComputedStyle(el);
		if (style.display === "none" || style.visibility === "hidden") continue;

		const fields = [
			el.textContent || "",
			el.getAttribute("aria-label") || "",
			el.getAttribute("placeholder") || "",
			el.getAttribute("title") || "",
			el.id || "",
			classList(el)
		];
		if (!fields.some(v => String(v).toLowerCase().includes(q))) continue;

		let ref = el.getAttribute(ATTR);
		if (!ref) {
			ref = "found_" + next;
			next++;
			allocated++;
			el.setAttribute(ATTR, ref);
		}
		matches.push({
			ref: ref,
			tag: el.tagName.toLowerCase(),
			text: (el.textContent || "").replace(/\s+/g, " ").trim().slice(0, 80),
			center_x: rect.x + rect.width / 2,
			center_y: rect.y + rect.height / 2,
			x: rect.x, y: rect.y, width: rect.width, height: rect.height
		});
	}
	return {matches: matches, allocated: allocated};
}`
