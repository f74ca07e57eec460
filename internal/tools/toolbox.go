package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stepdrive/browserpilot/internal/browser"
	"github.com/stepdrive/browserpilot/internal/config"
	"github.com/stepdrive/browserpilot/internal/llm"
	"github.com/stepdrive/browserpilot/internal/snapshot"
)

// ErrUnknownTool marks a tool name outside the fixed set. The agent loop
// reports it to the model instead of aborting the task.
var ErrUnknownTool = errors.New("unknown tool")

// Result is one tool invocation's outcome. Screenshot is set only by tools
// whose contract ends with a fresh capture.
type Result struct {
	Text       string
	Screenshot *browser.Screenshot
}

// Dispatcher routes tool calls to the session and the perception layer. The
// tool set is fixed; inputs are validated before any browser state changes.
type Dispatcher struct {
	ctrl   browser.Controller
	reader *snapshot.Reader
	finder *snapshot.Finder
	cfg    config.Config
	logger zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(ctrl browser.Controller, reader *snapshot.Reader, finder *snapshot.Finder, cfg config.Config, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ctrl:   ctrl,
		reader: reader,
		finder: finder,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Definitions returns the tool declarations sent with every model request.
func Definitions() []llm.Tool {
	return []llm.Tool{
		newTool("computer",
			"Interact with the page through input primitives. Provide either a single action or an ordered actions list; every call returns a fresh screenshot of the final state. Actions: screenshot, left_click, right_click, double_click (coordinate [x,y] or ref), type (text), key (e.g. ctrl+a, Enter), wait (seconds), scroll (coordinate, scroll_direction, scroll_amount or \"max\"), left_click_drag (start_coordinate, end_coordinate), scroll_to (ref).",
			schema{
				"tab_id":  integer("tab to act on"),
				"action":  object("single action to perform"),
				"actions": array("ordered sequence of actions, executed atomically in order"),
			}, []string{"tab_id"}),
		newTool("read_page",
			"Read the page as an indented accessibility tree. Each line is a stable ref id plus role and name; use the refs with computer clicks, form_input and scroll_to.",
			schema{
				"tab_id":    integer("tab to read"),
				"filter":    str("\"interactive\" to list only interactive elements"),
				"max_depth": integer("tree depth limit, default 15"),
				"start_ref": str("read only the subtree under this ref"),
			}, []string{"tab_id"}),
		newTool("find",
			"Find elements whose text, label, placeholder, title, id or class contains the query (case-insensitive). Returns up to 20 matches with refs and viewport geometry.",
			schema{
				"tab_id": integer("tab to search"),
				"query":  str("substring to look for"),
			}, []string{"tab_id", "query"}),
		newTool("get_page_text",
			"Return the full visible text of the page, without structure or refs.",
			schema{"tab_id": integer("tab to read")}, []string{"tab_id"}),
		newTool("form_input",
			"Set a form control's value directly by ref: text inputs and textareas get the value, checkboxes and radios are checked or unchecked, selects pick the option. Fires the events the page listens for.",
			schema{
				"tab_id": integer("tab owning the control"),
				"ref":    str("ref id of the control"),
				"value":  str("value to set; \"true\"/\"false\" for checkboxes"),
			}, []string{"tab_id", "ref", "value"}),
		newTool("navigate",
			"Open a URL on a tab, or go \"back\"/\"forward\" in its history. A bare domain gets https:// prepended. Returns a screenshot taken after the page settles.",
			schema{
				"tab_id": integer("tab to navigate"),
				"url":    str("url, or the literal back/forward"),
			}, []string{"tab_id", "url"}),
		newTool("tabs_create",
			"Open a new tab, optionally at a URL, and return its id and a screenshot.",
			schema{"url": str("url to open, may be empty")}, nil),
		newTool("tabs_context",
			"List all open tabs with id, title and url.",
			schema{}, nil),
	}
}

// Execute runs one tool call. Input errors and browser errors both come back
// as ordinary errors; the caller decides how to surface them to the model.
func (d *Dispatcher) Execute(ctx context.Context, name string, input json.RawMessage) (Result, error) {
	start := time.Now()
	res, err := d.execute(ctx, name, input)
	ev := d.logger.Debug().Str("tool", name).Dur("took", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("tool failed")
	} else {
		ev.Msg("tool done")
	}
	return res, err
}

func (d *Dispatcher) execute(ctx context.Context, name string, input json.RawMessage) (Result, error) {
	switch name {
	case "computer":
		return d.computer(ctx, input)
	case "read_page":
		return d.readPage(ctx, input)
	case "find":
		return d.find(ctx, input)
	case "get_page_text":
		return d.pageText(ctx, input)
	case "form_input":
		return d.formInput(ctx, input)
	case "navigate":
		return d.navigate(ctx, input)
	case "tabs_create":
		return d.tabsCreate(ctx, input)
	case "tabs_context":
		return d.tabsContext(ctx)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

type computerInput struct {
	TabID   int               `json:"tab_id"`
	Action  json.RawMessage   `json:"action"`
	Actions []json.RawMessage `json:"actions"`
}

// computer validates the whole batch before touching the page, executes the
// actions in order, and always finishes with a fresh screenshot.
func (d *Dispatcher) computer(ctx context.Context, input json.RawMessage) (Result, error) {
	var in computerInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("computer: %w", err)
	}
	single := len(in.Action) > 0 && string(in.Action) != "null"
	if single == (len(in.Actions) > 0) {
		return Result{}, fmt.Errorf("computer: exactly one of action or actions is required")
	}
	raws := in.Actions
	if single {
		raws = []json.RawMessage{in.Action}
	}

	actions := make([]Action, 0, len(raws))
	for i, raw := range raws {
		a, err := ParseAction(raw)
		if err != nil {
			return Result{}, fmt.Errorf("computer: action %d: %w", i+1, err)
		}
		actions = append(actions, a)
	}

	done := make([]string, 0, len(actions))
	for i, a := range actions {
		if err := d.apply(ctx, in.TabID, a); err != nil {
			return Result{}, fmt.Errorf("computer: action %d (%s): %w", i+1, a.kind(), err)
		}
		done = append(done, a.kind())
	}

	shot, err := d.ctrl.Screenshot(ctx, in.TabID)
	if err != nil {
		return Result{}, fmt.Errorf("computer: screenshot: %w", err)
	}
	return Result{
		Text:       fmt.Sprintf("Executed %d action(s): %s", len(done), strings.Join(done, ", ")),
		Screenshot: &shot,
	}, nil
}

func (d *Dispatcher) apply(ctx context.Context, tabID int, a Action) error {
	switch act := a.(type) {
	case ScreenshotAction:
		// The batch's trailing capture is the screenshot.
		return nil
	case ClickAction:
		if act.Ref != "" {
			return d.ctrl.ClickRef(ctx, tabID, act.Ref, act.Button, act.Count)
		}
		return d.ctrl.Click(ctx, tabID, act.Coordinate.X, act.Coordinate.Y, act.Button, act.Count)
	case TypeAction:
		return d.ctrl.TypeText(ctx, tabID, act.Text)
	case KeyAction:
		return d.ctrl.PressKey(ctx, tabID, act.Key)
	case WaitAction:
		return d.sleep(ctx, act.Duration)
	case ScrollAction:
		return d.ctrl.Scroll(ctx, tabID, act.Coordinate.X, act.Coordinate.Y, act.Direction, act.Amount, act.ToEnd)
	case DragAction:
		return d.ctrl.Drag(ctx, tabID, act.Start.X, act.Start.Y, act.End.X, act.End.Y)
	case ScrollToAction:
		return d.ctrl.ScrollToRef(ctx, tabID, act.Ref)
	default:
		return fmt.Errorf("unhandled action %s", a.kind())
	}
}

func (d *Dispatcher) readPage(ctx context.Context, input json.RawMessage) (Result, error) {
	var in struct {
		TabID    int    `json:"tab_id"`
		Filter   string `json:"filter"`
		MaxDepth int    `json:"max_depth"`
		StartRef string `json:"start_ref"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("read_page: %w", err)
	}
	tree, err := d.reader.Read(ctx, in.TabID, snapshot.ReadOptions{
		MaxDepth: in.MaxDepth,
		Filter:   in.Filter,
		StartRef: in.StartRef,
	})
	if err != nil {
		return Result{}, fmt.Errorf("read_page: %w", err)
	}
	return Result{Text: tree}, nil
}

func (d *Dispatcher) find(ctx context.Context, input json.RawMessage) (Result, error) {
	var in struct {
		TabID int    `json:"tab_id"`
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("find: %w", err)
	}
	matches, err := d.finder.Find(ctx, in.TabID, in.Query)
	if err != nil {
		return Result{}, fmt.Errorf("find: %w", err)
	}
	if len(matches) == 0 {
		return Result{Text: fmt.Sprintf("No elements match %q.", in.Query)}, nil
	}
	body, err := json.MarshalIndent(matches, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("find: %w", err)
	}
	return Result{Text: fmt.Sprintf("%d element(s) match %q:\n%s", len(matches), in.Query, body)}, nil
}

func (d *Dispatcher) pageText(ctx context.Context, input json.RawMessage) (Result, error) {
	var in struct {
		TabID int `json:"tab_id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("get_page_text: %w", err)
	}
	text, err := d.reader.PageText(ctx, in.TabID)
	if err != nil {
		return Result{}, fmt.Errorf("get_page_text: %w", err)
	}
	return Result{Text: text}, nil
}

// formInputScript sets a control's value the way scripts on the page expect:
// checked for checkboxes and radios, value for everything else, then input
// and change events so framework bindings pick the change up.
const formInputScript = `(opts) => {
	const el = document.querySelector('[` + browser.RefAttribute + `="' + opts.ref + '"]');
	if (!el) return {error: 'not_found'};
	const tag = el.tagName.toLowerCase();
	const type = (el.getAttribute('type') || '').toLowerCase();
	if (tag === 'input' && (type === 'checkbox' || type === 'radio')) {
		el.checked = opts.value === true || opts.value === 'true';
	} else if (tag === 'select') {
		el.value = String(opts.value);
		if (el.value !== String(opts.value)) return {error: 'no_option'};
	} else {
		el.value = String(opts.value);
	}
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return {tag: tag};
}`

func (d *Dispatcher) formInput(ctx context.Context, input json.RawMessage) (Result, error) {
	var in struct {
		TabID int             `json:"tab_id"`
		Ref   string          `json:"ref"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("form_input: %w", err)
	}
	if in.Ref == "" {
		return Result{}, fmt.Errorf("form_input: ref is required")
	}
	if len(in.Value) == 0 {
		return Result{}, fmt.Errorf("form_input: value is required")
	}
	var value any
	if err := json.Unmarshal(in.Value, &value); err != nil {
		return Result{}, fmt.Errorf("form_input: %w", err)
	}

	val, err := d.ctrl.Evaluate(ctx, in.TabID, formInputScript, map[string]any{
		"ref":   in.Ref,
		"value": value,
	})
	if err != nil {
		return Result{}, fmt.Errorf("form_input: %w", err)
	}
	out, _ := val.(map[string]any)
	switch out["error"] {
	case "not_found":
		return Result{}, fmt.Errorf("form_input: ref %s: %w", in.Ref, browser.ErrElementNotFound)
	case "no_option":
		return Result{}, fmt.Errorf("form_input: ref %s: no option with value %v", in.Ref, value)
	}
	return Result{Text: fmt.Sprintf("Set %s to %v.", in.Ref, value)}, nil
}

func (d *Dispatcher) navigate(ctx context.Context, input json.RawMessage) (Result, error) {
	var in struct {
		TabID int    `json:"tab_id"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("navigate: %w", err)
	}
	if strings.TrimSpace(in.URL) == "" {
		return Result{}, fmt.Errorf("navigate: url is required")
	}
	if err := d.ctrl.Navigate(ctx, in.TabID, in.URL); err != nil {
		return Result{}, err
	}
	// Give late-loading pages a moment to settle before the capture.
	if err := d.sleep(ctx, d.cfg.PostNavigationWait); err != nil {
		return Result{}, err
	}
	shot, err := d.ctrl.Screenshot(ctx, in.TabID)
	if err != nil {
		return Result{}, fmt.Errorf("navigate: screenshot: %w", err)
	}
	return Result{Text: fmt.Sprintf("Navigated tab %d to %s.", in.TabID, in.URL), Screenshot: &shot}, nil
}

func (d *Dispatcher) tabsCreate(ctx context.Context, input json.RawMessage) (Result, error) {
	var in struct {
		URL string `json:"url"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return Result{}, fmt.Errorf("tabs_create: %w", err)
		}
	}
	t, err := d.ctrl.CreateTab(ctx, in.URL)
	if err != nil {
		return Result{}, fmt.Errorf("tabs_create: %w", err)
	}
	if in.URL != "" {
		if err := d.sleep(ctx, d.cfg.PostNavigationWait); err != nil {
			return Result{}, err
		}
	}
	shot, err := d.ctrl.Screenshot(ctx, t.ID)
	if err != nil {
		return Result{}, fmt.Errorf("tabs_create: screenshot: %w", err)
	}
	return Result{Text: fmt.Sprintf("Created tab %d (%s).", t.ID, t.URL), Screenshot: &shot}, nil
}

func (d *Dispatcher) tabsContext(ctx context.Context) (Result, error) {
	tabs, err := d.ctrl.TabsContext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("tabs_context: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d open tab(s):\n", len(tabs))
	for _, t := range tabs {
		fmt.Fprintf(&b, "tab %d: %q %s\n", t.ID, t.Title, t.URL)
	}
	return Result{Text: strings.TrimRight(b.String(), "\n")}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Schema helpers.
type schema map[string]any

func newTool(name, desc string, props schema, required []string) llm.Tool {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return llm.Tool{Name: name, Description: desc, InputSchema: s}
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func object(desc string) map[string]any {
	return map[string]any{"type": "object", "description": desc}
}

func array(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": desc}
}
