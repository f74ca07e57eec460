// Package browser owns the browser session: the set of tabs, stable tab ids,
// and the input/navigation primitives the dispatcher drives. Elements are
// always addressed through ref ids resolved at the moment of use; no live
// element handle ever crosses this package boundary.
package browser

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/stepdrive/browserpilot/internal/config"
)

const (
	// RefAttribute is the DOM attribute carrying an element's ref id.
	RefAttribute = "data-bp-ref"

	// One user-facing scroll unit in wheel pixels.
	scrollUnitPixels = 100
	// Delta used for "scroll to the end in this direction".
	maxScrollDelta = 20000
)

// Tab describes one page owned by the session. Ids are monotonic from 1 and
// never reused; the session does not track which tab is foreground.
type Tab struct {
	ID    int    `json:"tab_id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Screenshot is one viewport capture.
type Screenshot struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
	Timestamp time.Time
}

// Controller exposes the session's primitives to the dispatcher and the
// perception layer.
type Controller interface {
	Close() error
	CreateTab(ctx context.Context, url string) (Tab, error)
	TabsContext(ctx context.Context) ([]Tab, error)
	Screenshot(ctx context.Context, tabID int) (Screenshot, error)
	Click(ctx context.Context, tabID int, x, y float64, button string, clickCount int) error
	ClickRef(ctx context.Context, tabID int, ref, button string, clickCount int) error
	TypeText(ctx context.Context, tabID int, text string) error
	PressKey(ctx context.Context, tabID int, key string) error
	Scroll(ctx context.Context, tabID int, x, y float64, direction string, amount int, toEnd bool) error
	Drag(ctx context.Context, tabID int, startX, startY, endX, endY float64) error
	Navigate(ctx context.Context, tabID int, target string) error
	ScrollToRef(ctx context.Context, tabID int, ref string) error
	Evaluate(ctx context.Context, tabID int, script string, args ...any) (any, error)
}

type session struct {
	cfg    config.Config
	logger zerolog.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext

	mu        sync.Mutex
	tabs      map[int]*tab
	nextTabID int
	closed    bool
}

// tab pairs a live page with its per-tab interaction lock. Any
// input-simulating operation holds the lock for its duration, including on
// failure.
type tab struct {
	id   int
	page playwright.Page
	lock sync.Mutex
}

// Start launches the browser and opens tab 1.
func Start(ctx context.Context, cfg config.Config, logger zerolog.Logger) (Controller, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		},
	}
	if cfg.StorageStatePath != "" {
		if _, err := os.Stat(cfg.StorageStatePath); err == nil {
			opts.StorageStatePath = playwright.String(cfg.StorageStatePath)
		}
	}
	bctx, err := b.NewContext(opts)
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new context: %w", err)
	}

	s := &session{
		cfg:       cfg,
		logger:    logger,
		pw:        pw,
		browser:   b,
		bctx:      bctx,
		tabs:      map[int]*tab{},
		nextTabID: 1,
	}
	if _, err := s.CreateTab(ctx, ""); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.bctx != nil {
		_ = s.bctx.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pw != nil {
		return s.pw.Stop()
	}
	return nil
}

func (s *session) CreateTab(ctx context.Context, url string) (Tab, error) {
	if err := ctx.Err(); err != nil {
		return Tab{}, err
	}
	s.mu.Lock()
	if s.closed || s.bctx == nil {
		s.mu.Unlock()
		return Tab{}, ErrNotInitialized
	}
	id := s.nextTabID
	s.nextTabID++
	s.mu.Unlock()

	page, err := s.bctx.NewPage()
	if err != nil {
		return Tab{}, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(s.cfg.NavigationTimeout.Milliseconds()))

	t := &tab{id: id, page: page}
	s.mu.Lock()
	s.tabs[id] = t
	s.mu.Unlock()

	if url != "" {
		if err := s.Navigate(ctx, id, url); err != nil {
			// The tab exists and keeps its id even when the first navigation
			// fails; the caller can still address it.
			title, _ := page.Title()
			return Tab{ID: id, URL: page.URL(), Title: title}, fmt.Errorf("tab %d: %w", id, err)
		}
	}
	s.logger.Debug().Int("tab", id).Str("url", url).Msg("tab created")
	title, _ := page.Title()
	return Tab{ID: id, URL: page.URL(), Title: title}, nil
}

func (s *session) TabsContext(ctx context.Context) ([]Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	ids := make([]int, 0, len(s.tabs))
	for id := range s.tabs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Ints(ids)

	out := make([]Tab, 0, len(ids))
	for _, id := range ids {
		t, err := s.tab(id)
		if err != nil {
			return nil, err
		}
		title, _ := t.page.Title()
		out = append(out, Tab{ID: id, URL: t.page.URL(), Title: title})
	}
	return out, nil
}

func (s *session) Screenshot(ctx context.Context, tabID int) (Screenshot, error) {
	t, err := s.tab(tabID)
	if err != nil {
		return Screenshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Screenshot{}, err
	}
	data, err := t.page.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypeJpeg,
		Quality: playwright.Int(s.cfg.ScreenshotQuality),
	})
	if err != nil {
		return Screenshot{}, fmt.Errorf("screenshot tab %d: %w", tabID, err)
	}
	return Screenshot{
		Data:      data,
		MediaType: "image/jpeg",
		Width:     s.cfg.ViewportWidth,
		Height:    s.cfg.ViewportHeight,
		Timestamp: time.Now(),
	}, nil
}

func (s *session) Click(ctx context.Context, tabID int, x, y float64, button string, clickCount int) error {
	t, err := s.tab(tabID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.page.Mouse().Click(x, y, playwright.MouseClickOptions{
		Button:     mouseButton(button),
		ClickCount: playwright.Int(normalizeClickCount(clickCount)),
	})
}

func (s *session) ClickRef(ctx context.Context, tabID int, ref, button string, clickCount int) error {
	t, err := s.tab(tabID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	x, y, err := s.refCenter(t, ref)
	if err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.page.Mouse().Click(x, y, playwright.MouseClickOptions{
		Button:     mouseButton(button),
		ClickCount: playwright.Int(normalizeClickCount(clickCount)),
	})
}

// refCenter resolves a ref id to the current center of its bounding box. The
// box is measured at call time, never cached.
func (s *session) refCenter(t *tab, ref string) (float64, float64, error) {
	script := `(ref) => {
		const el = document.querySelector('[` + RefAttribute + `="' + ref + '"]');
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	}`
	val, err := t.page.Evaluate(script, ref)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve ref %s: %w", ref, err)
	}
	box, ok := val.(map[string]any)
	if !ok || box == nil {
		return 0, 0, fmt.Errorf("ref %s: %w", ref, ErrElementNotFound)
	}
	w, _ := box["width"].(float64)
	h, _ := box["height"].(float64)
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("ref %s: %w", ref, ErrElementNotVisible)
	}
	x, _ := box["x"].(float64)
	y, _ := box["y"].(float64)
	return x + w/2, y + h/2, nil
}

func (s *session) TypeText(ctx context.Context, tabID int, text string) error {
	t, err := s.tab(tabID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.page.Keyboard().Type(text)
}

// PressKey normalizes the key name and presses the chord: modifiers go down
// in listed order, the main key is pressed, then modifiers are released in
// reverse order.
func (s *session) PressKey(ctx context.Context, tabID int, key string) error {
	t, err := s.tab(tabID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	mods, main, err := normalizeKeyChord(key)
	if err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	kb := t.page.Keyboard()
	for _, m := range mods {
		if err := kb.Down(m); err != nil {
			return fmt.Errorf("press %s: %w", key, err)
		}
	}
	if err := kb.Press(main); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	for i := len(mods) - 1; i >= 0; i-- {
		if err := kb.Up(mods[i]); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
	}
	return nil
}

func (s *session) Scroll(ctx context.Context, tabID int, x, y float64, direction string, amount int, toEnd bool) error {
	t, err := s.tab(tabID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dx, dy, err := scrollDelta(direction, amount, toEnd)
	if err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if err := t.page.Mouse().Move(x, y); err != nil {
		return err
	}
	return t.page.Mouse().Wheel(dx, dy)
}

// scrollDelta converts the user-facing scroll unit into wheel pixels. toEnd
// maps to a large fixed delta, effectively "to the end in this direction".
func scrollDelta(direction string, amount int, toEnd bool) (float64, float64, error) {
	px := float64(amount) * scrollUnitPixels
	if toEnd {
		px = maxScrollDelta
	}
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		return 0, -px, nil
	case "down", "":
		return 0, px, nil
	case "left":
		return -px, 0, nil
	case "right":
		return px, 0, nil
	default:
		return 0, 0, fmt.Errorf("unknown scroll direction %q", direction)
	}
}

func (s *session) Drag(ctx context.Context, tabID int, startX, startY, endX, endY float64) error {
	t, err := s.tab(tabID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	m := t.page.Mouse()
	if err := m.Move(startX, startY); err != nil {
		return err
	}
	if err := m.Down(); err != nil {
		return err
	}
	if err := m.Move(endX, endY, playwright.MouseMoveOptions{Steps: playwright.Int(12)}); err != nil {
		_ = m.Up()
		return err
	}
	return m.Up()
}

// Navigate opens a URL on the tab. The literals "back" and "forward" route to
// history navigation; any other target missing an http(s) scheme gets
// https:// prepended.
func (s *session) Navigate(ctx context.Context, tabID int, target string) error {
	t, err := s.tab(tabID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()

	switch strings.ToLower(strings.TrimSpace(target)) {
	case "back":
		if _, err := t.page.GoBack(); err != nil {
			return fmt.Errorf("%w: back: %v", ErrNavigation, err)
		}
		return nil
	case "forward":
		if _, err := t.page.GoForward(); err != nil {
			return fmt.Errorf("%w: forward: %v", ErrNavigation, err)
		}
		return nil
	}

	url := normalizeURL(target)
	_, err = t.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(s.cfg.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	s.logger.Debug().Int("tab", tabID).Str("url", url).Msg("navigated")
	return nil
}

func (s *session) ScrollToRef(ctx context.Context, tabID int, ref string) error {
	t, err := s.tab(tabID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	script := `(ref) => {
		const el = document.querySelector('[` + RefAttribute + `="' + ref + '"]');
		if (!el) return false;
		el.scrollIntoView({block: 'center', inline: 'center'});
		return true;
	}`
	val, err := t.page.Evaluate(script, ref)
	if err != nil {
		return fmt.Errorf("scroll to ref %s: %w", ref, err)
	}
	if found, _ := val.(bool); !found {
		return fmt.Errorf("ref %s: %w", ref, ErrElementNotFound)
	}
	return nil
}

// Evaluate runs a script in the tab's page and returns its structured result.
// This is the perception layer's only way into the document.
func (s *session) Evaluate(ctx context.Context, tabID int, script string, args ...any) (any, error) {
	t, err := s.tab(tabID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch len(args) {
	case 0:
		return t.page.Evaluate(script)
	case 1:
		return t.page.Evaluate(script, args[0])
	default:
		return t.page.Evaluate(script, args)
	}
}

func (s *session) tab(id int) (*tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNotInitialized
	}
	t, ok := s.tabs[id]
	if !ok {
		return nil, fmt.Errorf("tab %d: %w", id, ErrTabNotFound)
	}
	return t, nil
}

func normalizeURL(target string) string {
	t := strings.TrimSpace(target)
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return t
	}
	return "https://" + t
}

func mouseButton(name string) *playwright.MouseButton {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "right":
		return playwright.MouseButtonRight
	case "middle":
		return playwright.MouseButtonMiddle
	default:
		return playwright.MouseButtonLeft
	}
}

func normalizeClickCount(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
