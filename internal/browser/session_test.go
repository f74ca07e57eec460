package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepdrive/browserpilot/internal/config"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"example.com", "https://example.com"},
		{"  example.com/path?q=1 ", "https://example.com/path?q=1"},
		{"https://example.com", "https://example.com"},
		{"http://insecure.test", "http://insecure.test"},
		{"HTTPS://CAPS.test", "HTTPS://CAPS.test"},
		{"localhost:8080", "https://localhost:8080"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeURL(tc.in), "input %q", tc.in)
	}
}

func TestScrollDelta(t *testing.T) {
	dx, dy, err := scrollDelta("down", 3, false)
	require.NoError(t, err)
	assert.Equal(t, 0.0, dx)
	assert.Equal(t, float64(3*scrollUnitPixels), dy)

	dx, dy, err = scrollDelta("up", 2, false)
	require.NoError(t, err)
	assert.Equal(t, float64(-2*scrollUnitPixels), dy)
	assert.Equal(t, 0.0, dx)

	dx, _, err = scrollDelta("left", 1, false)
	require.NoError(t, err)
	assert.Equal(t, float64(-scrollUnitPixels), dx)

	// "max" overrides the numeric amount entirely.
	_, dy, err = scrollDelta("down", 3, true)
	require.NoError(t, err)
	assert.Equal(t, float64(maxScrollDelta), dy)

	_, dy, err = scrollDelta("up", 0, true)
	require.NoError(t, err)
	assert.Equal(t, float64(-maxScrollDelta), dy)

	// Empty direction defaults to down.
	_, dy, err = scrollDelta("", 1, false)
	require.NoError(t, err)
	assert.Equal(t, float64(scrollUnitPixels), dy)

	_, _, err = scrollDelta("sideways", 1, false)
	require.Error(t, err)
}

func TestMouseButton(t *testing.T) {
	assert.Equal(t, playwright.MouseButtonLeft, mouseButton("left"))
	assert.Equal(t, playwright.MouseButtonRight, mouseButton("right"))
	assert.Equal(t, playwright.MouseButtonMiddle, mouseButton("MIDDLE"))
	// Unknown names fall back to left.
	assert.Equal(t, playwright.MouseButtonLeft, mouseButton("fourth"))
}

func TestNormalizeClickCount(t *testing.T) {
	assert.Equal(t, 1, normalizeClickCount(0))
	assert.Equal(t, 1, normalizeClickCount(-3))
	assert.Equal(t, 2, normalizeClickCount(2))
}

// stubPage implements just the page surface CreateTab touches; everything
// else panics via the embedded interface.
type stubPage struct {
	playwright.Page
	gotoErr error
	url     string
}

func (p *stubPage) SetDefaultTimeout(timeout float64) {}
func (p *stubPage) URL() string                       { return p.url }
func (p *stubPage) Title() (string, error)            { return "", nil }

func (p *stubPage) Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error) {
	if p.gotoErr != nil {
		return nil, p.gotoErr
	}
	p.url = url
	return nil, nil
}

type stubBrowserContext struct {
	playwright.BrowserContext
	page *stubPage
}

func (c *stubBrowserContext) NewPage() (playwright.Page, error) { return c.page, nil }

func TestCreateTabKeepsIDWhenNavigationFails(t *testing.T) {
	page := &stubPage{gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED"), url: "about:blank"}
	s := &session{
		cfg:       config.Default(),
		logger:    zerolog.Nop(),
		bctx:      &stubBrowserContext{page: page},
		tabs:      map[int]*tab{},
		nextTabID: 1,
	}

	created, err := s.CreateTab(context.Background(), "nope.invalid")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNavigation)
	assert.Equal(t, 1, created.ID, "the allocated id comes back with the error")

	// The tab stays addressable.
	tabs, err := s.TabsContext(context.Background())
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, 1, tabs[0].ID)
}
