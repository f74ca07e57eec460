package browser

import "errors"

// Error taxonomy surfaced to the dispatcher. Callers match with errors.Is;
// the error text is what ultimately reaches the model as a tool result.
var (
	// ErrNotInitialized is returned when an operation needs a live browser
	// before Start or after Close.
	ErrNotInitialized = errors.New("browser not initialized")

	// ErrTabNotFound is returned when a tab id has no backing page.
	ErrTabNotFound = errors.New("tab not found")

	// ErrElementNotFound is returned when a ref id no longer resolves to an
	// element in the document.
	ErrElementNotFound = errors.New("element not found")

	// ErrElementNotVisible is returned when a ref resolves but the element
	// has zero-area geometry, e.g. it is hidden or collapsed.
	ErrElementNotVisible = errors.New("element has no visible geometry")

	// ErrNavigation wraps driver-reported navigation failures and timeouts.
	ErrNavigation = errors.New("navigation failed")
)
