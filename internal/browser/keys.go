package browser

import (
	"fmt"
	"strings"
)

// Case-insensitive aliases for the main key of a chord. Values are the
// driver's canonical key names.
var keyAliases = map[string]string{
	"return":     "Enter",
	"enter":      "Enter",
	"esc":        "Escape",
	"escape":     "Escape",
	"tab":        "Tab",
	"space":      "Space",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"del":        "Delete",
	"up":         "ArrowUp",
	"down":       "ArrowDown",
	"left":       "ArrowLeft",
	"right":      "ArrowRight",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"arrowright": "ArrowRight",
	"pageup":     "PageUp",
	"page_up":    "PageUp",
	"pagedown":   "PageDown",
	"page_down":  "PageDown",
	"home":       "Home",
	"end":        "End",
	"insert":     "Insert",
}

var modifierAliases = map[string]string{
	"cmd":     "Meta",
	"command": "Meta",
	"meta":    "Meta",
	"super":   "Meta",
	"ctrl":    "Control",
	"control": "Control",
	"alt":     "Alt",
	"option":  "Alt",
	"shift":   "Shift",
}

// normalizeKeyChord splits a `+`-joined combination like "ctrl+shift+t" into
// its modifiers (in listed order) and the canonical main key. The modifier
// order is preserved so the caller can press them down in order and release
// in reverse.
func normalizeKeyChord(combo string) (modifiers []string, key string, err error) {
	parts := strings.Split(combo, "+")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) == 0 {
		return nil, "", fmt.Errorf("empty key")
	}

	for _, p := range cleaned[:len(cleaned)-1] {
		mod, ok := modifierAliases[strings.ToLower(p)]
		if !ok {
			return nil, "", fmt.Errorf("unknown modifier %q in %q", p, combo)
		}
		modifiers = append(modifiers, mod)
	}
	return modifiers, normalizeKeyName(cleaned[len(cleaned)-1]), nil
}

func normalizeKeyName(name string) string {
	if canonical, ok := keyAliases[strings.ToLower(name)]; ok {
		return canonical
	}
	// Single printable characters pass through untouched ("a", "/", "2").
	if len(name) == 1 {
		return name
	}
	// Trailing modifiers used as the main key ("key": "shift") still resolve.
	if mod, ok := modifierAliases[strings.ToLower(name)]; ok {
		return mod
	}
	// Function keys and anything else get a leading capital (f5 -> F5).
	return strings.ToUpper(name[:1]) + name[1:]
}
