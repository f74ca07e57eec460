// Package tools maps model-issued tool calls onto browser operations: the
// closed action vocabulary of the computer tool, the static tool schema the
// model sees, and the dispatcher that executes both.
package tools

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxWait bounds a single wait action so a confused model cannot stall a
// task indefinitely.
const MaxWait = 30 * time.Second

// Point is a viewport coordinate pair.
type Point struct {
	X float64
	Y float64
}

// Action is the closed set of computer-tool primitives. Each variant carries
// exactly the fields it needs and is validated at parse time; ref resolution
// still happens at execution time.
type Action interface {
	kind() string
}

type ScreenshotAction struct{}

// ClickAction covers left_click, right_click and double_click. Exactly one
// of Coordinate or Ref is set.
type ClickAction struct {
	Name       string
	Button     string
	Count      int
	Coordinate *Point
	Ref        string
}

type TypeAction struct {
	Text string
}

type KeyAction struct {
	Key string
}

type WaitAction struct {
	Duration time.Duration
}

type ScrollAction struct {
	Coordinate Point
	Direction  string
	Amount     int
	ToEnd      bool
}

type DragAction struct {
	Start Point
	End   Point
}

type ScrollToAction struct {
	Ref string
}

func (ScreenshotAction) kind() string { return "screenshot" }
func (a ClickAction) kind() string    { return a.Name }
func (TypeAction) kind() string       { return "type" }
func (KeyAction) kind() string        { return "key" }
func (WaitAction) kind() string       { return "wait" }
func (ScrollAction) kind() string     { return "scroll" }
func (DragAction) kind() string       { return "left_click_drag" }
func (ScrollToAction) kind() string   { return "scroll_to" }

// rawAction is the wire shape; which fields are meaningful depends on the
// discriminant.
type rawAction struct {
	Action          string          `json:"action"`
	Coordinate      []float64       `json:"coordinate"`
	StartCoordinate []float64       `json:"start_coordinate"`
	EndCoordinate   []float64       `json:"end_coordinate"`
	Ref             string          `json:"ref"`
	Text            *string         `json:"text"`
	Key             string          `json:"key"`
	Duration        *float64        `json:"duration"` // seconds
	ScrollDirection string          `json:"scroll_direction"`
	ScrollAmount    json.RawMessage `json:"scroll_amount"` // number or "max"
}

// ParseAction decodes one action object, rejecting unknown discriminants and
// missing required fields.
func ParseAction(data json.RawMessage) (Action, error) {
	var raw rawAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	switch raw.Action {
	case "screenshot":
		return ScreenshotAction{}, nil

	case "left_click", "right_click", "double_click":
		return parseClick(raw)

	case "type":
		if raw.Text == nil {
			return nil, fmt.Errorf("type: text is required")
		}
		return TypeAction{Text: *raw.Text}, nil

	case "key":
		if raw.Key == "" {
			return nil, fmt.Errorf("key: key is required")
		}
		return KeyAction{Key: raw.Key}, nil

	case "wait":
		if raw.Duration == nil || *raw.Duration < 0 {
			return nil, fmt.Errorf("wait: non-negative duration is required")
		}
		d := time.Duration(*raw.Duration * float64(time.Second))
		if d > MaxWait {
			d = MaxWait
		}
		return WaitAction{Duration: d}, nil

	case "scroll":
		return parseScroll(raw)

	case "left_click_drag":
		start, err := parsePoint(raw.StartCoordinate, "left_click_drag", "start_coordinate")
		if err != nil {
			return nil, err
		}
		end, err := parsePoint(raw.EndCoordinate, "left_click_drag", "end_coordinate")
		if err != nil {
			return nil, err
		}
		return DragAction{Start: start, End: end}, nil

	case "scroll_to":
		if raw.Ref == "" {
			return nil, fmt.Errorf("scroll_to: ref is required")
		}
		return ScrollToAction{Ref: raw.Ref}, nil

	case "":
		return nil, fmt.Errorf("action discriminant is required")
	default:
		return nil, fmt.Errorf("unknown action %q", raw.Action)
	}
}

func parseClick(raw rawAction) (Action, error) {
	hasCoord := len(raw.Coordinate) > 0
	hasRef := raw.Ref != ""
	if hasCoord == hasRef {
		return nil, fmt.Errorf("%s: exactly one of coordinate or ref is required", raw.Action)
	}
	a := ClickAction{Name: raw.Action, Button: "left", Count: 1, Ref: raw.Ref}
	switch raw.Action {
	case "right_click":
		a.Button = "right"
	case "double_click":
		a.Count = 2
	}
	if hasCoord {
		p, err := parsePoint(raw.Coordinate, raw.Action, "coordinate")
		if err != nil {
			return nil, err
		}
		a.Coordinate = &p
	}
	return a, nil
}

func parseScroll(raw rawAction) (Action, error) {
	coord, err := parsePoint(raw.Coordinate, "scroll", "coordinate")
	if err != nil {
		return nil, err
	}
	a := ScrollAction{Coordinate: coord, Direction: raw.ScrollDirection}
	if len(raw.ScrollAmount) == 0 {
		return nil, fmt.Errorf("scroll: scroll_amount is required")
	}
	var amount float64
	if err := json.Unmarshal(raw.ScrollAmount, &amount); err == nil {
		if amount < 0 {
			return nil, fmt.Errorf("scroll: scroll_amount must not be negative")
		}
		a.Amount = int(amount)
		return a, nil
	}
	var word string
	if err := json.Unmarshal(raw.ScrollAmount, &word); err == nil && word == "max" {
		a.ToEnd = true
		return a, nil
	}
	return nil, fmt.Errorf("scroll: scroll_amount must be a number or \"max\"")
}

func parsePoint(coords []float64, action, field string) (Point, error) {
	if len(coords) != 2 {
		return Point{}, fmt.Errorf("%s: %s must be an [x, y] pair", action, field)
	}
	return Point{X: coords[0], Y: coords[1]}, nil
}
