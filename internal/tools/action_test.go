package tools

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  Action
	}{
		{
			name:  "screenshot",
			input: `{"action":"screenshot"}`,
			want:  ScreenshotAction{},
		},
		{
			name:  "left click at coordinate",
			input: `{"action":"left_click","coordinate":[100,250]}`,
			want:  ClickAction{Name: "left_click", Button: "left", Count: 1, Coordinate: &Point{X: 100, Y: 250}},
		},
		{
			name:  "left click by ref",
			input: `{"action":"left_click","ref":"ref_7"}`,
			want:  ClickAction{Name: "left_click", Button: "left", Count: 1, Ref: "ref_7"},
		},
		{
			name:  "right click",
			input: `{"action":"right_click","coordinate":[10,20]}`,
			want:  ClickAction{Name: "right_click", Button: "right", Count: 1, Coordinate: &Point{X: 10, Y: 20}},
		},
		{
			name:  "double click",
			input: `{"action":"double_click","ref":"found_2"}`,
			want:  ClickAction{Name: "double_click", Button: "left", Count: 2, Ref: "found_2"},
		},
		{
			name:  "type",
			input: `{"action":"type","text":"hello world"}`,
			want:  TypeAction{Text: "hello world"},
		},
		{
			name:  "type empty string is allowed",
			input: `{"action":"type","text":""}`,
			want:  TypeAction{Text: ""},
		},
		{
			name:  "key chord",
			input: `{"action":"key","key":"ctrl+a"}`,
			want:  KeyAction{Key: "ctrl+a"},
		},
		{
			name:  "wait",
			input: `{"action":"wait","duration":2}`,
			want:  WaitAction{Duration: 2 * time.Second},
		},
		{
			name:  "wait clamped to max",
			input: `{"action":"wait","duration":300}`,
			want:  WaitAction{Duration: MaxWait},
		},
		{
			name:  "scroll with amount",
			input: `{"action":"scroll","coordinate":[640,400],"scroll_direction":"down","scroll_amount":3}`,
			want:  ScrollAction{Coordinate: Point{X: 640, Y: 400}, Direction: "down", Amount: 3},
		},
		{
			name:  "scroll to end",
			input: `{"action":"scroll","coordinate":[640,400],"scroll_direction":"up","scroll_amount":"max"}`,
			want:  ScrollAction{Coordinate: Point{X: 640, Y: 400}, Direction: "up", ToEnd: true},
		},
		{
			name:  "drag",
			input: `{"action":"left_click_drag","start_coordinate":[1,2],"end_coordinate":[3,4]}`,
			want:  DragAction{Start: Point{X: 1, Y: 2}, End: Point{X: 3, Y: 4}},
		},
		{
			name:  "scroll to ref",
			input: `{"action":"scroll_to","ref":"ref_12"}`,
			want:  ScrollToAction{Ref: "ref_12"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAction(json.RawMessage(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseActionRejects(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"unknown action", `{"action":"teleport"}`},
		{"missing discriminant", `{"coordinate":[1,2]}`},
		{"click with both coordinate and ref", `{"action":"left_click","coordinate":[1,2],"ref":"ref_1"}`},
		{"click with neither", `{"action":"left_click"}`},
		{"click with one coordinate value", `{"action":"left_click","coordinate":[5]}`},
		{"type without text", `{"action":"type"}`},
		{"key without key", `{"action":"key"}`},
		{"wait without duration", `{"action":"wait"}`},
		{"wait with negative duration", `{"action":"wait","duration":-1}`},
		{"scroll without amount", `{"action":"scroll","coordinate":[1,2],"scroll_direction":"down"}`},
		{"scroll with bad amount word", `{"action":"scroll","coordinate":[1,2],"scroll_direction":"down","scroll_amount":"lots"}`},
		{"scroll with negative amount", `{"action":"scroll","coordinate":[1,2],"scroll_direction":"down","scroll_amount":-3}`},
		{"drag without end", `{"action":"left_click_drag","start_coordinate":[1,2]}`},
		{"scroll_to without ref", `{"action":"scroll_to"}`},
		{"not json", `left_click`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAction(json.RawMessage(tc.input))
			assert.Error(t, err)
		})
	}
}
