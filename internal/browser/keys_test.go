package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeyChord(t *testing.T) {
	cases := []struct {
		combo   string
		mods    []string
		key     string
		wantErr bool
	}{
		{combo: "return", key: "Enter"},
		{combo: "Enter", key: "Enter"},
		{combo: "esc", key: "Escape"},
		{combo: "up", key: "ArrowUp"},
		{combo: "Page_Down", key: "PageDown"},
		{combo: "a", key: "a"},
		{combo: "/", key: "/"},
		{combo: "f5", key: "F5"},
		{combo: "ctrl+a", mods: []string{"Control"}, key: "a"},
		{combo: "cmd+shift+t", mods: []string{"Meta", "Shift"}, key: "t"},
		{combo: "alt+left", mods: []string{"Alt"}, key: "ArrowLeft"},
		{combo: "CTRL+Return", mods: []string{"Control"}, key: "Enter"},
		{combo: "shift", key: "Shift"},
		{combo: "bogus+a", wantErr: true},
		{combo: "", wantErr: true},
		{combo: "+", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.combo, func(t *testing.T) {
			mods, key, err := normalizeKeyChord(tc.combo)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.mods, mods)
			assert.Equal(t, tc.key, key)
		})
	}
}

func TestModifierOrderPreserved(t *testing.T) {
	mods, key, err := normalizeKeyChord("shift+ctrl+alt+x")
	require.NoError(t, err)
	assert.Equal(t, []string{"Shift", "Control", "Alt"}, mods)
	assert.Equal(t, "x", key)
}
