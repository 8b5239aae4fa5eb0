package midiutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoteName(t *testing.T) {
	tests := []struct {
		note     uint8
		expected string
	}{
		{60, "c-4"},
		{61, "c#4"},
		{21, "a-0"},
		{0, "c-1"},
		{12, "c-0"},
		{127, "g-9"},
		{1, "c#1"},
		{13, "c#0"},
		{25, "c#1"},
		{24, "c-1"},
		{36, "c-2"},
		{48, "c-3"},
		{72, "c-5"},
		{62, "d-4"},
		{63, "d#4"},
		{64, "e-4"},
		{65, "f-4"},
		{66, "f#4"},
		{67, "g-4"},
		{68, "g#4"},
		{69, "a-4"},
		{70, "a#4"},
		{71, "b-4"},
		{128, "---"},
		{200, "---"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NoteName(tt.note))
	}
}

func TestNoteNameLength(t *testing.T) {
	for i := 0; i <= 127; i++ {
		assert.Len(t, NoteName(uint8(i)), 3)
	}
}
