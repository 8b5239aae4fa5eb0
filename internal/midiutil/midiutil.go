// Package midiutil formats MIDI note numbers for display, the way a tracker
// UI would render a step's note column.
package midiutil

import (
	"fmt"
	"strings"
)

var noteNames = []string{"c", "c#", "d", "d#", "e", "f", "f#", "g", "g#", "a", "a#", "b"}

// NoteName converts a MIDI note number (0-127) to a tracker-style note name
// like "c-4" or "f#1". MIDI note 60 is c-4. Out-of-range input returns "---".
func NoteName(note uint8) string {
	if note > 127 {
		return "---"
	}

	octave := (int(note) / 12) - 1
	name := noteNames[note%12]

	if strings.Contains(name, "#") {
		if octave < 0 {
			return fmt.Sprintf("%s%d", name, -octave)
		}
		return fmt.Sprintf("%s%d", name, octave)
	}
	if octave < 0 {
		return fmt.Sprintf("%s-%d", name, -octave)
	}
	return fmt.Sprintf("%s-%d", name, octave)
}
