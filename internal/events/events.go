// Package events defines the render-event sum type passed between the
// scheduler, the voice allocator, and the audio/MIDI backends.
package events

import "github.com/schollz/tonewheel/internal/model"

// RenderMode tells a consumer how a NoteOn should be synthesized.
type RenderMode int

const (
	RenderModeSynth RenderMode = iota
	RenderModeSamplerV1
	RenderModeExternalMuted
)

// RenderEvent is either a NoteOn carrying the full synthesis payload or a
// bare NoteOff. Kind discriminates which fields are meaningful.
type RenderEvent struct {
	Kind RenderEventKind

	TrackID uint8
	Note    uint8

	// NoteOn-only fields.
	Velocity              uint8
	RenderMode            RenderMode
	InstrumentID          *uint8
	Waveform              model.SynthWaveform
	AttackMs              uint16
	ReleaseMs             uint16
	Gain                  uint8
	SamplerVariant        model.SamplerRenderVariant
	SamplerTransientLevel uint8
	SamplerBodyLevel      uint8
	TrackLevel            uint8
	MasterLevel           uint8
	SendMfx               uint8
	SendDelay             uint8
	SendReverb            uint8
}

type RenderEventKind int

const (
	RenderEventNoteOn RenderEventKind = iota
	RenderEventNoteOff
)

func NoteOff(trackID, note uint8) RenderEvent {
	return RenderEvent{Kind: RenderEventNoteOff, TrackID: trackID, Note: note}
}

// TransportState is a minimal playhead snapshot carried by some backends.
type TransportState struct {
	Tick      uint64
	IsPlaying bool
}
