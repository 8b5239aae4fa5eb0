// Package audio defines the backend interface the runtime pushes render
// events into, plus a deterministic simulated backend used for metrics and
// xrun bookkeeping when no real audio device is wired.
package audio

import (
	"fmt"

	"github.com/schollz/tonewheel/internal/events"
	"github.com/schollz/tonewheel/internal/voice"
)

// Metrics is a point-in-time snapshot of a backend's callback and voice
// bookkeeping, surfaced through the runtime's TickReport.
type Metrics struct {
	CallbacksTotal    uint64
	XrunsTotal        uint64
	LastCallbackUs    uint32
	AvgCallbackUs     uint32
	BufferSizeFrames  uint32
	SampleRateHz      uint32
	ActiveVoices      uint32
	MaxVoices         uint32
	VoicesStolenTotal uint64

	VoiceNoteOnTotal           uint64
	VoiceNoteOffTotal          uint64
	VoiceNoteOffMissTotal      uint64
	VoiceRetriggerTotal        uint64
	VoiceZeroAttackTotal       uint64
	VoiceShortReleaseTotal     uint64
	ClickRiskTotal             uint64
	VoiceReleaseDeferredTotal  uint64
	VoiceReleaseCompletedTotal uint64
	VoiceReleasePendingVoices  uint32
	VoiceStealReleasingTotal   uint64
	VoiceStealActiveTotal      uint64
	VoicePolyphonyPressureTotal uint64
	VoiceSamplerModeNoteOnTotal uint64
	VoiceSilentNoteOnTotal      uint64
}

// Backend is anything the runtime can push render events into once per
// tick. Real hardware backends and the simulated one share this shape.
type Backend interface {
	Start()
	Stop()
	PushEvents(evs []events.RenderEvent)
	EventsConsumed() int
	Metrics() Metrics
	BackendName() string
}

// NoopBackend discards events but counts how many it received while
// running. Useful for tests that don't care about DSP behavior.
type NoopBackend struct {
	running     bool
	eventsTotal int
}

func (b *NoopBackend) Start() { b.running = true }
func (b *NoopBackend) Stop()  { b.running = false }

func (b *NoopBackend) PushEvents(evs []events.RenderEvent) {
	if b.running {
		b.eventsTotal += len(evs)
	}
}

func (b *NoopBackend) EventsConsumed() int { return b.eventsTotal }

func (b *NoopBackend) Metrics() Metrics { return Metrics{} }

func (b *NoopBackend) BackendName() string { return "noop" }

// Config tunes the simulated callback-timing and voice-pool behavior of
// NativeBackend. Zero MaxCallbackUs, SampleRateHz, BufferSizeFrames and
// MaxVoices are replaced with DefaultConfig's during NewNativeBackend;
// BaseCallbackUs and PerEventUs are used as given, zero included.
type Config struct {
	MaxCallbackUs    uint32
	BaseCallbackUs   uint32
	PerEventUs       uint32
	SampleRateHz     uint32
	BufferSizeFrames uint32
	MaxVoices        int
}

func DefaultConfig() Config {
	return Config{
		MaxCallbackUs:    5000,
		BaseCallbackUs:   120,
		PerEventUs:       2,
		SampleRateHz:     48000,
		BufferSizeFrames: 256,
		MaxVoices:        16,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MaxCallbackUs == 0 {
		c.MaxCallbackUs = defaults.MaxCallbackUs
	}
	if c.SampleRateHz == 0 {
		c.SampleRateHz = defaults.SampleRateHz
	}
	if c.BufferSizeFrames == 0 {
		c.BufferSizeFrames = defaults.BufferSizeFrames
	}
	if c.MaxVoices == 0 {
		c.MaxVoices = defaults.MaxVoices
	}
	return c
}

// NativeBackend simulates the timing and voice-allocation behavior of a
// real audio callback without touching actual hardware: deterministic,
// portable, and fast enough to drive in tests.
type NativeBackend struct {
	config  Config
	running bool

	callbacksTotal   uint64
	xrunsTotal       uint64
	lastCallbackUs   uint32
	totalCallbackUs  uint64
	eventsTotal      int

	voices                  *voice.Allocator
	samplerModeNoteOnTotal  uint64
	silentNoteOnTotal       uint64
}

func NewNativeBackend(config Config) *NativeBackend {
	config = config.withDefaults()
	return &NativeBackend{
		config: config,
		voices: voice.NewAllocator(config.MaxVoices),
	}
}

// StartChecked validates the configuration before marking the backend
// running, returning an error instead of panicking on a nonsensical setup.
func (b *NativeBackend) StartChecked() error {
	if b.config.SampleRateHz == 0 {
		return fmt.Errorf("audio: sample rate must be nonzero")
	}
	if b.config.BufferSizeFrames == 0 {
		return fmt.Errorf("audio: buffer size must be nonzero")
	}
	b.running = true
	return nil
}

func (b *NativeBackend) Start() { b.running = true }
func (b *NativeBackend) Stop()  { b.running = false }

func (b *NativeBackend) PushEvents(evs []events.RenderEvent) {
	if !b.running {
		return
	}

	for _, ev := range evs {
		switch ev.Kind {
		case events.RenderEventNoteOn:
			b.voices.NoteOn(ev.TrackID, ev.Note, ev.Velocity, ev.InstrumentID, ev.Waveform, ev.AttackMs, ev.ReleaseMs, ev.Gain)
			switch ev.RenderMode {
			case events.RenderModeSamplerV1:
				b.samplerModeNoteOnTotal++
			case events.RenderModeExternalMuted:
				b.silentNoteOnTotal++
			}
		case events.RenderEventNoteOff:
			b.voices.NoteOff(ev.TrackID, ev.Note)
		}
	}
	b.voices.AdvanceReleaseEnvelopes()

	blockUs := b.config.BaseCallbackUs + b.config.PerEventUs*uint32(len(evs))
	b.callbacksTotal++
	b.lastCallbackUs = blockUs
	b.totalCallbackUs += uint64(blockUs)
	if blockUs > b.config.MaxCallbackUs {
		b.xrunsTotal++
	}
	b.eventsTotal += len(evs)
}

func (b *NativeBackend) EventsConsumed() int { return b.eventsTotal }

func (b *NativeBackend) Metrics() Metrics {
	var avg uint32
	if b.callbacksTotal > 0 {
		avg = uint32(b.totalCallbackUs / b.callbacksTotal)
	}

	lifecycle := b.voices.LifecycleStats()

	return Metrics{
		CallbacksTotal:    b.callbacksTotal,
		XrunsTotal:        b.xrunsTotal,
		LastCallbackUs:    b.lastCallbackUs,
		AvgCallbackUs:     avg,
		BufferSizeFrames:  b.config.BufferSizeFrames,
		SampleRateHz:      b.config.SampleRateHz,
		ActiveVoices:      uint32(b.voices.ActiveVoiceCount()),
		MaxVoices:         uint32(b.voices.MaxVoices()),
		VoicesStolenTotal: b.voices.VoicesStolenTotal(),

		VoiceNoteOnTotal:            lifecycle.NoteOnTotal,
		VoiceNoteOffTotal:           lifecycle.NoteOffTotal,
		VoiceNoteOffMissTotal:       lifecycle.NoteOffMissTotal,
		VoiceRetriggerTotal:         lifecycle.RetriggerTotal,
		VoiceZeroAttackTotal:        lifecycle.ZeroAttackTotal,
		VoiceShortReleaseTotal:      lifecycle.ShortReleaseTotal,
		ClickRiskTotal:              lifecycle.ClickRiskTotal,
		VoiceReleaseDeferredTotal:   lifecycle.ReleaseDeferredTotal,
		VoiceReleaseCompletedTotal:  lifecycle.ReleaseCompletedTotal,
		VoiceReleasePendingVoices:   lifecycle.ReleasePendingVoices,
		VoiceStealReleasingTotal:    lifecycle.StealReleasingTotal,
		VoiceStealActiveTotal:       lifecycle.StealActiveTotal,
		VoicePolyphonyPressureTotal: lifecycle.PolyphonyPressureTotal,
		VoiceSamplerModeNoteOnTotal: b.samplerModeNoteOnTotal,
		VoiceSilentNoteOnTotal:      b.silentNoteOnTotal,
	}
}

func (b *NativeBackend) BackendName() string { return "native-simulated-linux" }
