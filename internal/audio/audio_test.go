package audio

import (
	"testing"

	"github.com/schollz/tonewheel/internal/events"
	"github.com/schollz/tonewheel/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneNoteOn() []events.RenderEvent {
	instrumentID := uint8(0)
	return []events.RenderEvent{{
		Kind:         events.RenderEventNoteOn,
		TrackID:      0,
		Note:         60,
		Velocity:     100,
		RenderMode:   events.RenderModeSynth,
		InstrumentID: &instrumentID,
		Waveform:     model.WaveformSaw,
		AttackMs:     5,
		ReleaseMs:    80,
		Gain:         100,
	}}
}

func TestNoopBackendCountsOnlyWhileRunning(t *testing.T) {
	b := &NoopBackend{}
	b.PushEvents(oneNoteOn())
	assert.Equal(t, 0, b.EventsConsumed())

	b.Start()
	b.PushEvents(oneNoteOn())
	assert.Equal(t, 1, b.EventsConsumed())

	b.Stop()
	b.PushEvents(oneNoteOn())
	assert.Equal(t, 1, b.EventsConsumed())
}

func TestNativeBackendReportsXrunAndMetrics(t *testing.T) {
	backend := NewNativeBackend(Config{MaxCallbackUs: 150, BaseCallbackUs: 200, PerEventUs: 0})
	require.NoError(t, backend.StartChecked())

	backend.PushEvents(oneNoteOn())

	metrics := backend.Metrics()
	assert.Equal(t, "native-simulated-linux", backend.BackendName())
	assert.Equal(t, uint64(1), metrics.CallbacksTotal)
	assert.Equal(t, uint64(1), metrics.XrunsTotal)
	assert.Equal(t, uint32(200), metrics.LastCallbackUs)
	assert.Equal(t, uint32(48000), metrics.SampleRateHz)
	assert.Equal(t, uint32(256), metrics.BufferSizeFrames)
	assert.Equal(t, uint32(16), metrics.MaxVoices)
	assert.Equal(t, uint64(1), metrics.VoiceNoteOnTotal)
	assert.Equal(t, uint64(0), metrics.VoiceNoteOffTotal)
	assert.Equal(t, uint64(0), metrics.VoiceNoteOffMissTotal)
	assert.Equal(t, uint64(0), metrics.VoiceRetriggerTotal)
	assert.Equal(t, uint64(0), metrics.ClickRiskTotal)
}

func TestNativeBackendTracksSamplerAndSilentModes(t *testing.T) {
	backend := NewNativeBackend(DefaultConfig())
	require.NoError(t, backend.StartChecked())

	instrumentID := uint8(1)
	samplerEvent := events.RenderEvent{
		Kind: events.RenderEventNoteOn, TrackID: 0, Note: 40, Velocity: 100,
		RenderMode: events.RenderModeSamplerV1, InstrumentID: &instrumentID,
	}
	silentEvent := events.RenderEvent{
		Kind: events.RenderEventNoteOn, TrackID: 1, Note: 41, Velocity: 100,
		RenderMode: events.RenderModeExternalMuted, InstrumentID: &instrumentID,
	}

	backend.PushEvents([]events.RenderEvent{samplerEvent, silentEvent})

	metrics := backend.Metrics()
	assert.Equal(t, uint64(1), metrics.VoiceSamplerModeNoteOnTotal)
	assert.Equal(t, uint64(1), metrics.VoiceSilentNoteOnTotal)
}
