package voice

import (
	"testing"

	"github.com/schollz/tonewheel/internal/model"
	"github.com/stretchr/testify/assert"
)

func instrumentRef(id model.InstrumentID) *model.InstrumentID { return &id }

func TestNoteOffEntersReleaseBeforeVoiceIsCleared(t *testing.T) {
	a := NewAllocator(4)

	a.NoteOn(0, 60, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)
	assert.Equal(t, 1, a.ActiveVoiceCount())

	assert.True(t, a.NoteOff(0, 60))
	assert.Equal(t, 1, a.ActiveVoiceCount())

	for i := 0; i < 7; i++ {
		a.AdvanceReleaseEnvelopes()
		assert.Equal(t, 1, a.ActiveVoiceCount())
	}

	a.AdvanceReleaseEnvelopes()
	assert.Equal(t, 0, a.ActiveVoiceCount())

	stats := a.LifecycleStats()
	assert.Equal(t, uint64(1), stats.ReleaseDeferredTotal)
	assert.Equal(t, uint64(1), stats.ReleaseCompletedTotal)
	assert.Equal(t, uint32(0), stats.ReleasePendingVoices)
}

func TestAllocatorStaysBoundedAndStealsOldest(t *testing.T) {
	a := NewAllocator(2)

	a.NoteOn(0, 60, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)
	a.NoteOn(0, 62, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)
	a.NoteOn(0, 64, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)

	assert.Equal(t, 2, a.ActiveVoiceCount())
	assert.Equal(t, 2, a.MaxVoices())
	assert.Equal(t, uint64(1), a.VoicesStolenTotal())
	assert.False(t, a.NoteOff(0, 60))
	assert.True(t, a.NoteOff(0, 62) || a.NoteOff(0, 64))

	stats := a.LifecycleStats()
	assert.Equal(t, uint64(1), stats.StealActiveTotal)
	assert.Equal(t, uint64(0), stats.StealReleasingTotal)
	assert.Equal(t, uint64(1), stats.PolyphonyPressureTotal)
}

func TestRetriggerSameNoteReusesExistingSlot(t *testing.T) {
	a := NewAllocator(2)

	a.NoteOn(0, 60, 90, instrumentRef(0), model.WaveformSine, 1, 20, 80)
	a.NoteOn(0, 60, 120, instrumentRef(0), model.WaveformSquare, 2, 30, 100)

	assert.Equal(t, 1, a.ActiveVoiceCount())
	assert.Equal(t, uint64(0), a.VoicesStolenTotal())
}

func TestLifecycleCountersCaptureClickRiskSignals(t *testing.T) {
	a := NewAllocator(2)

	a.NoteOn(0, 60, 100, instrumentRef(0), model.WaveformSaw, 0, 80, 90)
	a.NoteOn(0, 60, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)
	a.NoteOn(0, 62, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)
	a.NoteOn(0, 63, 100, instrumentRef(0), model.WaveformSaw, 5, 1, 90)

	assert.False(t, a.NoteOff(0, 60))
	assert.True(t, a.NoteOff(0, 63))
	assert.False(t, a.NoteOff(0, 99))

	stats := a.LifecycleStats()
	assert.Equal(t, uint64(4), stats.NoteOnTotal)
	assert.Equal(t, uint64(3), stats.NoteOffTotal)
	assert.Equal(t, uint64(2), stats.NoteOffMissTotal)
	assert.Equal(t, uint64(1), stats.RetriggerTotal)
	assert.Equal(t, uint64(1), stats.ZeroAttackTotal)
	assert.Equal(t, uint64(1), stats.ShortReleaseTotal)
	assert.Equal(t, uint64(4), stats.ClickRiskTotal)
	assert.Equal(t, uint64(0), stats.ReleaseDeferredTotal)
	assert.Equal(t, uint64(0), stats.ReleaseCompletedTotal)
	assert.Equal(t, uint32(0), stats.ReleasePendingVoices)
	assert.Equal(t, uint64(0), stats.StealReleasingTotal)
	assert.Equal(t, uint64(1), stats.StealActiveTotal)
	assert.Equal(t, uint64(1), stats.PolyphonyPressureTotal)
	assert.Equal(t, uint64(1), a.VoicesStolenTotal())
}

func TestStealingPrefersReleasingVoiceUnderPolyphonyPressure(t *testing.T) {
	a := NewAllocator(2)

	a.NoteOn(0, 60, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)
	a.NoteOn(0, 62, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)
	assert.True(t, a.NoteOff(0, 60))
	a.NoteOn(0, 64, 100, instrumentRef(0), model.WaveformSaw, 5, 80, 90)

	assert.Equal(t, 2, a.ActiveVoiceCount())
	assert.False(t, a.NoteOff(0, 60))
	assert.True(t, a.NoteOff(0, 62))
	assert.True(t, a.NoteOff(0, 64))

	stats := a.LifecycleStats()
	assert.Equal(t, uint64(1), stats.StealReleasingTotal)
	assert.Equal(t, uint64(0), stats.StealActiveTotal)
	assert.Equal(t, uint64(1), stats.PolyphonyPressureTotal)
	assert.Equal(t, uint64(0), stats.ClickRiskTotal)
}
