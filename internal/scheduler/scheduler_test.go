package scheduler

import (
	"testing"

	"github.com/schollz/tonewheel/internal/engine"
	"github.com/schollz/tonewheel/internal/events"
	"github.com/schollz/tonewheel/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noteStep(note uint8, instrumentID *model.InstrumentID) model.Step {
	return model.Step{Note: &note, Velocity: 100, InstrumentID: instrumentID}
}

func wireOneStepSong(t *testing.T, e *engine.Engine, instrumentID *model.InstrumentID, note uint8) {
	t.Helper()
	chainID := model.ChainID(1)
	phraseID := model.PhraseID(1)

	phrase := model.NewPhrase(phraseID)
	phrase.Steps[0] = noteStep(note, instrumentID)
	require.NoError(t, e.Apply(engine.UpsertPhrase(phrase)))

	chain := model.NewChain(chainID)
	chain.Rows[0].PhraseID = &phraseID
	require.NoError(t, e.Apply(engine.UpsertChain(chain)))

	require.NoError(t, e.Apply(engine.SetSongRowChain(0, 0, &chainID)))
}

func tickN(s *Scheduler, project *model.ProjectData, n int) [][]events.RenderEvent {
	out := make([][]events.RenderEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.Tick(project))
	}
	return out
}

func findNoteOn(evs []events.RenderEvent) (events.RenderEvent, bool) {
	for _, e := range evs {
		if e.Kind == events.RenderEventNoteOn {
			return e, true
		}
	}
	return events.RenderEvent{}, false
}

func TestEmitsNoteOnAtStepBoundary(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))
	wireOneStepSong(t, e, &instrumentID, 60)

	s := New(96)
	project := e.Snapshot()

	first := s.Tick(project)
	noteOn, ok := findNoteOn(first)
	require.True(t, ok, "expected a NoteOn on the first tick")
	assert.Equal(t, uint8(60), noteOn.Note)
	assert.Equal(t, uint8(0), noteOn.TrackID)
}

func TestRespectsTrackMute(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))
	wireOneStepSong(t, e, &instrumentID, 60)
	require.NoError(t, e.Apply(engine.ToggleTrackMute(0)))

	s := New(96)
	project := e.Snapshot()

	for _, evs := range tickN(s, project, int(s.TicksPerStep)+1) {
		_, ok := findNoteOn(evs)
		assert.False(t, ok, "muted track must not emit NoteOn")
	}
}

func TestGrooveOverrideChangesStepTiming(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))

	chainID := model.ChainID(1)
	phraseID := model.PhraseID(1)
	phrase := model.NewPhrase(phraseID)
	phrase.Steps[0] = noteStep(60, &instrumentID)
	phrase.Steps[1] = noteStep(62, &instrumentID)
	require.NoError(t, e.Apply(engine.UpsertPhrase(phrase)))

	chain := model.NewChain(chainID)
	chain.Rows[0].PhraseID = &phraseID
	require.NoError(t, e.Apply(engine.UpsertChain(chain)))
	require.NoError(t, e.Apply(engine.SetSongRowChain(0, 0, &chainID)))

	grooveID := model.GrooveID(2)
	require.NoError(t, e.Apply(engine.UpsertGroove(model.Groove{ID: grooveID, TicksPattern: []uint8{1, 1}})))
	require.NoError(t, e.Apply(engine.SetTrackGrooveOverride(0, &grooveID)))

	s := New(96)
	project := e.Snapshot()

	firstTick := s.Tick(project)
	noteOn, ok := findNoteOn(firstTick)
	require.True(t, ok)
	assert.Equal(t, uint8(60), noteOn.Note)

	secondTick := s.Tick(project)
	noteOn, ok = findNoteOn(secondTick)
	require.True(t, ok, "a one-tick groove step should advance to the next step every tick")
	assert.Equal(t, uint8(62), noteOn.Note)
}

func TestScaleQuantizesOutOfScaleNote(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))
	wireOneStepSong(t, e, &instrumentID, 61) // C# against a C-major mask

	scaleID := model.ScaleID(3)
	cMajorMask := uint16(0b101010110101)
	require.NoError(t, e.Apply(engine.UpsertScale(model.Scale{ID: scaleID, Key: 0, IntervalMask: cMajorMask})))
	require.NoError(t, e.Apply(engine.SetDefaultScale(scaleID)))

	s := New(96)
	project := e.Snapshot()

	noteOn, ok := findNoteOn(s.Tick(project))
	require.True(t, ok)
	assert.NotEqual(t, uint8(61), noteOn.Note)
}

func TestTrackScaleOverrideTakesPriority(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))
	wireOneStepSong(t, e, &instrumentID, 61)

	chromaticID := model.ScaleID(1)
	require.NoError(t, e.Apply(engine.UpsertScale(model.Scale{ID: chromaticID, Key: 0, IntervalMask: 0xFFF})))
	require.NoError(t, e.Apply(engine.SetDefaultScale(chromaticID)))

	restrictiveID := model.ScaleID(2)
	require.NoError(t, e.Apply(engine.UpsertScale(model.Scale{ID: restrictiveID, Key: 0, IntervalMask: 0b1})))
	require.NoError(t, e.Apply(engine.SetTrackScaleOverride(0, &restrictiveID)))

	s := New(96)
	project := e.Snapshot()

	noteOn, ok := findNoteOn(s.Tick(project))
	require.True(t, ok)
	assert.Equal(t, uint8(0), noteOn.Note%12)
	assert.NotEqual(t, uint8(61), noteOn.Note)
}

func TestNoteOffEmittedAfterDefaultNoteLength(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))
	wireOneStepSong(t, e, &instrumentID, 60)

	s := New(96)
	project := e.Snapshot()

	ticksPerStep := int(s.TicksPerStep)
	sawNoteOff := false
	for i := 0; i < ticksPerStep+1; i++ {
		for _, ev := range s.Tick(project) {
			if ev.Kind == events.RenderEventNoteOff {
				sawNoteOff = true
			}
		}
	}
	assert.True(t, sawNoteOff, "default note length of one step must release on the next step boundary")
}

func TestLenFxOverridesNoteLength(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))

	chainID := model.ChainID(1)
	phraseID := model.PhraseID(1)
	phrase := model.NewPhrase(phraseID)
	phrase.Steps[0] = noteStep(60, &instrumentID)
	phrase.Steps[0].Fx[0] = &model.FxCommand{Code: "LEN", Value: 4}
	require.NoError(t, e.Apply(engine.UpsertPhrase(phrase)))

	chain := model.NewChain(chainID)
	chain.Rows[0].PhraseID = &phraseID
	require.NoError(t, e.Apply(engine.UpsertChain(chain)))
	require.NoError(t, e.Apply(engine.SetSongRowChain(0, 0, &chainID)))

	s := New(96)
	project := e.Snapshot()

	ticksPerStep := int(s.TicksPerStep)
	sawNoteOffEarly := false
	for i := 0; i < ticksPerStep+1; i++ {
		for _, ev := range s.Tick(project) {
			if ev.Kind == events.RenderEventNoteOff {
				sawNoteOffEarly = true
			}
		}
	}
	assert.False(t, sawNoteOffEarly, "LEN fx of 4 steps must not release after only one step")
}

func TestStepFxTransposeAndVolumeAreApplied(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))

	chainID := model.ChainID(1)
	phraseID := model.PhraseID(1)
	phrase := model.NewPhrase(phraseID)
	phrase.Steps[0] = noteStep(60, &instrumentID)
	phrase.Steps[0].Fx[0] = &model.FxCommand{Code: "TRN", Value: 60} // +12 semitones
	phrase.Steps[0].Fx[1] = &model.FxCommand{Code: "VOL", Value: 42}
	require.NoError(t, e.Apply(engine.UpsertPhrase(phrase)))

	chain := model.NewChain(chainID)
	chain.Rows[0].PhraseID = &phraseID
	require.NoError(t, e.Apply(engine.UpsertChain(chain)))
	require.NoError(t, e.Apply(engine.SetSongRowChain(0, 0, &chainID)))

	s := New(96)
	project := e.Snapshot()

	noteOn, ok := findNoteOn(s.Tick(project))
	require.True(t, ok)
	assert.Equal(t, uint8(72), noteOn.Note)
	assert.Equal(t, uint8(42), noteOn.Velocity)
}

func TestTableRowModifiesNoteAndVelocity(t *testing.T) {
	e := engine.New("t")
	tableID := model.TableID(1)
	table := model.NewTable(tableID)
	table.Rows[0] = model.TableRow{NoteOffset: 5, Volume: 64}
	require.NoError(t, e.Apply(engine.UpsertTable(table)))

	instrument := model.NewInstrument(1, model.InstrumentSynth, "lead")
	instrument.TableID = &tableID
	instrumentID := instrument.ID
	require.NoError(t, e.Apply(engine.UpsertInstrument(instrument)))
	wireOneStepSong(t, e, &instrumentID, 60)

	s := New(96)
	project := e.Snapshot()

	noteOn, ok := findNoteOn(s.Tick(project))
	require.True(t, ok)
	assert.Equal(t, uint8(65), noteOn.Note)
}

func TestSamplerProfileShapesEnvelopeAndNoteLength(t *testing.T) {
	e := engine.New("t")
	instrument := model.NewInstrument(1, model.InstrumentSampler, "kick")
	instrument.SynthParams.AttackMs = 10
	instrument.SynthParams.ReleaseMs = 5
	instrumentID := instrument.ID
	require.NoError(t, e.Apply(engine.UpsertInstrument(instrument)))
	wireOneStepSong(t, e, &instrumentID, 60)

	s := New(96)
	project := e.Snapshot()

	noteOn, ok := findNoteOn(s.Tick(project))
	require.True(t, ok)
	assert.Equal(t, events.RenderModeSamplerV1, noteOn.RenderMode)
	assert.LessOrEqual(t, noteOn.AttackMs, uint16(1))
	assert.GreaterOrEqual(t, noteOn.ReleaseMs, uint16(24))
}

func TestMidiOutProfileMutesInternalGain(t *testing.T) {
	e := engine.New("t")
	instrument := model.NewInstrument(1, model.InstrumentMidiOut, "ext")
	instrument.SynthParams.Gain = 127
	instrumentID := instrument.ID
	require.NoError(t, e.Apply(engine.UpsertInstrument(instrument)))
	wireOneStepSong(t, e, &instrumentID, 60)

	s := New(96)
	project := e.Snapshot()

	noteOn, ok := findNoteOn(s.Tick(project))
	require.True(t, ok)
	assert.Equal(t, events.RenderModeExternalMuted, noteOn.RenderMode)
	assert.Equal(t, uint8(0), noteOn.Gain)
}

func TestRewindResetsPlaybackPosition(t *testing.T) {
	e := engine.New("t")
	instrumentID := model.InstrumentID(1)
	require.NoError(t, e.Apply(engine.UpsertInstrument(model.NewInstrument(instrumentID, model.InstrumentSynth, "lead"))))
	wireOneStepSong(t, e, &instrumentID, 60)

	s := New(96)
	project := e.Snapshot()

	s.Tick(project)
	s.Tick(project)
	s.Rewind()

	assert.Equal(t, uint64(0), s.CurrentTick)
	for _, state := range s.TrackState {
		assert.Equal(t, 0, state.SongRow)
		assert.Equal(t, 0, state.ChainRow)
		assert.Equal(t, 0, state.PhraseStep)
		assert.Equal(t, uint8(0), state.TickInStep)
		assert.Nil(t, state.ActiveNote)
	}
}
