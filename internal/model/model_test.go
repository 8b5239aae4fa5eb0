package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSongDefaults(t *testing.T) {
	song := NewSong("my-song")

	assert.Equal(t, "my-song", song.Name)
	assert.Equal(t, uint16(120), song.Tempo)
	assert.Len(t, song.Tracks, TrackCount)
	for i, track := range song.Tracks {
		assert.Equal(t, uint8(i), track.Index)
		assert.False(t, track.Mute)
		assert.False(t, track.Solo)
	}
}

func TestNewMixerDefaults(t *testing.T) {
	mixer := NewMixer()

	assert.Equal(t, uint8(0x80), mixer.MasterLevel)
	for _, level := range mixer.TrackLevels {
		assert.Equal(t, uint8(0x80), level)
	}
}

func TestNewPhraseFillsStepsWithDefaults(t *testing.T) {
	phrase := NewPhrase(3)

	assert.Equal(t, PhraseID(3), phrase.ID)
	assert.Len(t, phrase.Steps, PhraseStepCount)
	for _, step := range phrase.Steps {
		assert.Nil(t, step.Note)
		assert.Equal(t, uint8(0x40), step.Velocity)
	}
}

func TestNewChainHasEmptyRows(t *testing.T) {
	chain := NewChain(1)

	assert.Equal(t, ChainID(1), chain.ID)
	for _, row := range chain.Rows {
		assert.Nil(t, row.PhraseID)
		assert.Equal(t, int8(0), row.Transpose)
	}
}

func TestNewTableFillsRowsWithDefaultVolume(t *testing.T) {
	table := NewTable(2)

	assert.Equal(t, TableID(2), table.ID)
	for _, row := range table.Rows {
		assert.Equal(t, uint8(0x40), row.Volume)
		assert.Equal(t, int8(0), row.NoteOffset)
	}
}

func TestNewInstrumentDefaults(t *testing.T) {
	instrument := NewInstrument(5, InstrumentSynth, "lead")

	assert.Equal(t, InstrumentID(5), instrument.ID)
	assert.Equal(t, InstrumentSynth, instrument.Type)
	assert.Equal(t, "lead", instrument.Name)
	assert.Equal(t, uint8(1), instrument.NoteLengthSteps)
	assert.Equal(t, WaveformSine, instrument.SynthParams.Waveform)
	assert.Nil(t, instrument.SamplerRender)
	assert.Nil(t, instrument.TableID)
}

func TestNewProjectDataOwnsEmptyEntityMaps(t *testing.T) {
	project := NewProjectData("empty-project")

	assert.Equal(t, "empty-project", project.Song.Name)
	assert.Empty(t, project.Chains)
	assert.Empty(t, project.Phrases)
	assert.Empty(t, project.Instruments)
	assert.Empty(t, project.Tables)
	assert.Empty(t, project.Grooves)
	assert.Empty(t, project.Scales)
}
