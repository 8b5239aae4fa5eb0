// Package model defines the tracker arrangement data: the song hierarchy
// (song rows, chains, phrases, steps) plus the instruments, tables, grooves,
// scales and mixer state a project carries alongside it.
package model

const (
	TrackCount     = 8
	SongRowCount   = 256
	ChainRowCount  = 16
	PhraseStepCount = 16
	StepFxSlots    = 3
)

type ChainID = uint8
type PhraseID = uint8
type InstrumentID = uint8
type TableID = uint8
type GrooveID = uint8
type ScaleID = uint8

type InstrumentType int

const (
	InstrumentNone InstrumentType = iota
	InstrumentSynth
	InstrumentSampler
	InstrumentMidiOut
	InstrumentExternal
)

type SynthWaveform int

const (
	WaveformSine SynthWaveform = iota
	WaveformSquare
	WaveformSaw
	WaveformTriangle
)

type SamplerRenderVariant int

const (
	SamplerVariantClassic SamplerRenderVariant = iota
	SamplerVariantPunch
	SamplerVariantAir
)

// FxCommand is a three-letter step or table-row effect: VOL, TRN, LEN.
type FxCommand struct {
	Code  string
	Value uint8
}

type SendLevels struct {
	Mfx    uint8
	Delay  uint8
	Reverb uint8
}

type SynthParams struct {
	Waveform  SynthWaveform
	AttackMs  uint16
	ReleaseMs uint16
	Gain      uint8
}

func DefaultSynthParams() SynthParams {
	return SynthParams{Waveform: WaveformSine, AttackMs: 5, ReleaseMs: 80, Gain: 127}
}

type SamplerRenderParams struct {
	Variant         SamplerRenderVariant
	TransientLevel  uint8
	BodyLevel       uint8
}

func DefaultSamplerRenderParams() SamplerRenderParams {
	return SamplerRenderParams{Variant: SamplerVariantClassic, TransientLevel: 64, BodyLevel: 96}
}

type Instrument struct {
	ID              InstrumentID
	Type            InstrumentType
	Name            string
	SynthParams     SynthParams
	SamplerRender   *SamplerRenderParams
	TableID         *TableID
	NoteLengthSteps uint8
	SendLevels      SendLevels
}

func NewInstrument(id InstrumentID, instrumentType InstrumentType, name string) Instrument {
	return Instrument{
		ID:              id,
		Type:            instrumentType,
		Name:            name,
		SynthParams:     DefaultSynthParams(),
		NoteLengthSteps: 1,
	}
}

type Step struct {
	Note         *uint8
	Velocity     uint8
	InstrumentID *InstrumentID
	Fx           [StepFxSlots]*FxCommand
}

func NewStep() Step {
	return Step{Velocity: 0x40}
}

type Phrase struct {
	ID    PhraseID
	Steps [PhraseStepCount]Step
}

func NewPhrase(id PhraseID) Phrase {
	p := Phrase{ID: id}
	for i := range p.Steps {
		p.Steps[i] = NewStep()
	}
	return p
}

type ChainRow struct {
	PhraseID  *PhraseID
	Transpose int8
}

type Chain struct {
	ID   ChainID
	Rows [ChainRowCount]ChainRow
}

func NewChain(id ChainID) Chain {
	return Chain{ID: id}
}

type TableRow struct {
	NoteOffset int8
	Volume     uint8
	Fx         [StepFxSlots]*FxCommand
}

func NewTableRow() TableRow {
	return TableRow{Volume: 0x40}
}

type Table struct {
	ID   TableID
	Rows [ChainRowCount]TableRow
}

func NewTable(id TableID) Table {
	t := Table{ID: id}
	for i := range t.Rows {
		t.Rows[i] = NewTableRow()
	}
	return t
}

// Groove holds a per-step tick-count pattern; a zero entry counts as 1.
type Groove struct {
	ID           GrooveID
	TicksPattern []uint8
}

// Scale is a key plus a 12-bit bitmap of allowed semitone offsets from the key.
type Scale struct {
	ID           ScaleID
	Key          uint8
	IntervalMask uint16
}

type Track struct {
	Index         uint8
	SongRows      [SongRowCount]*ChainID
	Mute          bool
	Solo          bool
	GrooveOverride *GrooveID
	ScaleOverride  *ScaleID
}

func NewTrack(index uint8) Track {
	return Track{Index: index}
}

type Song struct {
	Name          string
	Tempo         uint16
	DefaultGroove GrooveID
	DefaultScale  ScaleID
	Tracks        [TrackCount]Track
}

func NewSong(name string) Song {
	s := Song{Name: name, Tempo: 120}
	for i := range s.Tracks {
		s.Tracks[i] = NewTrack(uint8(i))
	}
	return s
}

type Mixer struct {
	TrackLevels [TrackCount]uint8
	MasterLevel uint8
	SendLevels  SendLevels
}

func NewMixer() Mixer {
	m := Mixer{MasterLevel: 0x80}
	for i := range m.TrackLevels {
		m.TrackLevels[i] = 0x80
	}
	return m
}

// ProjectData is the single owner of all arrangement entities. Chains,
// phrases, instruments, tables, grooves and scales are upserted by id and
// are never deleted during normal operation.
type ProjectData struct {
	Song        Song
	Chains      map[ChainID]Chain
	Phrases     map[PhraseID]Phrase
	Instruments map[InstrumentID]Instrument
	Tables      map[TableID]Table
	Grooves     map[GrooveID]Groove
	Scales      map[ScaleID]Scale
	Mixer       Mixer
}

func NewProjectData(songName string) ProjectData {
	return ProjectData{
		Song:        NewSong(songName),
		Chains:      make(map[ChainID]Chain),
		Phrases:     make(map[PhraseID]Phrase),
		Instruments: make(map[InstrumentID]Instrument),
		Tables:      make(map[TableID]Table),
		Grooves:     make(map[GrooveID]Groove),
		Scales:      make(map[ScaleID]Scale),
		Mixer:       NewMixer(),
	}
}
