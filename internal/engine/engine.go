// Package engine exposes the arrangement model behind a command sink: every
// mutation goes through Apply, which either mutates the project or returns a
// typed error. No command touches scheduler or runtime state.
package engine

import (
	"fmt"

	"github.com/schollz/tonewheel/internal/model"
)

type ErrorKind int

const (
	ErrInvalidTempo ErrorKind = iota
	ErrInvalidTrackIndex
	ErrInvalidSongRow
	ErrInvalidStep
	ErrInvalidChainRow
)

// Error is the engine's validation error. The project is left unchanged
// whenever Apply returns one.
type Error struct {
	Kind  ErrorKind
	Index int
}

func (e Error) Error() string {
	switch e.Kind {
	case ErrInvalidTempo:
		return "invalid tempo"
	case ErrInvalidTrackIndex:
		return fmt.Errorf("invalid track index %d", e.Index).Error()
	case ErrInvalidSongRow:
		return fmt.Errorf("invalid song row %d", e.Index).Error()
	case ErrInvalidStep:
		return fmt.Errorf("invalid step index %d", e.Index).Error()
	case ErrInvalidChainRow:
		return fmt.Errorf("invalid chain row %d", e.Index).Error()
	default:
		return "unknown engine error"
	}
}

type CommandKind int

const (
	CmdSetTempo CommandKind = iota
	CmdToggleTrackMute
	CmdSetSongRowChain
	CmdUpsertChain
	CmdUpsertPhrase
	CmdUpsertInstrument
	CmdUpsertTable
	CmdUpsertGroove
	CmdUpsertScale
	CmdSetDefaultGroove
	CmdSetDefaultScale
	CmdSetTrackGrooveOverride
	CmdSetTrackScaleOverride
	CmdSetPhraseStep
	CmdSetStepFx
	CmdSetChainRow
	CmdSetTrackLevel
	CmdSetMasterLevel
)

// Command is the tagged union of every project mutation. Only the fields
// relevant to Kind are meaningful.
type Command struct {
	Kind CommandKind

	Tempo uint16

	TrackIndex int
	Row        int

	ChainID *model.ChainID

	Chain      model.Chain
	Phrase     model.Phrase
	Instrument model.Instrument
	Table      model.Table
	Groove     model.Groove
	Scale      model.Scale

	GrooveID *model.GrooveID
	ScaleID  *model.ScaleID

	PhraseID     model.PhraseID
	StepIndex    int
	Note         *uint8
	Velocity     uint8
	InstrumentID *model.InstrumentID

	FxSlot int
	Fx     *model.FxCommand

	RowChainID  model.ChainID
	RowPhraseID *model.PhraseID
	Transpose   int8

	Level uint8
}

func SetTempo(tempo uint16) Command { return Command{Kind: CmdSetTempo, Tempo: tempo} }

func ToggleTrackMute(trackIndex int) Command {
	return Command{Kind: CmdToggleTrackMute, TrackIndex: trackIndex}
}

func SetSongRowChain(trackIndex, row int, chainID *model.ChainID) Command {
	return Command{Kind: CmdSetSongRowChain, TrackIndex: trackIndex, Row: row, ChainID: chainID}
}

func UpsertChain(chain model.Chain) Command { return Command{Kind: CmdUpsertChain, Chain: chain} }

func UpsertPhrase(phrase model.Phrase) Command {
	return Command{Kind: CmdUpsertPhrase, Phrase: phrase}
}

func UpsertInstrument(instrument model.Instrument) Command {
	return Command{Kind: CmdUpsertInstrument, Instrument: instrument}
}

func UpsertTable(table model.Table) Command { return Command{Kind: CmdUpsertTable, Table: table} }

func UpsertGroove(groove model.Groove) Command {
	return Command{Kind: CmdUpsertGroove, Groove: groove}
}

func UpsertScale(scale model.Scale) Command { return Command{Kind: CmdUpsertScale, Scale: scale} }

func SetDefaultGroove(grooveID model.GrooveID) Command {
	id := grooveID
	return Command{Kind: CmdSetDefaultGroove, GrooveID: &id}
}

func SetDefaultScale(scaleID model.ScaleID) Command {
	id := scaleID
	return Command{Kind: CmdSetDefaultScale, ScaleID: &id}
}

func SetTrackGrooveOverride(trackIndex int, grooveID *model.GrooveID) Command {
	return Command{Kind: CmdSetTrackGrooveOverride, TrackIndex: trackIndex, GrooveID: grooveID}
}

func SetTrackScaleOverride(trackIndex int, scaleID *model.ScaleID) Command {
	return Command{Kind: CmdSetTrackScaleOverride, TrackIndex: trackIndex, ScaleID: scaleID}
}

func SetPhraseStep(phraseID model.PhraseID, stepIndex int, note *uint8, velocity uint8, instrumentID *model.InstrumentID) Command {
	return Command{
		Kind:         CmdSetPhraseStep,
		PhraseID:     phraseID,
		StepIndex:    stepIndex,
		Note:         note,
		Velocity:     velocity,
		InstrumentID: instrumentID,
	}
}

func SetStepFx(phraseID model.PhraseID, stepIndex, fxSlot int, fx *model.FxCommand) Command {
	return Command{Kind: CmdSetStepFx, PhraseID: phraseID, StepIndex: stepIndex, FxSlot: fxSlot, Fx: fx}
}

// SetChainRow writes a single row of a chain, validating row against
// model.ChainRowCount and creating a default chain first if none exists
// under chainID. A chain's rows are a fixed-size array, so
// this is the only way an out-of-range row index can ever be surfaced
// through the command layer.
func SetChainRow(chainID model.ChainID, row int, phraseID *model.PhraseID, transpose int8) Command {
	return Command{
		Kind:        CmdSetChainRow,
		RowChainID:  chainID,
		Row:         row,
		RowPhraseID: phraseID,
		Transpose:   transpose,
	}
}

func SetTrackLevel(trackIndex int, level uint8) Command {
	return Command{Kind: CmdSetTrackLevel, TrackIndex: trackIndex, Level: level}
}

func SetMasterLevel(level uint8) Command { return Command{Kind: CmdSetMasterLevel, Level: level} }

// Engine owns the project and is the only thing allowed to mutate it.
type Engine struct {
	project model.ProjectData
}

func New(songName string) *Engine {
	return &Engine{project: model.NewProjectData(songName)}
}

// Snapshot returns a read-only borrow of the whole project. Callers must not
// mutate the returned value; the scheduler only ever reads it.
func (e *Engine) Snapshot() *model.ProjectData {
	return &e.project
}

func (e *Engine) Apply(cmd Command) error {
	switch cmd.Kind {
	case CmdSetTempo:
		if cmd.Tempo == 0 {
			return Error{Kind: ErrInvalidTempo}
		}
		e.project.Song.Tempo = cmd.Tempo
		return nil

	case CmdToggleTrackMute:
		track, err := e.trackPtr(cmd.TrackIndex)
		if err != nil {
			return err
		}
		track.Mute = !track.Mute
		return nil

	case CmdSetSongRowChain:
		track, err := e.trackPtr(cmd.TrackIndex)
		if err != nil {
			return err
		}
		if cmd.Row < 0 || cmd.Row >= model.SongRowCount {
			return Error{Kind: ErrInvalidSongRow, Index: cmd.Row}
		}
		track.SongRows[cmd.Row] = cmd.ChainID
		return nil

	case CmdUpsertChain:
		e.project.Chains[cmd.Chain.ID] = cmd.Chain
		return nil

	case CmdUpsertPhrase:
		e.project.Phrases[cmd.Phrase.ID] = cmd.Phrase
		return nil

	case CmdUpsertInstrument:
		e.project.Instruments[cmd.Instrument.ID] = cmd.Instrument
		return nil

	case CmdUpsertTable:
		e.project.Tables[cmd.Table.ID] = cmd.Table
		return nil

	case CmdUpsertGroove:
		e.project.Grooves[cmd.Groove.ID] = cmd.Groove
		return nil

	case CmdUpsertScale:
		e.project.Scales[cmd.Scale.ID] = cmd.Scale
		return nil

	case CmdSetDefaultGroove:
		e.project.Song.DefaultGroove = *cmd.GrooveID
		return nil

	case CmdSetDefaultScale:
		e.project.Song.DefaultScale = *cmd.ScaleID
		return nil

	case CmdSetTrackGrooveOverride:
		track, err := e.trackPtr(cmd.TrackIndex)
		if err != nil {
			return err
		}
		track.GrooveOverride = cmd.GrooveID
		return nil

	case CmdSetTrackScaleOverride:
		track, err := e.trackPtr(cmd.TrackIndex)
		if err != nil {
			return err
		}
		track.ScaleOverride = cmd.ScaleID
		return nil

	case CmdSetPhraseStep:
		return e.mutatePhraseStep(cmd.PhraseID, cmd.StepIndex, func(step *model.Step) {
			step.Note = cmd.Note
			step.Velocity = cmd.Velocity
			step.InstrumentID = cmd.InstrumentID
		})

	case CmdSetStepFx:
		if cmd.FxSlot < 0 || cmd.FxSlot >= model.StepFxSlots {
			return Error{Kind: ErrInvalidStep, Index: cmd.FxSlot}
		}
		return e.mutatePhraseStep(cmd.PhraseID, cmd.StepIndex, func(step *model.Step) {
			step.Fx[cmd.FxSlot] = cmd.Fx
		})

	case CmdSetChainRow:
		if cmd.Row < 0 || cmd.Row >= model.ChainRowCount {
			return Error{Kind: ErrInvalidChainRow, Index: cmd.Row}
		}
		chain, ok := e.project.Chains[cmd.RowChainID]
		if !ok {
			chain = model.NewChain(cmd.RowChainID)
		}
		chain.Rows[cmd.Row] = model.ChainRow{PhraseID: cmd.RowPhraseID, Transpose: cmd.Transpose}
		e.project.Chains[cmd.RowChainID] = chain
		return nil

	case CmdSetTrackLevel:
		if cmd.TrackIndex < 0 || cmd.TrackIndex >= model.TrackCount {
			return Error{Kind: ErrInvalidTrackIndex, Index: cmd.TrackIndex}
		}
		e.project.Mixer.TrackLevels[cmd.TrackIndex] = cmd.Level
		return nil

	case CmdSetMasterLevel:
		e.project.Mixer.MasterLevel = cmd.Level
		return nil

	default:
		return fmt.Errorf("engine: unrecognized command kind %d", cmd.Kind)
	}
}

func (e *Engine) trackPtr(trackIndex int) (*model.Track, error) {
	if trackIndex < 0 || trackIndex >= model.TrackCount {
		return nil, Error{Kind: ErrInvalidTrackIndex, Index: trackIndex}
	}
	return &e.project.Song.Tracks[trackIndex], nil
}

func (e *Engine) mutatePhraseStep(phraseID model.PhraseID, stepIndex int, mutate func(*model.Step)) error {
	if stepIndex < 0 || stepIndex >= model.PhraseStepCount {
		return Error{Kind: ErrInvalidStep, Index: stepIndex}
	}
	phrase, ok := e.project.Phrases[phraseID]
	if !ok {
		phrase = model.NewPhrase(phraseID)
	}
	mutate(&phrase.Steps[stepIndex])
	e.project.Phrases[phraseID] = phrase
	return nil
}
