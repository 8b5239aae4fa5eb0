// Package uiaction defines the action shape a tracker-style UI would send
// into the core: screen navigation, row/step selection, entity creation,
// chain-row binding, step editing and transport control. It composes only
// engine.Command and runtime.Command; it renders nothing and owns no
// terminal or window state, unlike the teacher's bubbletea-based views.
package uiaction

import (
	"fmt"

	"github.com/schollz/tonewheel/internal/engine"
	"github.com/schollz/tonewheel/internal/model"
	"github.com/schollz/tonewheel/internal/runtime"
)

// Screen is one of the tracker's navigable views.
type Screen int

const (
	ScreenSong Screen = iota
	ScreenChain
	ScreenPhrase
	ScreenInstrument
	ScreenMixer
)

// Cursor is a UI's current position within whichever screen is active. Not
// every field is meaningful on every screen.
type Cursor struct {
	Screen       Screen
	TrackIndex   int
	Row          int
	StepIndex    int
	FxSlot       int
	ChainID      model.ChainID
	PhraseID     model.PhraseID
	InstrumentID model.InstrumentID
}

type ActionKind int

const (
	ActionNavigate ActionKind = iota
	ActionSelectRow
	ActionSelectStep
	ActionEnsureEntity
	ActionBindRow
	ActionEditStep
	ActionTransport
)

// EntityKind names the arrangement entity an EnsureEntity action creates a
// default instance of if it doesn't already exist.
type EntityKind int

const (
	EntityChain EntityKind = iota
	EntityPhrase
	EntityInstrument
	EntityTable
	EntityGroove
	EntityScale
)

// Action is the tagged union of every UI-originated action. Only the fields
// relevant to Kind are meaningful.
type Action struct {
	Kind ActionKind

	Screen Screen

	TrackIndex int
	Row        int
	StepIndex  int

	EntityKind EntityKind
	EntityID   uint8

	ChainID  model.ChainID
	PhraseID *model.PhraseID

	Note         *uint8
	Velocity     uint8
	InstrumentID *model.InstrumentID
	FxSlot       int
	Fx           *model.FxCommand

	Command runtime.Command
}

func Navigate(screen Screen) Action { return Action{Kind: ActionNavigate, Screen: screen} }

func SelectRow(trackIndex, row int) Action {
	return Action{Kind: ActionSelectRow, TrackIndex: trackIndex, Row: row}
}

func SelectStep(stepIndex int) Action {
	return Action{Kind: ActionSelectStep, StepIndex: stepIndex}
}

func EnsureEntity(kind EntityKind, id uint8) Action {
	return Action{Kind: ActionEnsureEntity, EntityKind: kind, EntityID: id}
}

func BindRow(trackIndex, row int, chainID model.ChainID) Action {
	return Action{Kind: ActionBindRow, TrackIndex: trackIndex, Row: row, ChainID: chainID}
}

func EditStep(phraseID model.PhraseID, stepIndex int, note *uint8, velocity uint8, instrumentID *model.InstrumentID) Action {
	return Action{
		Kind: ActionEditStep, PhraseID: &phraseID, StepIndex: stepIndex,
		Note: note, Velocity: velocity, InstrumentID: instrumentID,
	}
}

func Transport(cmd runtime.Command) Action { return Action{Kind: ActionTransport, Command: cmd} }

// Dispatch applies action against the engine and/or the runtime coordinator,
// updating cursor for actions that are pure navigation/selection. Entity
// creation and step edits go through eng.Apply; transport toggles are
// queued on rt rather than applied immediately, matching how the runtime
// already batches commands ahead of its next tick.
func Dispatch(action Action, eng *engine.Engine, rt *runtime.Coordinator, cursor *Cursor) error {
	switch action.Kind {
	case ActionNavigate:
		cursor.Screen = action.Screen
		return nil

	case ActionSelectRow:
		cursor.TrackIndex = action.TrackIndex
		cursor.Row = action.Row
		return nil

	case ActionSelectStep:
		cursor.StepIndex = action.StepIndex
		return nil

	case ActionEnsureEntity:
		return ensureEntity(eng, action.EntityKind, action.EntityID)

	case ActionBindRow:
		return eng.Apply(engine.SetSongRowChain(action.TrackIndex, action.Row, &action.ChainID))

	case ActionEditStep:
		if action.PhraseID == nil {
			return fmt.Errorf("uiaction: edit step requires a phrase id")
		}
		return eng.Apply(engine.SetPhraseStep(*action.PhraseID, action.StepIndex, action.Note, action.Velocity, action.InstrumentID))

	case ActionTransport:
		rt.EnqueueCommand(action.Command)
		return nil

	default:
		return fmt.Errorf("uiaction: unknown action kind %d", action.Kind)
	}
}

// ensureEntity upserts a default instance of the named entity only if one
// doesn't already exist, so repeatedly navigating onto an empty slot in a
// UI doesn't clobber work in progress.
func ensureEntity(eng *engine.Engine, kind EntityKind, id uint8) error {
	project := eng.Snapshot()

	switch kind {
	case EntityChain:
		if _, ok := project.Chains[id]; ok {
			return nil
		}
		return eng.Apply(engine.UpsertChain(model.NewChain(id)))

	case EntityPhrase:
		if _, ok := project.Phrases[id]; ok {
			return nil
		}
		return eng.Apply(engine.UpsertPhrase(model.NewPhrase(id)))

	case EntityInstrument:
		if _, ok := project.Instruments[id]; ok {
			return nil
		}
		return eng.Apply(engine.UpsertInstrument(model.NewInstrument(id, model.InstrumentSynth, fmt.Sprintf("instrument-%d", id))))

	case EntityTable:
		if _, ok := project.Tables[id]; ok {
			return nil
		}
		return eng.Apply(engine.UpsertTable(model.NewTable(id)))

	case EntityGroove:
		if _, ok := project.Grooves[id]; ok {
			return nil
		}
		return eng.Apply(engine.UpsertGroove(model.Groove{ID: id, TicksPattern: []uint8{1}}))

	case EntityScale:
		if _, ok := project.Scales[id]; ok {
			return nil
		}
		return eng.Apply(engine.UpsertScale(model.Scale{ID: id, IntervalMask: 0x0FFF}))

	default:
		return fmt.Errorf("uiaction: unknown entity kind %d", kind)
	}
}
