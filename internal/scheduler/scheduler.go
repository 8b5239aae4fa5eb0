// Package scheduler walks the arrangement model one tick at a time and
// resolves it into an ordered sequence of render events, honoring groove
// timing, scale quantization, table modulation and step-level FX.
package scheduler

import (
	"github.com/schollz/tonewheel/internal/events"
	"github.com/schollz/tonewheel/internal/model"
)

// TrackPlaybackState is a single track's mutable position within the song.
type TrackPlaybackState struct {
	SongRow            int
	ChainRow           int
	PhraseStep         int
	TickInStep         uint8
	ActiveNote         *uint8
	NoteStepsRemaining *uint8
}

type stepPlaybackData struct {
	trackID         uint8
	note            uint8
	velocity        uint8
	renderMode      events.RenderMode
	samplerRender   model.SamplerRenderParams
	instrumentID    *model.InstrumentID
	noteLengthSteps uint8
	synthParams     model.SynthParams
	sendLevels      model.SendLevels
}

type instrumentPlaybackProfile struct {
	noteLengthSteps uint8
	synthParams     model.SynthParams
	renderMode      events.RenderMode
	samplerRender   model.SamplerRenderParams
	sendLevels      model.SendLevels
}

// Scheduler owns the per-tick transport and per-track playback positions. It
// is not reentrant and must be driven by a single owner.
type Scheduler struct {
	PPQ          uint16
	TicksPerStep uint8
	CurrentTick  uint64
	IsPlaying    bool
	TrackState   []TrackPlaybackState
}

func New(ppq uint16) *Scheduler {
	ticksPerStep := ppq / 4
	if ticksPerStep < 1 {
		ticksPerStep = 1
	}

	return &Scheduler{
		PPQ:          ppq,
		TicksPerStep: uint8(ticksPerStep),
		IsPlaying:    true,
		TrackState:   make([]TrackPlaybackState, model.TrackCount),
	}
}

func (s *Scheduler) Start() { s.IsPlaying = true }
func (s *Scheduler) Stop()  { s.IsPlaying = false }

func (s *Scheduler) Rewind() {
	s.CurrentTick = 0
	for i := range s.TrackState {
		s.TrackState[i] = TrackPlaybackState{}
	}
}

// Tick advances every track by one tick and returns the render events
// produced, in track-index order.
func (s *Scheduler) Tick(project *model.ProjectData) []events.RenderEvent {
	if !s.IsPlaying {
		return nil
	}

	var out []events.RenderEvent

	for trackIndex := range project.Song.Tracks {
		if !s.trackIsAudible(project, trackIndex) {
			s.forceNoteOffIfActive(project, trackIndex, &out)
			s.advanceOneTick(project, trackIndex)
			continue
		}

		s.ensurePlayablePosition(project, trackIndex)

		if s.TrackState[trackIndex].TickInStep == 0 {
			s.processStepBoundary(project, trackIndex, &out)
		}

		s.advanceOneTick(project, trackIndex)
	}

	s.CurrentTick++
	return out
}

func (s *Scheduler) trackIsAudible(project *model.ProjectData, trackIndex int) bool {
	hasSolo := false
	for i := range project.Song.Tracks {
		if project.Song.Tracks[i].Solo {
			hasSolo = true
			break
		}
	}

	track := &project.Song.Tracks[trackIndex]
	if hasSolo {
		return track.Solo && !track.Mute
	}
	return !track.Mute
}

func (s *Scheduler) ensurePlayablePosition(project *model.ProjectData, trackIndex int) {
	state := &s.TrackState[trackIndex]
	if s.isChainRowPlayable(project, trackIndex, state.SongRow, state.ChainRow) {
		return
	}

	state.SongRow = s.nextSongRowWithChain(project, trackIndex, state.SongRow)
	state.ChainRow = 0
	state.PhraseStep = 0
	state.TickInStep = 0
}

func (s *Scheduler) processStepBoundary(project *model.ProjectData, trackIndex int, out *[]events.RenderEvent) {
	s.emitScheduledNoteOff(project, trackIndex, out)

	stepData, ok := s.resolveStepData(project, trackIndex)
	if !ok {
		return
	}

	s.forceNoteOffIfActive(project, trackIndex, out)

	instrumentID := (*uint8)(nil)
	if stepData.instrumentID != nil {
		id := *stepData.instrumentID
		instrumentID = &id
	}

	track := &project.Song.Tracks[trackIndex]
	*out = append(*out, events.RenderEvent{
		Kind:                  events.RenderEventNoteOn,
		TrackID:               stepData.trackID,
		Note:                  stepData.note,
		Velocity:              stepData.velocity,
		RenderMode:            stepData.renderMode,
		InstrumentID:          instrumentID,
		Waveform:              stepData.synthParams.Waveform,
		AttackMs:              stepData.synthParams.AttackMs,
		ReleaseMs:             stepData.synthParams.ReleaseMs,
		Gain:                  stepData.synthParams.Gain,
		SamplerVariant:        stepData.samplerRender.Variant,
		SamplerTransientLevel: stepData.samplerRender.TransientLevel,
		SamplerBodyLevel:      stepData.samplerRender.BodyLevel,
		TrackLevel:            project.Mixer.TrackLevels[track.Index],
		MasterLevel:           project.Mixer.MasterLevel,
		SendMfx:               stepData.sendLevels.Mfx,
		SendDelay:             stepData.sendLevels.Delay,
		SendReverb:            stepData.sendLevels.Reverb,
	})

	state := &s.TrackState[trackIndex]
	note := stepData.note
	state.ActiveNote = &note
	length := stepData.noteLengthSteps
	if length < 1 {
		length = 1
	}
	if length > 16 {
		length = 16
	}
	state.NoteStepsRemaining = &length
}

func (s *Scheduler) emitScheduledNoteOff(project *model.ProjectData, trackIndex int, out *[]events.RenderEvent) {
	if trackIndex >= len(project.Song.Tracks) {
		return
	}
	track := &project.Song.Tracks[trackIndex]
	state := &s.TrackState[trackIndex]

	if state.ActiveNote == nil || state.NoteStepsRemaining == nil {
		return
	}

	note := *state.ActiveNote
	remaining := *state.NoteStepsRemaining

	if remaining <= 1 {
		*out = append(*out, events.NoteOff(track.Index, note))
		state.ActiveNote = nil
		state.NoteStepsRemaining = nil
	} else {
		remaining--
		state.NoteStepsRemaining = &remaining
	}
}

func (s *Scheduler) forceNoteOffIfActive(project *model.ProjectData, trackIndex int, out *[]events.RenderEvent) {
	state := &s.TrackState[trackIndex]
	if state.ActiveNote == nil || trackIndex >= len(project.Song.Tracks) {
		return
	}

	track := &project.Song.Tracks[trackIndex]
	*out = append(*out, events.NoteOff(track.Index, *state.ActiveNote))
	state.ActiveNote = nil
	state.NoteStepsRemaining = nil
}

func (s *Scheduler) resolveStepData(project *model.ProjectData, trackIndex int) (stepPlaybackData, bool) {
	track := &project.Song.Tracks[trackIndex]
	state := &s.TrackState[trackIndex]

	chainID := track.SongRows[state.SongRow]
	if chainID == nil {
		return stepPlaybackData{}, false
	}
	chain, ok := project.Chains[*chainID]
	if !ok {
		return stepPlaybackData{}, false
	}
	if state.ChainRow >= model.ChainRowCount {
		return stepPlaybackData{}, false
	}
	chainRow := chain.Rows[state.ChainRow]
	if chainRow.PhraseID == nil {
		return stepPlaybackData{}, false
	}
	phrase, ok := project.Phrases[*chainRow.PhraseID]
	if !ok {
		return stepPlaybackData{}, false
	}
	if state.PhraseStep >= model.PhraseStepCount {
		return stepPlaybackData{}, false
	}
	step := phrase.Steps[state.PhraseStep]
	if step.Note == nil {
		return stepPlaybackData{}, false
	}

	baseNote := applyTranspose(*step.Note, chainRow.Transpose)
	noteI16 := int16(baseNote)
	velocity := step.Velocity

	profile := s.resolveInstrumentProfile(project, step.InstrumentID)
	renderMode := profile.renderMode
	samplerRender := profile.samplerRender
	noteLengthSteps := profile.noteLengthSteps
	synthParams := profile.synthParams

	noteI16, velocity, noteLengthSteps = applyFxCommands(noteI16, velocity, noteLengthSteps, step.Fx[:])

	if tableRow, ok := s.resolveTableRow(project, step.InstrumentID, state.PhraseStep); ok {
		noteI16 += int16(tableRow.NoteOffset)
		velocity = uint8((uint16(velocity) * uint16(tableRow.Volume)) / 127)
		noteI16, velocity, noteLengthSteps = applyFxCommands(noteI16, velocity, noteLengthSteps, tableRow.Fx[:])
	}

	note := clampNote(noteI16)
	note = s.applyScale(project, trackIndex, note)

	return stepPlaybackData{
		trackID:         track.Index,
		note:            note,
		velocity:        velocity,
		renderMode:      renderMode,
		samplerRender:   samplerRender,
		instrumentID:    step.InstrumentID,
		noteLengthSteps: noteLengthSteps,
		synthParams:     synthParams,
		sendLevels:      profile.sendLevels,
	}, true
}

func (s *Scheduler) resolveInstrumentProfile(project *model.ProjectData, instrumentID *model.InstrumentID) instrumentPlaybackProfile {
	if instrumentID == nil {
		return instrumentPlaybackProfile{
			noteLengthSteps: 1,
			synthParams:     model.DefaultSynthParams(),
			renderMode:      events.RenderModeSynth,
			samplerRender:   model.DefaultSamplerRenderParams(),
		}
	}

	instrument, ok := project.Instruments[*instrumentID]
	if !ok {
		return instrumentPlaybackProfile{
			noteLengthSteps: 1,
			synthParams:     model.DefaultSynthParams(),
			renderMode:      events.RenderModeSynth,
			samplerRender:   model.DefaultSamplerRenderParams(),
		}
	}

	noteLengthSteps := instrument.NoteLengthSteps
	if noteLengthSteps < 1 {
		noteLengthSteps = 1
	}
	synthParams := instrument.SynthParams
	samplerRender := model.DefaultSamplerRenderParams()
	if instrument.SamplerRender != nil {
		samplerRender = *instrument.SamplerRender
	}

	var renderMode events.RenderMode
	switch instrument.Type {
	case model.InstrumentSynth, model.InstrumentNone:
		renderMode = events.RenderModeSynth
	case model.InstrumentSampler:
		renderMode = events.RenderModeSamplerV1
	case model.InstrumentMidiOut, model.InstrumentExternal:
		renderMode = events.RenderModeExternalMuted
	}

	switch instrument.Type {
	case model.InstrumentSynth:
		// no adjustment
	case model.InstrumentSampler:
		if synthParams.AttackMs > 1 {
			synthParams.AttackMs = 1
		}
		if synthParams.ReleaseMs < 24 {
			synthParams.ReleaseMs = 24
		}
		if noteLengthSteps < 2 {
			noteLengthSteps = 2
		}
		if samplerRender.TransientLevel > 127 {
			samplerRender.TransientLevel = 127
		}
		if samplerRender.BodyLevel > 127 {
			samplerRender.BodyLevel = 127
		}
	case model.InstrumentMidiOut, model.InstrumentExternal:
		synthParams.Gain = 0
		if synthParams.AttackMs > 1 {
			synthParams.AttackMs = 1
		}
		if synthParams.ReleaseMs > 16 {
			synthParams.ReleaseMs = 16
		}
	case model.InstrumentNone:
		noteLengthSteps = 1
		synthParams = model.DefaultSynthParams()
	}

	return instrumentPlaybackProfile{
		noteLengthSteps: noteLengthSteps,
		synthParams:     synthParams,
		renderMode:      renderMode,
		samplerRender:   samplerRender,
		sendLevels:      instrument.SendLevels,
	}
}

func (s *Scheduler) resolveTableRow(project *model.ProjectData, instrumentID *model.InstrumentID, phraseStep int) (model.TableRow, bool) {
	if instrumentID == nil {
		return model.TableRow{}, false
	}
	instrument, ok := project.Instruments[*instrumentID]
	if !ok || instrument.TableID == nil {
		return model.TableRow{}, false
	}
	table, ok := project.Tables[*instrument.TableID]
	if !ok {
		return model.TableRow{}, false
	}
	if len(table.Rows) == 0 {
		return model.TableRow{}, false
	}
	index := phraseStep % len(table.Rows)
	return table.Rows[index], true
}

func applyFxCommands(noteI16 int16, velocity, noteLengthSteps uint8, commands []*model.FxCommand) (int16, uint8, uint8) {
	for _, command := range commands {
		if command == nil {
			continue
		}
		switch command.Code {
		case "VOL":
			velocity = command.Value
		case "TRN":
			transpose := int16(command.Value) - 48
			noteI16 += transpose
		case "LEN":
			noteLengthSteps = clampLength(command.Value)
		}
	}
	return noteI16, velocity, noteLengthSteps
}

func clampLength(value uint8) uint8 {
	if value < 1 {
		return 1
	}
	if value > 16 {
		return 16
	}
	return value
}

func applyTranspose(note uint8, transpose int8) uint8 {
	value := int16(note) + int16(transpose)
	return clampNote(value)
}

func clampNote(value int16) uint8 {
	if value < 0 {
		return 0
	}
	if value > 127 {
		return 127
	}
	return uint8(value)
}

func (s *Scheduler) applyScale(project *model.ProjectData, trackIndex int, note uint8) uint8 {
	scale, ok := s.effectiveScale(project, trackIndex)
	if !ok {
		return note
	}
	return quantizeToScale(note, scale)
}

func (s *Scheduler) effectiveScale(project *model.ProjectData, trackIndex int) (model.Scale, bool) {
	track := &project.Song.Tracks[trackIndex]
	scaleID := project.Song.DefaultScale
	if track.ScaleOverride != nil {
		scaleID = *track.ScaleOverride
	}
	scale, ok := project.Scales[scaleID]
	return scale, ok
}

func quantizeToScale(note uint8, scale model.Scale) uint8 {
	if scale.IntervalMask == 0 {
		return note
	}

	key := scale.Key % 12
	isAllowed := func(pitchClass uint8) bool {
		interval := (12 + int(pitchClass) - int(key)) % 12
		return (scale.IntervalMask>>uint(interval))&1 != 0
	}

	basePC := note % 12
	if isAllowed(basePC) {
		return note
	}

	for distance := uint8(1); distance <= 12; distance++ {
		if note >= distance {
			down := note - distance
			if isAllowed(down % 12) {
				return down
			}
		}
		if note <= 127-distance {
			up := note + distance
			if isAllowed(up % 12) {
				return up
			}
		}
	}

	return note
}

func (s *Scheduler) ticksForCurrentStep(project *model.ProjectData, trackIndex int) uint8 {
	state := &s.TrackState[trackIndex]
	track := &project.Song.Tracks[trackIndex]

	chainID := track.SongRows[state.SongRow]
	if chainID == nil {
		return s.TicksPerStep
	}
	_, ok := project.Chains[*chainID]
	if !ok {
		return s.TicksPerStep
	}
	if state.ChainRow >= model.ChainRowCount {
		return s.TicksPerStep
	}

	groove, ok := s.effectiveGroove(project, trackIndex)
	if !ok || len(groove.TicksPattern) == 0 {
		return s.TicksPerStep
	}

	patternIndex := state.PhraseStep % len(groove.TicksPattern)
	value := groove.TicksPattern[patternIndex]
	if value == 0 {
		return 1
	}
	return value
}

func (s *Scheduler) effectiveGroove(project *model.ProjectData, trackIndex int) (model.Groove, bool) {
	track := &project.Song.Tracks[trackIndex]
	grooveID := project.Song.DefaultGroove
	if track.GrooveOverride != nil {
		grooveID = *track.GrooveOverride
	}
	groove, ok := project.Grooves[grooveID]
	return groove, ok
}

func (s *Scheduler) advanceOneTick(project *model.ProjectData, trackIndex int) {
	ticksNeeded := s.ticksForCurrentStep(project, trackIndex)
	if ticksNeeded < 1 {
		ticksNeeded = 1
	}

	state := &s.TrackState[trackIndex]
	songRow := state.SongRow
	chainRow := state.ChainRow
	phraseStep := state.PhraseStep
	tickInStep := state.TickInStep + 1

	if tickInStep >= ticksNeeded {
		tickInStep = 0
		phraseStep++

		if phraseStep >= model.PhraseStepCount {
			phraseStep = 0
			chainRow++

			if !s.isChainRowPlayable(project, trackIndex, songRow, chainRow) {
				chainRow = 0
				songRow = s.nextSongRowWithChain(project, trackIndex, songRow)
			}
		}
	}

	state.SongRow = songRow
	state.ChainRow = chainRow
	state.PhraseStep = phraseStep
	state.TickInStep = tickInStep
}

func (s *Scheduler) isChainRowPlayable(project *model.ProjectData, trackIndex, songRow, chainRow int) bool {
	track := &project.Song.Tracks[trackIndex]

	if songRow < 0 || songRow >= model.SongRowCount {
		return false
	}
	chainID := track.SongRows[songRow]
	if chainID == nil {
		return false
	}
	chain, ok := project.Chains[*chainID]
	if !ok {
		return false
	}
	if chainRow < 0 || chainRow >= model.ChainRowCount {
		return false
	}
	row := chain.Rows[chainRow]
	if row.PhraseID == nil {
		return false
	}
	_, ok = project.Phrases[*row.PhraseID]
	return ok
}

func (s *Scheduler) nextSongRowWithChain(project *model.ProjectData, trackIndex, fromRow int) int {
	track := &project.Song.Tracks[trackIndex]

	validChain := func(chainID model.ChainID) bool {
		_, ok := project.Chains[chainID]
		return ok
	}

	for row := fromRow + 1; row < model.SongRowCount; row++ {
		if chainID := track.SongRows[row]; chainID != nil && validChain(*chainID) {
			return row
		}
	}

	limit := fromRow
	if limit > model.SongRowCount-1 {
		limit = model.SongRowCount - 1
	}
	for row := 0; row <= limit; row++ {
		if chainID := track.SongRows[row]; chainID != nil && validChain(*chainID) {
			return row
		}
	}

	return 0
}
