// Package runtime coordinates the scheduler, audio backend and MIDI I/O
// into a single per-cycle tick: apply queued transport commands, advance
// the scheduler if sync allows it, push events to audio, forward them to
// MIDI out, and report what happened.
package runtime

import (
	"github.com/schollz/tonewheel/internal/audio"
	"github.com/schollz/tonewheel/internal/events"
	"github.com/schollz/tonewheel/internal/midiwire"
	"github.com/schollz/tonewheel/internal/model"
	"github.com/schollz/tonewheel/internal/scheduler"
)

type SyncMode int

const (
	SyncInternal SyncMode = iota
	SyncExternalClock
)

type Command int

const (
	CommandStart Command = iota
	CommandStop
	CommandContinue
	CommandRewind
)

// TickReport is the full per-tick status surface: transport position,
// MIDI/audio throughput, and every voice-allocator lifecycle counter.
type TickReport struct {
	EventsEmitted            int
	MidiMessagesSent         int
	MidiClockMessagesSent    int
	MidiMessagesIngested     uint64
	Tick                     uint64
	IsPlaying                bool
	SyncMode                 SyncMode
	ExternalClockPending     uint32
	AudioBackend             string
	AudioCallbacksTotal      uint64
	AudioXrunsTotal          uint64
	AudioLastCallbackUs      uint32
	AudioAvgCallbackUs       uint32
	AudioBufferSizeFrames    uint32
	AudioSampleRateHz        uint32
	AudioActiveVoices        uint32
	AudioMaxVoices           uint32
	AudioVoicesStolenTotal   uint64

	AudioVoiceNoteOnTotal            uint64
	AudioVoiceNoteOffTotal           uint64
	AudioVoiceNoteOffMissTotal       uint64
	AudioVoiceRetriggerTotal         uint64
	AudioVoiceZeroAttackTotal        uint64
	AudioVoiceShortReleaseTotal      uint64
	AudioClickRiskTotal              uint64
	AudioVoiceReleaseDeferredTotal   uint64
	AudioVoiceReleaseCompletedTotal  uint64
	AudioVoiceReleasePendingVoices   uint32
	AudioVoiceStealReleasingTotal    uint64
	AudioVoiceStealActiveTotal       uint64
	AudioVoicePolyphonyPressureTotal uint64
	AudioVoiceSamplerModeNoteOnTotal uint64
	AudioVoiceSilentNoteOnTotal      uint64
}

// TransportSnapshot is a lightweight view of the coordinator's own state,
// without touching the audio backend.
type TransportSnapshot struct {
	Tick                      uint64
	IsPlaying                 bool
	SyncMode                  SyncMode
	ExternalClockPending      uint32
	QueuedCommands            int
	ProcessedCommands         uint64
	MidiMessagesIngestedTotal uint64
}

type Fault int

const (
	FaultTickPanic Fault = iota
)

func (f Fault) Error() string {
	switch f {
	case FaultTickPanic:
		return "runtime: tick panicked"
	default:
		return "runtime: unknown fault"
	}
}

// Coordinator owns the scheduler and the transport command queue. It is the
// single entry point that ties a tick of scheduling to audio and MIDI I/O.
type Coordinator struct {
	scheduler                 *scheduler.Scheduler
	syncMode                  SyncMode
	externalClockPending      uint32
	commandQueue              []Command
	processedCommands         uint64
	midiMessagesIngestedTotal uint64
}

func New(ppq uint16) *Coordinator {
	return &Coordinator{
		scheduler: scheduler.New(ppq),
		syncMode:  SyncInternal,
	}
}

func (c *Coordinator) SetSyncMode(mode SyncMode) {
	c.syncMode = mode
	if mode == SyncInternal {
		c.externalClockPending = 0
	}
}

func (c *Coordinator) EnqueueCommand(cmd Command) {
	c.commandQueue = append(c.commandQueue, cmd)
}

func (c *Coordinator) EnqueueCommands(cmds []Command) {
	c.commandQueue = append(c.commandQueue, cmds...)
}

// EnqueueMidiMessages decodes each message and turns transport bytes into
// queued commands (or external-clock pulses); non-transport bytes are
// ignored here since note data has no runtime-command meaning. Returns how
// many messages mapped to a command.
func (c *Coordinator) EnqueueMidiMessages(msgs []midiwire.Message) int {
	mapped := 0

	for _, msg := range msgs {
		c.midiMessagesIngestedTotal++

		decoded := midiwire.DecodeMessage(msg)
		switch decoded.Kind {
		case midiwire.DecodedStart:
			c.EnqueueCommand(CommandStart)
			mapped++
		case midiwire.DecodedContinue:
			c.EnqueueCommand(CommandContinue)
			mapped++
		case midiwire.DecodedStop:
			c.EnqueueCommand(CommandStop)
			mapped++
		case midiwire.DecodedClock:
			if c.syncMode == SyncExternalClock {
				c.externalClockPending++
			}
		}
	}

	return mapped
}

func (c *Coordinator) IngestMidiInput(input midiwire.Input) int {
	return c.EnqueueMidiMessages(input.Poll())
}

// RunCycle polls midiInput for new messages, then runs one tick.
func (c *Coordinator) RunCycle(project *model.ProjectData, backend audio.Backend, midiInput midiwire.Input, midiOutput midiwire.Output) TickReport {
	c.IngestMidiInput(midiInput)
	return c.RunTick(project, backend, midiOutput)
}

// RunCycleSafe is RunCycle with a panic recovered into a Fault, so a bad
// audio or MIDI backend can't take the whole process down.
func (c *Coordinator) RunCycleSafe(project *model.ProjectData, backend audio.Backend, midiInput midiwire.Input, midiOutput midiwire.Output) (report TickReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = FaultTickPanic
		}
	}()
	return c.RunCycle(project, backend, midiInput, midiOutput), nil
}

// RunTick applies any queued transport commands, advances the scheduler if
// sync mode allows it this cycle, pushes the resulting events to audio and
// MIDI out, and assembles a full status report.
func (c *Coordinator) RunTick(project *model.ProjectData, backend audio.Backend, midiOutput midiwire.Output) TickReport {
	c.applyQueuedCommands()

	tickEvents := c.maybeAdvance(project)

	backend.PushEvents(tickEvents)
	midiMessagesSent := midiwire.ForwardRenderEvents(tickEvents, midiOutput)

	midiClockMessagesSent := 0
	if c.syncMode == SyncInternal && c.scheduler.IsPlaying {
		midiOutput.Send(midiwire.Message{Status: 0xF8})
		midiMessagesSent++
		midiClockMessagesSent = 1
	}

	metrics := backend.Metrics()

	return TickReport{
		EventsEmitted:         len(tickEvents),
		MidiMessagesSent:      midiMessagesSent,
		MidiClockMessagesSent: midiClockMessagesSent,
		MidiMessagesIngested:  c.midiMessagesIngestedTotal,
		Tick:                  c.scheduler.CurrentTick,
		IsPlaying:             c.scheduler.IsPlaying,
		SyncMode:              c.syncMode,
		ExternalClockPending:  c.externalClockPending,
		AudioBackend:          backend.BackendName(),
		AudioCallbacksTotal:   metrics.CallbacksTotal,
		AudioXrunsTotal:       metrics.XrunsTotal,
		AudioLastCallbackUs:   metrics.LastCallbackUs,
		AudioAvgCallbackUs:    metrics.AvgCallbackUs,
		AudioBufferSizeFrames: metrics.BufferSizeFrames,
		AudioSampleRateHz:     metrics.SampleRateHz,
		AudioActiveVoices:     metrics.ActiveVoices,
		AudioMaxVoices:        metrics.MaxVoices,
		AudioVoicesStolenTotal: metrics.VoicesStolenTotal,

		AudioVoiceNoteOnTotal:            metrics.VoiceNoteOnTotal,
		AudioVoiceNoteOffTotal:           metrics.VoiceNoteOffTotal,
		AudioVoiceNoteOffMissTotal:       metrics.VoiceNoteOffMissTotal,
		AudioVoiceRetriggerTotal:         metrics.VoiceRetriggerTotal,
		AudioVoiceZeroAttackTotal:        metrics.VoiceZeroAttackTotal,
		AudioVoiceShortReleaseTotal:      metrics.VoiceShortReleaseTotal,
		AudioClickRiskTotal:              metrics.ClickRiskTotal,
		AudioVoiceReleaseDeferredTotal:   metrics.VoiceReleaseDeferredTotal,
		AudioVoiceReleaseCompletedTotal:  metrics.VoiceReleaseCompletedTotal,
		AudioVoiceReleasePendingVoices:   metrics.VoiceReleasePendingVoices,
		AudioVoiceStealReleasingTotal:    metrics.VoiceStealReleasingTotal,
		AudioVoiceStealActiveTotal:       metrics.VoiceStealActiveTotal,
		AudioVoicePolyphonyPressureTotal: metrics.VoicePolyphonyPressureTotal,
		AudioVoiceSamplerModeNoteOnTotal: metrics.VoiceSamplerModeNoteOnTotal,
		AudioVoiceSilentNoteOnTotal:      metrics.VoiceSilentNoteOnTotal,
	}
}

// RunTickSafe is RunTick with a panic recovered into a Fault.
func (c *Coordinator) RunTickSafe(project *model.ProjectData, backend audio.Backend, midiOutput midiwire.Output) (report TickReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = FaultTickPanic
		}
	}()
	return c.RunTick(project, backend, midiOutput), nil
}

func (c *Coordinator) Snapshot() TransportSnapshot {
	return TransportSnapshot{
		Tick:                      c.scheduler.CurrentTick,
		IsPlaying:                 c.scheduler.IsPlaying,
		SyncMode:                  c.syncMode,
		ExternalClockPending:      c.externalClockPending,
		QueuedCommands:            len(c.commandQueue),
		ProcessedCommands:         c.processedCommands,
		MidiMessagesIngestedTotal: c.midiMessagesIngestedTotal,
	}
}

func (c *Coordinator) applyQueuedCommands() {
	for len(c.commandQueue) > 0 {
		cmd := c.commandQueue[0]
		c.commandQueue = c.commandQueue[1:]
		c.applyCommand(cmd)
		c.processedCommands++
	}
}

func (c *Coordinator) applyCommand(cmd Command) {
	switch cmd {
	case CommandStart:
		c.scheduler.Start()
	case CommandStop:
		c.scheduler.Stop()
	case CommandContinue:
		c.scheduler.Start()
	case CommandRewind:
		c.scheduler.Rewind()
	}
}

func (c *Coordinator) maybeAdvance(project *model.ProjectData) []events.RenderEvent {
	if !c.shouldAdvanceTick() {
		return nil
	}
	return c.scheduler.Tick(project)
}

func (c *Coordinator) shouldAdvanceTick() bool {
	if !c.scheduler.IsPlaying {
		return false
	}

	switch c.syncMode {
	case SyncInternal:
		return true
	case SyncExternalClock:
		if c.externalClockPending == 0 {
			return false
		}
		c.externalClockPending--
		return true
	default:
		return false
	}
}
