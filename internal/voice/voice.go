// Package voice implements a bounded polyphonic voice allocator with
// release-aware stealing and lifecycle counters for click-risk diagnosis.
package voice

import "github.com/schollz/tonewheel/internal/model"

const (
	ZeroAttackThresholdMs  uint16 = 1
	ShortReleaseThresholdMs uint16 = 2
	ReleaseBlockMs          uint16 = 10
	MaxReleaseBlocks        uint16 = 64
)

// Voice is a single active (or releasing) note slot.
type Voice struct {
	TrackID             uint8
	Note                uint8
	Velocity            uint8
	InstrumentID        *model.InstrumentID
	Waveform            model.SynthWaveform
	AttackMs            uint16
	ReleaseMs           uint16
	Gain                uint8
	StartedAt           uint64
	IsReleasing         bool
	ReleasePendingBlocks uint16
}

// LifecycleStats summarizes allocator behavior for diagnostics and tests.
type LifecycleStats struct {
	NoteOnTotal           uint64
	NoteOffTotal          uint64
	NoteOffMissTotal      uint64
	RetriggerTotal        uint64
	ZeroAttackTotal       uint64
	ShortReleaseTotal     uint64
	ClickRiskTotal        uint64
	ReleaseDeferredTotal  uint64
	ReleaseCompletedTotal uint64
	ReleasePendingVoices  uint32
	StealReleasingTotal   uint64
	StealActiveTotal      uint64
	PolyphonyPressureTotal uint64
}

// Allocator is a fixed-size pool of voice slots. Note-on either reuses a
// matching slot, fills a free one, or steals — preferring a releasing voice
// over an actively-sounding one.
type Allocator struct {
	maxVoices         int
	slots             []*Voice
	activationCounter uint64

	voicesStolenTotal uint64
	stats             LifecycleStats
}

func NewAllocator(maxVoices int) *Allocator {
	bounded := maxVoices
	if bounded < 1 {
		bounded = 1
	}
	return &Allocator{
		maxVoices: bounded,
		slots:     make([]*Voice, bounded),
	}
}

func (a *Allocator) NoteOn(trackID, note, velocity uint8, instrumentID *model.InstrumentID, waveform model.SynthWaveform, attackMs, releaseMs uint16, gain uint8) {
	a.stats.NoteOnTotal++
	if attackMs <= ZeroAttackThresholdMs {
		a.stats.ZeroAttackTotal++
		a.stats.ClickRiskTotal++
	}

	a.activationCounter++
	v := &Voice{
		TrackID:      trackID,
		Note:         note,
		Velocity:     velocity,
		InstrumentID: instrumentID,
		Waveform:     waveform,
		AttackMs:     attackMs,
		ReleaseMs:    releaseMs,
		Gain:         gain,
		StartedAt:    a.activationCounter,
	}

	if index, ok := a.findVoiceSlot(trackID, note); ok {
		a.stats.RetriggerTotal++
		existing := a.slots[index]
		retriggerClickRisk := existing != nil &&
			(existing.AttackMs <= ZeroAttackThresholdMs || existing.ReleaseMs <= ShortReleaseThresholdMs)
		if retriggerClickRisk {
			a.stats.ClickRiskTotal++
		}
		a.slots[index] = v
		return
	}

	if index, ok := a.freeSlotIndex(); ok {
		a.slots[index] = v
		return
	}

	a.stats.PolyphonyPressureTotal++
	stealIndex, stoleReleasing := a.stealCandidateIndex()
	a.slots[stealIndex] = v
	a.voicesStolenTotal++
	if stoleReleasing {
		a.stats.StealReleasingTotal++
	} else {
		a.stats.StealActiveTotal++
		a.stats.ClickRiskTotal++
	}
}

// NoteOff releases a voice if one matches. It returns false if no matching
// voice was active.
func (a *Allocator) NoteOff(trackID, note uint8) bool {
	a.stats.NoteOffTotal++
	index, ok := a.findVoiceSlot(trackID, note)
	if !ok {
		a.stats.NoteOffMissTotal++
		return false
	}
	v := a.slots[index]
	if v == nil {
		a.stats.NoteOffMissTotal++
		return false
	}

	if v.ReleaseMs <= ShortReleaseThresholdMs {
		a.stats.ShortReleaseTotal++
		a.stats.ClickRiskTotal++
		a.slots[index] = nil
		return true
	}

	if v.IsReleasing {
		return true
	}

	v.IsReleasing = true
	v.ReleasePendingBlocks = releaseBlocksForMs(v.ReleaseMs)
	a.stats.ReleaseDeferredTotal++
	return true
}

// AdvanceReleaseEnvelopes ticks every releasing voice's pending-block
// countdown by one, clearing slots whose release has completed.
func (a *Allocator) AdvanceReleaseEnvelopes() {
	for i, v := range a.slots {
		if v == nil || !v.IsReleasing {
			continue
		}

		if v.ReleasePendingBlocks > 0 {
			v.ReleasePendingBlocks--
		}

		if v.ReleasePendingBlocks == 0 {
			a.slots[i] = nil
			a.stats.ReleaseCompletedTotal++
		}
	}
}

func (a *Allocator) ActiveVoiceCount() int {
	count := 0
	for _, v := range a.slots {
		if v != nil {
			count++
		}
	}
	return count
}

func (a *Allocator) MaxVoices() int { return a.maxVoices }

func (a *Allocator) VoicesStolenTotal() uint64 { return a.voicesStolenTotal }

func (a *Allocator) LifecycleStats() LifecycleStats {
	stats := a.stats
	var pending uint32
	for _, v := range a.slots {
		if v != nil && v.IsReleasing {
			pending++
		}
	}
	stats.ReleasePendingVoices = pending
	return stats
}

func (a *Allocator) findVoiceSlot(trackID, note uint8) (int, bool) {
	for i, v := range a.slots {
		if v != nil && v.TrackID == trackID && v.Note == note {
			return i, true
		}
	}
	return 0, false
}

func (a *Allocator) freeSlotIndex() (int, bool) {
	for i, v := range a.slots {
		if v == nil {
			return i, true
		}
	}
	return 0, false
}

func (a *Allocator) oldestVoiceIndex() int {
	oldestIndex := 0
	var oldestStarted uint64
	found := false
	for i, v := range a.slots {
		if v == nil {
			continue
		}
		if !found || v.StartedAt < oldestStarted {
			oldestIndex = i
			oldestStarted = v.StartedAt
			found = true
		}
	}
	return oldestIndex
}

func (a *Allocator) stealCandidateIndex() (int, bool) {
	releasingIndex := -1
	var bestPending uint16
	var bestStarted uint64

	for i, v := range a.slots {
		if v == nil || !v.IsReleasing {
			continue
		}
		if releasingIndex == -1 || v.ReleasePendingBlocks < bestPending ||
			(v.ReleasePendingBlocks == bestPending && v.StartedAt < bestStarted) {
			releasingIndex = i
			bestPending = v.ReleasePendingBlocks
			bestStarted = v.StartedAt
		}
	}

	if releasingIndex != -1 {
		return releasingIndex, true
	}

	return a.oldestVoiceIndex(), false
}

func releaseBlocksForMs(releaseMs uint16) uint16 {
	blocks := (releaseMs + ReleaseBlockMs - 1) / ReleaseBlockMs
	if blocks < 1 {
		return 1
	}
	if blocks > MaxReleaseBlocks {
		return MaxReleaseBlocks
	}
	return blocks
}
