// Package renderwav synthesizes a project to a mono 16-bit PCM WAV file
// offline: it drives the scheduler tick by tick, feeds the resulting render
// events into a small additive-oscillator voice bank with send-effect
// returns, and writes the mixed signal with wavio.
package renderwav

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/schollz/tonewheel/internal/events"
	"github.com/schollz/tonewheel/internal/model"
	"github.com/schollz/tonewheel/internal/scheduler"
	"github.com/schollz/tonewheel/internal/wavio"
)

// Config tunes an offline render: how many ticks to run the scheduler for,
// at what PPQ, and at what sample rate.
type Config struct {
	SampleRateHz uint32
	PPQ          uint16
	Ticks        uint64
}

func DefaultConfig() Config {
	return Config{SampleRateHz: 48000, PPQ: 24, Ticks: 96}
}

// Report summarizes a completed render.
type Report struct {
	SampleRateHz    uint32
	TicksRendered   uint64
	EventsRendered  int
	SamplesRendered uint32
	PeakAbsSample   int16
}

// Error is a validation or I/O failure from RenderToFile.
type Error struct {
	Reason      string
	Tempo       uint16
	PPQ         uint16
	Ticks       uint64
	SampleCount int
	Err         error
}

func (e *Error) Error() string {
	switch e.Reason {
	case "tempo":
		return fmt.Sprintf("renderwav: invalid tempo %d", e.Tempo)
	case "ppq":
		return fmt.Sprintf("renderwav: invalid ppq %d", e.PPQ)
	case "ticks":
		return fmt.Sprintf("renderwav: invalid tick count %d", e.Ticks)
	case "too_large":
		return fmt.Sprintf("renderwav: %d samples too large to encode", e.SampleCount)
	case "io":
		return fmt.Sprintf("renderwav: %v", e.Err)
	default:
		return "renderwav: render failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

type voiceRenderMode int

const (
	voiceStandard voiceRenderMode = iota
	voiceSamplerV1
)

type activeVoice struct {
	trackID uint8
	note    uint8
	waveform model.SynthWaveform
	mode    voiceRenderMode

	sendMfx    float64
	sendDelay  float64
	sendReverb float64

	samplerVariant         model.SamplerRenderVariant
	samplerTransientLevel  float64
	samplerBodyLevel       float64

	phase       float64
	phaseInc    float64
	amplitude   float64

	elapsedSamples          uint32
	attackSamples           uint32
	releaseSamples          uint32
	releaseProgressSamples  uint32
	releasing               bool
}

// fxState carries the mfx/delay/reverb return buses across the whole render,
// the way a continuous fx send bus would in a live engine.
type fxState struct {
	delayLine  []float64
	delayIndex int
	reverbLp   float64
}

func newFxState(sampleRateHz uint32) *fxState {
	delaySamples := int(sampleRateHz / 8)
	if delaySamples < 1 {
		delaySamples = 1
	}
	return &fxState{delayLine: make([]float64, delaySamples)}
}

func (f *fxState) processReturns(sendMfx, sendDelay, sendReverb float64) float64 {
	mfx := softClip(sendMfx*1.8) * 0.42

	delayed := f.delayLine[f.delayIndex]
	delayInput := sendDelay + delayed*0.45
	f.delayLine[f.delayIndex] = delayInput
	f.delayIndex = (f.delayIndex + 1) % len(f.delayLine)
	delayOut := delayed * 0.34

	f.reverbLp = f.reverbLp*0.82 + sendReverb*0.18
	reverbOut := f.reverbLp * 0.28

	return clamp(mfx+delayOut+reverbOut, -1, 1)
}

func softClip(v float64) float64 { return v / (1 + math.Abs(v)) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RenderToFile runs the scheduler for config.Ticks ticks against project,
// synthesizes the audio, and writes it as a WAV file at path.
func RenderToFile(project *model.ProjectData, path string, config Config) (Report, error) {
	samples, report, err := Render(project, config)
	if err != nil {
		return Report{}, err
	}

	f, err := os.Create(path)
	if err != nil {
		return Report{}, &Error{Reason: "io", Err: err}
	}
	defer f.Close()

	if err := wavio.WriteMonoPCM16(f, config.SampleRateHz, samples); err != nil {
		var tooLarge wavio.ErrTooLarge
		if errors.As(err, &tooLarge) {
			return Report{}, &Error{Reason: "too_large", SampleCount: tooLarge.SampleCount, Err: err}
		}
		return Report{}, &Error{Reason: "io", Err: err}
	}

	return report, nil
}

// Render runs the scheduler for config.Ticks ticks against project and
// returns the synthesized mono 16-bit PCM samples plus a report, without
// touching the filesystem.
func Render(project *model.ProjectData, config Config) ([]int16, Report, error) {
	if config.PPQ == 0 {
		return nil, Report{}, &Error{Reason: "ppq", PPQ: config.PPQ}
	}
	if config.Ticks == 0 {
		return nil, Report{}, &Error{Reason: "ticks", Ticks: config.Ticks}
	}
	tempo := project.Song.Tempo
	if tempo == 0 {
		return nil, Report{}, &Error{Reason: "tempo", Tempo: tempo}
	}

	samplesPerTick := samplesPerTick(config.SampleRateHz, tempo, config.PPQ)

	if config.Ticks > math.MaxUint32/uint64(samplesPerTick) {
		sampleCount := math.MaxInt
		if config.Ticks <= math.MaxInt/uint64(samplesPerTick) {
			sampleCount = int(uint64(samplesPerTick) * config.Ticks)
		}
		return nil, Report{}, &Error{Reason: "too_large", SampleCount: sampleCount}
	}

	sched := scheduler.New(config.PPQ)
	var voices []activeVoice
	fx := newFxState(config.SampleRateHz)

	samples := make([]int16, 0, samplesPerTick*int(config.Ticks))
	eventsRendered := 0
	var peakAbsSample int16

	for tick := uint64(0); tick < config.Ticks; tick++ {
		tickEvents := sched.Tick(project)
		eventsRendered += len(tickEvents)

		for _, ev := range tickEvents {
			voices = applyEvent(voices, ev, float64(config.SampleRateHz))
		}

		for i := 0; i < samplesPerTick; i++ {
			var sample float64
			voices, sample = synthesizeSampleRouted(voices, fx)
			clamped := clamp(sample, -1, 1)
			sampleI16 := int16(clamped * math.MaxInt16)
			if abs16(sampleI16) > peakAbsSample {
				peakAbsSample = abs16(sampleI16)
			}
			samples = append(samples, sampleI16)
		}
	}

	return samples, Report{
		SampleRateHz:    config.SampleRateHz,
		TicksRendered:   config.Ticks,
		EventsRendered:  eventsRendered,
		SamplesRendered: uint32(len(samples)),
		PeakAbsSample:   peakAbsSample,
	}, nil
}

func abs16(v int16) int16 {
	if v < 0 {
		if v == math.MinInt16 {
			return math.MaxInt16
		}
		return -v
	}
	return v
}

func samplesPerTick(sampleRateHz uint32, tempo, ppq uint16) int {
	ticksPerSecond := (float64(tempo) * float64(ppq)) / 60.0
	perTick := math.Round(float64(sampleRateHz) / ticksPerSecond)
	if perTick < 1 {
		perTick = 1
	}
	return int(perTick)
}

func applyEvent(voices []activeVoice, ev events.RenderEvent, sampleRateHz float64) []activeVoice {
	switch ev.Kind {
	case events.RenderEventNoteOn:
		filtered := voices[:0]
		for _, v := range voices {
			if !(v.trackID == ev.TrackID && v.note == ev.Note) {
				filtered = append(filtered, v)
			}
		}
		voices = filtered

		if ev.Gain == 0 || ev.RenderMode == events.RenderModeExternalMuted {
			return voices
		}

		freqHz := 440.0 * math.Pow(2, (float64(ev.Note)-69.0)/12.0)
		phaseInc := 2 * math.Pi * (freqHz / math.Max(sampleRateHz, 1))
		velocityGain := float64(ev.Velocity) / 127.0
		instrumentGain := float64(ev.Gain) / 127.0
		trackGain := clamp(float64(ev.TrackLevel)/127.0, 0, 1)
		masterGain := clamp(float64(ev.MasterLevel)/127.0, 0, 1)

		mode := voiceStandard
		if ev.RenderMode == events.RenderModeSamplerV1 {
			mode = voiceSamplerV1
		}
		modeGain := 0.22
		if mode == voiceSamplerV1 {
			modeGain = 0.28
		}

		voices = append(voices, activeVoice{
			trackID:               ev.TrackID,
			note:                  ev.Note,
			waveform:              ev.Waveform,
			mode:                  mode,
			sendMfx:               clamp(float64(ev.SendMfx)/127.0, 0, 1),
			sendDelay:             clamp(float64(ev.SendDelay)/127.0, 0, 1),
			sendReverb:            clamp(float64(ev.SendReverb)/127.0, 0, 1),
			samplerVariant:        ev.SamplerVariant,
			samplerTransientLevel: float64(ev.SamplerTransientLevel) / 127.0,
			samplerBodyLevel:      float64(ev.SamplerBodyLevel) / 127.0,
			phaseInc:              phaseInc,
			amplitude:             clamp(velocityGain*instrumentGain*trackGain*masterGain*modeGain, 0, 1),
			attackSamples:         msToSamples(ev.AttackMs, sampleRateHz),
			releaseSamples:        msToSamples(ev.ReleaseMs, sampleRateHz),
		})
		return voices

	case events.RenderEventNoteOff:
		for i := range voices {
			if voices[i].trackID == ev.TrackID && voices[i].note == ev.Note {
				voices[i].releasing = true
				voices[i].releaseProgressSamples = 0
			}
		}
		return voices
	}
	return voices
}

func synthesizeSampleRouted(voices []activeVoice, fx *fxState) ([]activeVoice, float64) {
	if len(voices) == 0 {
		return voices, fx.processReturns(0, 0, 0)
	}

	var dryMixed, sendMfx, sendDelay, sendReverb float64

	for i := range voices {
		v := &voices[i]
		osc := oscillatorSample(v)
		env := envelopeSample(v)
		sample := osc * v.amplitude * env

		totalSend := clamp(v.sendMfx+v.sendDelay+v.sendReverb, 0, 1)
		dryScale := clamp(1-totalSend*0.6, 0.4, 1)
		dryMixed += sample * dryScale
		sendMfx += sample * v.sendMfx
		sendDelay += sample * v.sendDelay
		sendReverb += sample * v.sendReverb

		v.phase += v.phaseInc
		if v.phase >= 2*math.Pi {
			v.phase -= 2 * math.Pi
		}
		v.elapsedSamples++
		if v.releasing && v.releaseSamples > 0 {
			v.releaseProgressSamples++
		}
	}

	kept := voices[:0]
	for _, v := range voices {
		if !v.releasing {
			kept = append(kept, v)
			continue
		}
		if v.releaseSamples == 0 {
			continue
		}
		if v.releaseProgressSamples < v.releaseSamples {
			kept = append(kept, v)
		}
	}

	returns := fx.processReturns(sendMfx, sendDelay, sendReverb)
	return kept, clamp(dryMixed+returns, -1, 1)
}

func oscillatorSample(v *activeVoice) float64 {
	switch v.mode {
	case voiceSamplerV1:
		base := waveformSample(v.waveform, v.phase)
		sine := math.Sin(v.phase)

		var variantBaseMix, variantSineMix, variantTransientScale float64
		switch v.samplerVariant {
		case model.SamplerVariantPunch:
			variantBaseMix, variantSineMix, variantTransientScale = 0.58, 0.42, 1.25
		case model.SamplerVariantAir:
			variantBaseMix, variantSineMix, variantTransientScale = 0.76, 0.24, 0.85
		default:
			variantBaseMix, variantSineMix, variantTransientScale = 0.65, 0.35, 1.0
		}

		bodyMix := clamp(v.samplerBodyLevel, 0, 1)
		transientMix := clamp(v.samplerTransientLevel, 0, 1)
		baseWeight := clamp(variantBaseMix*bodyMix, 0, 1)
		sineWeight := clamp(variantSineMix*(1-bodyMix*0.5), 0, 1)
		weightSum := math.Max(baseWeight+sineWeight, 1e-6)
		body := ((base * baseWeight) + (sine * sineWeight)) / weightSum

		transientWindow := clamp(1-(float64(v.elapsedSamples)/96.0), 0, 1)
		transient := transientWindow * (math.Abs(math.Sin(v.phase*2))*2 - 1) * transientMix * variantTransientScale

		return clamp(body+transient*0.25, -1, 1)
	default:
		return waveformSample(v.waveform, v.phase)
	}
}

func waveformSample(waveform model.SynthWaveform, phase float64) float64 {
	switch waveform {
	case model.WaveformSine:
		return math.Sin(phase)
	case model.WaveformSquare:
		if math.Sin(phase) >= 0 {
			return 1
		}
		return -1
	case model.WaveformSaw:
		return (phase / math.Pi) - 1
	case model.WaveformTriangle:
		normalized := phase / (2 * math.Pi)
		return 2*math.Abs(2*(normalized-math.Floor(normalized+0.5))) - 1
	default:
		return 0
	}
}

func envelopeSample(v *activeVoice) float64 {
	attackEnv := 1.0
	if v.attackSamples != 0 {
		attackEnv = clamp(float64(v.elapsedSamples)/float64(v.attackSamples), 0, 1)
	}

	releaseEnv := 1.0
	if v.releasing {
		if v.releaseSamples == 0 {
			releaseEnv = 0
		} else {
			releaseEnv = clamp(1-(float64(v.releaseProgressSamples)/float64(v.releaseSamples)), 0, 1)
		}
	}

	return attackEnv * releaseEnv
}

func msToSamples(ms uint16, sampleRateHz float64) uint32 {
	if ms == 0 {
		return 0
	}
	samples := math.Round((float64(ms) / 1000.0) * sampleRateHz)
	if samples < 1 {
		samples = 1
	}
	return uint32(samples)
}
