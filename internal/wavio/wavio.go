// Package wavio writes canonical RIFF/WAVE files: mono, 16-bit PCM, no
// extension chunks. It wraps go-audio/wav.Encoder, the same library the
// teacher already depends on (for reading, in internal/getbpm) so the
// module gets a real writer for the format instead of a hand-rolled one.
package wavio

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrTooLarge is returned when the sample count does not fit in a uint32.
type ErrTooLarge struct {
	SampleCount int
}

func (e ErrTooLarge) Error() string {
	return fmt.Sprintf("wavio: %d samples overflow the encoder buffer", e.SampleCount)
}

// WriteMonoPCM16 writes a complete RIFF/WAVE file containing the given mono
// 16-bit PCM samples to w, which must support Seek so the encoder can
// backpatch the RIFF and data chunk sizes once it knows the total length.
func WriteMonoPCM16(w io.WriteSeeker, sampleRateHz uint32, samples []int16) error {
	const bitDepth = 16
	const numChannels = 1
	const audioFormatPCM = 1

	if len(samples) > math.MaxUint32 {
		return ErrTooLarge{SampleCount: len(samples)}
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  int(sampleRateHz),
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	enc := wav.NewEncoder(w, int(sampleRateHz), bitDepth, numChannels, audioFormatPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavio: close: %w", err)
	}
	return nil
}
