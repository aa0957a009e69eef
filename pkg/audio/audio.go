// Package audio holds the sample buffer type shared by the preprocessor and the
// transcription worker, plus the channel and rate conversions that turn a
// decoded file into the 16 kHz mono signal the speech model expects.
//
// Samples are 32-bit floats in [-1, 1]. A [Buffer] is produced once per job by
// the preprocessor and handed to the worker; the sender must not touch it
// afterwards.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ModelSampleRate is the sample rate, in Hz, required by the speech model.
const ModelSampleRate = 16000

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String renders the format as "16000Hz mono" or "44100Hz 2ch".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Buffer is a mono float32 sample sequence at a known rate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Seconds returns the playback length in seconds.
func (b Buffer) Seconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// ErrMisalignedSamples is returned by [SamplesFromBytes] when the byte slice
// length is not a multiple of four.
var ErrMisalignedSamples = errors.New("audio: byte length is not a multiple of 4")

// SamplesToBytes encodes samples as little-endian IEEE-754 float32 values.
func SamplesToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// SamplesFromBytes decodes little-endian float32 values. It is the inverse of
// [SamplesToBytes] and is used when samples arrive as a raw byte view.
func SamplesFromBytes(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrMisalignedSamples, len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
