package audio

import (
	"math"
)

// Downmix folds per-channel sample slices into a single mono channel. A single
// channel is copied unchanged. With two or more channels every output sample is
// the arithmetic mean of the inputs at that index; channels shorter than the
// first are treated as silent past their end.
func Downmix(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	first := channels[0]
	out := make([]float32, len(first))
	if len(channels) == 1 {
		copy(out, first)
		return out
	}

	n := float32(len(channels))
	for i := range out {
		var sum float32
		for _, ch := range channels {
			if i < len(ch) {
				sum += ch[i]
			}
		}
		out[i] = sum / n
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. The output has round(len*dst/src) samples. The upper
// neighbour of each interpolation pair is clamped to the last input index, so
// the tail repeats the final sample rather than reading past the end. If the
// rates match (or either is non-positive) a copy of the input is returned.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(math.Round(float64(len(samples)) * ratio))
	if outLen == 0 {
		return nil
	}

	last := len(samples) - 1
	out := make([]float32, outLen)
	for i := range outLen {
		pos := float64(i) / ratio
		lo := int(math.Floor(pos))
		if lo > last {
			lo = last
		}
		hi := min(lo+1, last)
		w := pos - float64(lo)
		out[i] = float32(float64(samples[lo])*(1-w) + float64(samples[hi])*w)
	}
	return out
}

// ToModelInput downmixes and resamples decoded channels to a 16 kHz mono
// [Buffer].
func ToModelInput(channels [][]float32, srcRate int) Buffer {
	mono := Downmix(channels)
	if srcRate != ModelSampleRate {
		mono = Resample(mono, srcRate, ModelSampleRate)
	}
	return Buffer{Samples: mono, SampleRate: ModelSampleRate}
}

// PCM16ToFloat32 converts little-endian int16 PCM bytes to float32 samples
// normalised to [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}
