package decode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// streamChunk is the number of frames pulled from a beep stream per call.
const streamChunk = 4096

// Beep decodes WAV, MP3, FLAC and Ogg Vorbis without external processes.
type Beep struct{}

var (
	_ Decoder   = Beep{}
	_ Supporter = Beep{}
)

type beepFormat struct {
	mime   string
	decode func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)
}

var beepFormats = []beepFormat{
	{"audio/wav", func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(rc) }},
	{"audio/mpeg", mp3.Decode},
	{"audio/flac", func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(rc) }},
	{"audio/ogg", vorbis.Decode},
}

func lookupBeepFormat(mt *mimetype.MIME) (beepFormat, bool) {
	for _, f := range beepFormats {
		if mt.Is(f.mime) {
			return f, true
		}
	}
	return beepFormat{}, false
}

// Supports reports whether mt is one of the containers beep can read.
func (Beep) Supports(mt *mimetype.MIME) bool {
	_, ok := lookupBeepFormat(mt)
	return ok
}

// Decode implements [Decoder].
func (b Beep) Decode(ctx context.Context, data []byte, filename string) (*Audio, error) {
	if len(data) == 0 {
		return nil, &Error{Filename: filename, Err: ErrEmpty}
	}
	mt := Sniff(data)
	f, ok := lookupBeepFormat(mt)
	if !ok {
		return nil, &Error{Filename: filename, MediaType: mt.String(), Err: ErrUnsupported}
	}

	stream, format, err := f.decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, &Error{Filename: filename, MediaType: mt.String(), Err: err}
	}
	defer stream.Close()

	var scale func(float64) float64
	if f.mime == "audio/wav" {
		scale = wavScale(format.Precision)
	}
	channels, err := drainStream(ctx, stream, format.NumChannels, stream.Len(), scale)
	if err != nil {
		return nil, &Error{Filename: filename, MediaType: mt.String(), Err: err}
	}
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, &Error{Filename: filename, MediaType: mt.String(), Err: ErrEmpty}
	}
	return &Audio{
		Channels:   channels,
		SampleRate: int(format.SampleRate),
		MediaType:  mt.String(),
	}, nil
}

// wavScale maps beep's WAV samples back onto [-1, 1). The v1 WAV decoder
// divides signed PCM by 2^bits-1 instead of 2^(bits-1), and maps 8-bit
// unsigned PCM around 127.5 instead of 128.
func wavScale(precision int) func(float64) float64 {
	switch precision {
	case 1:
		return func(v float64) float64 {
			raw := math.Round((v + 1) * (1<<8 - 1) / 2)
			return (raw - 128) / 128
		}
	case 2:
		return func(v float64) float64 { return v * (1<<16 - 1) / (1 << 15) }
	case 3:
		return func(v float64) float64 { return v * (1<<24 - 1) / (1 << 23) }
	default:
		return nil
	}
}

// drainStream reads s to the end, splitting beep's stereo frames into
// numChannels slices. beep duplicates mono sources into both sides, so a mono
// file yields one channel. scale, when non-nil, is applied to every sample.
func drainStream(ctx context.Context, s beep.Streamer, numChannels, sizeHint int, scale func(float64) float64) ([][]float32, error) {
	if numChannels < 1 {
		numChannels = 1
	}
	if numChannels > 2 {
		return nil, fmt.Errorf("decode: %d channels not supported by beep", numChannels)
	}
	if sizeHint < 0 {
		sizeHint = 0
	}
	channels := make([][]float32, numChannels)
	for i := range channels {
		channels[i] = make([]float32, 0, sizeHint)
	}

	buf := make([][2]float64, streamChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			if scale != nil {
				frame[0], frame[1] = scale(frame[0]), scale(frame[1])
			}
			channels[0] = append(channels[0], float32(frame[0]))
			if numChannels == 2 {
				channels[1] = append(channels[1], float32(frame[1]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}
