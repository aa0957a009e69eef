// Package decode turns the raw bytes of an uploaded audio or video file into
// per-channel float32 samples at the file's native sample rate.
//
// Three decoders are provided:
//
//   - [Beep] decodes WAV, MP3, FLAC and Ogg Vorbis in pure Go via gopxl/beep.
//   - [FFmpeg] shells out to ffmpeg for every other container (mp4, m4a,
//     webm, mov, opus, …) and parses the WAV it produces with beep.
//   - [Chain] sniffs the container and tries each decoder in turn.
//
// Decoding failures are reported as [*Error], which callers treat as a
// non-retryable input problem.
package decode

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// Audio is the decoded, not yet normalised, content of a file.
type Audio struct {
	// Channels holds one sample slice per channel, all of equal length.
	Channels [][]float32

	// SampleRate is the native rate of the file in Hz.
	SampleRate int

	// MediaType is the sniffed container type, e.g. "audio/mpeg".
	MediaType string
}

// NumChannels returns the number of decoded channels.
func (a *Audio) NumChannels() int { return len(a.Channels) }

// Frames returns the number of samples per channel.
func (a *Audio) Frames() int {
	if len(a.Channels) == 0 {
		return 0
	}
	return len(a.Channels[0])
}

// Seconds returns the duration of the decoded audio.
func (a *Audio) Seconds() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(a.Frames()) / float64(a.SampleRate)
}

// Decoder decodes an in-memory file. The filename is used for diagnostics
// and as a container hint only.
type Decoder interface {
	Decode(ctx context.Context, data []byte, filename string) (*Audio, error)
}

// Supporter is implemented by decoders that can tell up front whether a
// sniffed container is worth attempting. [Chain] skips decoders that report
// false.
type Supporter interface {
	Supports(mt *mimetype.MIME) bool
}

// ErrEmpty is returned when the input has no bytes or decodes to no samples.
var ErrEmpty = errors.New("decode: no audio samples")

// ErrUnsupported is returned by a decoder asked for a container it cannot read.
var ErrUnsupported = errors.New("decode: unsupported container")

// Error reports a failure to decode a file.
type Error struct {
	Filename  string
	MediaType string
	Err       error
}

// Error formats the failure with the file name and sniffed type.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.MediaType == "" {
		return fmt.Sprintf("decode %q: %v", e.Filename, e.Err)
	}
	return fmt.Sprintf("decode %q (%s): %v", e.Filename, e.MediaType, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Sniff detects the container type of data.
func Sniff(data []byte) *mimetype.MIME {
	return mimetype.Detect(data)
}
