package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gopxl/beep/wav"
)

// commandResult is the captured outcome of one process execution.
type commandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command feeding stdin and capturing stdout/stderr.
func (execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.Bytes(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// FFmpeg decodes any container ffmpeg understands. The file is piped through
// ffmpeg, which emits 16-bit WAV at the native sample rate with channels
// folded to mono or stereo; the WAV is then read with beep.
type FFmpeg struct {
	path   string
	runner commandRunner
}

var (
	_ Decoder   = (*FFmpeg)(nil)
	_ Supporter = (*FFmpeg)(nil)
)

// NewFFmpeg returns an FFmpeg decoder using the binary at path ("ffmpeg" when
// empty, resolved through PATH).
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, runner: execRunner{}}
}

// Supports reports true for any audio or video container and for unknown
// binary data, which ffmpeg may still recognise.
func (f *FFmpeg) Supports(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "audio/") || strings.HasPrefix(s, "video/") || s == "application/ogg" {
			return true
		}
	}
	return mt.Is("application/octet-stream")
}

// Decode implements [Decoder].
func (f *FFmpeg) Decode(ctx context.Context, data []byte, filename string) (*Audio, error) {
	mt := Sniff(data)
	if len(data) == 0 {
		return nil, &Error{Filename: filename, Err: ErrEmpty}
	}

	args := buildFFmpegArgs()
	res, err := f.runner.Run(ctx, data, f.path, args...)
	if err != nil {
		return nil, &Error{
			Filename:  filename,
			MediaType: mt.String(),
			Err:       fmt.Errorf("ffmpeg exited %d: %w: %s", res.ExitCode, err, lastLine(res.Stderr)),
		}
	}

	stream, format, err := wav.Decode(bytes.NewReader(res.Stdout))
	if err != nil {
		return nil, &Error{Filename: filename, MediaType: mt.String(), Err: fmt.Errorf("parse ffmpeg output: %w", err)}
	}
	defer stream.Close()

	channels, err := drainStream(ctx, stream, format.NumChannels, stream.Len(), wavScale(format.Precision))
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

// buildFFmpegArgs reads the input from stdin and writes 16-bit PCM WAV to
// stdout, dropping any video stream.
func buildFFmpegArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-af", "aformat=channel_layouts=mono|stereo",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
