//go:build !whisper

package worker

import (
	"context"
	"errors"
)

// WhisperAvailable reports whether the whisper.cpp backend is compiled in.
const WhisperAvailable = false

// ErrWhisperDisabled is returned by the stub backend's LoadRuntime.
var ErrWhisperDisabled = errors.New("whisper.cpp support disabled (build with -tags whisper to enable)")

// WhisperBackend is a stand-in used when the binary is built without cgo
// whisper support. Every model load fails with [ErrWhisperDisabled].
type WhisperBackend struct {
	modelFile string
	threads   uint
}

var _ Backend = (*WhisperBackend)(nil)

// NewWhisperBackend returns the stub backend.
func NewWhisperBackend(modelFile string, threads uint) *WhisperBackend {
	return &WhisperBackend{modelFile: modelFile, threads: threads}
}

// Name implements [Backend].
func (b *WhisperBackend) Name() string { return "whisper.cpp" }

// LoadRuntime implements [Backend].
func (b *WhisperBackend) LoadRuntime(context.Context) (Runtime, error) {
	return nil, ErrWhisperDisabled
}
