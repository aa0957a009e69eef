package app

import (
	"log/slog"

	"github.com/podcast2transcript/p2t/internal/config"
	"github.com/podcast2transcript/p2t/internal/worker"
	"github.com/podcast2transcript/p2t/internal/worker/mock"
)

// DefaultRegistry returns a registry holding the built-in backends:
//
//   - "whisper": whisper.cpp through cgo (a stub unless built with -tags whisper)
//   - "mock": returns a fixed transcript without loading anything
func DefaultRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.Register("whisper", func(c config.WorkerConfig) (worker.Backend, error) {
		if !worker.WhisperAvailable {
			slog.Warn("whisper backend selected but not compiled in; jobs will fail until rebuilt with -tags whisper")
		}
		return worker.NewWhisperBackend(c.ModelFile, c.Threads), nil
	})
	reg.Register("mock", func(config.WorkerConfig) (worker.Backend, error) {
		return &mock.Backend{Model: &mock.Model{Segments: []worker.Segment{
			{Text: " This is a mock transcript."},
		}}}, nil
	})
	return reg
}
