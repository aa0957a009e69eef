//go:build whisper

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperAvailable reports whether the whisper.cpp backend is compiled in.
const WhisperAvailable = true

// WhisperBackend runs inference with whisper.cpp through its cgo bindings.
type WhisperBackend struct {
	modelFile string
	threads   uint
}

var _ Backend = (*WhisperBackend)(nil)

// NewWhisperBackend returns a backend that loads the ggml model stored under
// the artifact named modelFile. When modelFile is empty the first artifact
// with a .bin extension is used. threads of 0 keeps the library default.
func NewWhisperBackend(modelFile string, threads uint) *WhisperBackend {
	return &WhisperBackend{modelFile: modelFile, threads: threads}
}

// Name implements [Backend].
func (b *WhisperBackend) Name() string { return "whisper.cpp" }

// LoadRuntime implements [Backend]. The library is linked statically, so
// there is nothing to fetch; the runtime only carries the settings.
func (b *WhisperBackend) LoadRuntime(ctx context.Context) (Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &whisperRuntime{backend: b}, nil
}

type whisperRuntime struct {
	backend *WhisperBackend
}

func (r *whisperRuntime) LoadModel(_ context.Context, files map[string]string) (Model, error) {
	path, err := r.modelPath(files)
	if err != nil {
		return nil, err
	}
	model, err := whisperlib.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	slog.Info("whisper model loaded", "path", path, "multilingual", model.IsMultilingual())
	return &whisperModel{model: model, threads: r.backend.threads}, nil
}

func (r *whisperRuntime) modelPath(files map[string]string) (string, error) {
	if r.backend.modelFile != "" {
		p, ok := files[r.backend.modelFile]
		if !ok {
			return "", fmt.Errorf("whisper: artifact %q not in manifest", r.backend.modelFile)
		}
		return p, nil
	}
	for name, p := range files {
		if strings.EqualFold(filepath.Ext(name), ".bin") {
			return p, nil
		}
	}
	return "", errors.New("whisper: no .bin model artifact in manifest")
}

func (r *whisperRuntime) Close() error { return nil }

type whisperModel struct {
	model   whisperlib.Model
	threads uint
}

// Transcribe creates a fresh context per window. Contexts are not safe for
// concurrent use; the model is.
func (m *whisperModel) Transcribe(ctx context.Context, samples []float32, opts DecodeOptions) ([]Segment, error) {
	wctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if opts.Language != "" {
		if err := wctx.SetLanguage(opts.Language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", opts.Language, "error", err)
		}
	}
	wctx.SetTranslate(false)
	if m.threads > 0 {
		wctx.SetThreads(m.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var segs []Segment
	for {
		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		segs = append(segs, Segment{Text: s.Text, Start: s.Start, End: s.End})
	}
	return segs, nil
}

func (m *whisperModel) Close() error { return m.model.Close() }
