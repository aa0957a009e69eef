// Package preprocess converts an uploaded file into the 16 kHz mono float32
// buffer the transcription worker consumes, reporting progress checkpoints as
// it goes.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/podcast2transcript/p2t/internal/observe"
	"github.com/podcast2transcript/p2t/pkg/audio"
	"github.com/podcast2transcript/p2t/pkg/audio/decode"
)

// Checkpoint values reported while preprocessing.
const (
	ProgressDecoding   = 92.0
	ProgressAnalyzed   = 93.0
	ProgressDownmixing = 94.0
	ProgressResampling = 94.5
	ProgressDone       = 95.0
)

// ProgressFunc receives a checkpoint value and a human-readable message.
type ProgressFunc func(progress float64, message string)

// Result is the outcome of a successful preprocessing run.
type Result struct {
	Buffer audio.Buffer

	// Source describes the file as decoded, before conversion.
	Source audio.Format

	// MediaType is the sniffed container type.
	MediaType string
}

// Preprocessor decodes, downmixes and resamples audio files.
type Preprocessor struct {
	decoder decode.Decoder
	metrics *observe.Metrics
}

// Option configures a [Preprocessor].
type Option func(*Preprocessor)

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Preprocessor) { p.metrics = m }
}

// New returns a Preprocessor backed by dec.
func New(dec decode.Decoder, opts ...Option) *Preprocessor {
	p := &Preprocessor{decoder: dec}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Process decodes data and returns a 16 kHz mono buffer. Decode failures are
// returned as [*decode.Error] and must not be retried. onProgress may be nil.
func (p *Preprocessor) Process(ctx context.Context, data []byte, filename string, onProgress ProgressFunc) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "preprocess")
	defer span.End()
	start := time.Now()

	report := func(v float64, msg string) {
		if onProgress != nil {
			onProgress(v, msg)
		}
	}

	report(ProgressDecoding, "Decoding audio format...")
	decoded, err := p.decoder.Decode(ctx, data, filename)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	src := audio.Format{SampleRate: decoded.SampleRate, Channels: decoded.NumChannels()}
	layout := "mono"
	if src.Channels > 1 {
		layout = "stereo"
	}
	report(ProgressAnalyzed, fmt.Sprintf("Processing %s audio (%ds, %dHz)...",
		layout, int(math.Round(decoded.Seconds())), src.SampleRate))

	if src.Channels > 1 {
		report(ProgressDownmixing, "Converting stereo to mono audio...")
	}
	mono := audio.Downmix(decoded.Channels)

	if src.SampleRate != audio.ModelSampleRate {
		report(ProgressResampling, fmt.Sprintf("Resampling audio from %dHz to %dHz...", src.SampleRate, audio.ModelSampleRate))
		mono = audio.Resample(mono, src.SampleRate, audio.ModelSampleRate)
	}

	report(ProgressDone, "Audio preprocessing complete, sending to AI model...")
	p.metrics.PreprocessDuration.Record(ctx, time.Since(start).Seconds())

	observe.Logger(ctx).Debug("audio preprocessed",
		slog.String("file", filename),
		slog.String("type", decoded.MediaType),
		slog.String("source", src.String()),
		slog.Int("samples", len(mono)),
	)

	return &Result{
		Buffer:    audio.Buffer{Samples: mono, SampleRate: audio.ModelSampleRate},
		Source:    src,
		MediaType: decoded.MediaType,
	}, nil
}
