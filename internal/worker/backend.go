package worker

import (
	"context"
	"time"
)

// Backend loads an inference runtime. Implementations are registered by name
// in the config registry.
type Backend interface {
	// Name identifies the backend in logs and configuration.
	Name() string

	// LoadRuntime prepares the inference engine. It is called at most once per
	// successful model load.
	LoadRuntime(ctx context.Context) (Runtime, error)
}

// Runtime is a loaded inference engine able to construct models.
type Runtime interface {
	// LoadModel builds the model from downloaded artifacts. files maps each
	// artifact name to its path in the local cache.
	LoadModel(ctx context.Context, files map[string]string) (Model, error)

	Close() error
}

// Model is a loaded speech-to-text model. Transcribe is never called
// concurrently on the same model.
type Model interface {
	// Transcribe runs inference over one window of 16 kHz mono samples and
	// returns its segments with times relative to the window start.
	Transcribe(ctx context.Context, samples []float32, opts DecodeOptions) ([]Segment, error)

	Close() error
}

// DecodeOptions controls one inference call.
type DecodeOptions struct {
	// Language is the ISO 639-1 spoken language, e.g. "en".
	Language string
}

// Segment is a span of recognised text. End is zero when the model produced
// no end time.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}
