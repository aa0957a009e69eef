// Package mock provides test doubles for the worker backend interfaces.
//
// Use Backend to script runtime and model failures and to count how often a
// model was built. Model returns the configured segments for every window.
//
// Example:
//
//	m := &mock.Model{Segments: []worker.Segment{{Text: " hi", End: time.Second}}}
//	b := &mock.Backend{Model: m}
//	w := worker.New(ctx, b, fetcher, manifest)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/podcast2transcript/p2t/internal/worker"
)

// Backend is a mock implementation of worker.Backend.
type Backend struct {
	mu sync.Mutex

	// BackendName is returned by Name. Defaults to "mock".
	BackendName string

	// RuntimeErr, if non-nil, is returned by LoadRuntime.
	RuntimeErr error

	// ModelErr, if non-nil, is returned by the runtime's LoadModel.
	ModelErr error

	// LoadDelay is slept inside LoadRuntime.
	LoadDelay time.Duration

	// Model is returned by LoadModel. If nil a Model with no segments is used.
	Model *Model

	// RuntimeLoads counts LoadRuntime calls; ModelLoads counts LoadModel calls.
	RuntimeLoads int
	ModelLoads   int

	// Files is the file map passed to the last LoadModel call.
	Files map[string]string
}

var _ worker.Backend = (*Backend)(nil)

// Name implements worker.Backend.
func (b *Backend) Name() string {
	if b.BackendName == "" {
		return "mock"
	}
	return b.BackendName
}

// LoadRuntime implements worker.Backend.
func (b *Backend) LoadRuntime(ctx context.Context) (worker.Runtime, error) {
	b.mu.Lock()
	b.RuntimeLoads++
	err, delay := b.RuntimeErr, b.LoadDelay
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &runtime{b: b}, nil
}

// SetErrors replaces the scripted errors.
func (b *Backend) SetErrors(runtimeErr, modelErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.RuntimeErr, b.ModelErr = runtimeErr, modelErr
}

// Counts returns the runtime and model load counters.
func (b *Backend) Counts() (runtimeLoads, modelLoads int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.RuntimeLoads, b.ModelLoads
}

type runtime struct {
	b *Backend
}

func (r *runtime) LoadModel(_ context.Context, files map[string]string) (worker.Model, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	r.b.ModelLoads++
	r.b.Files = files
	if r.b.ModelErr != nil {
		return nil, r.b.ModelErr
	}
	if r.b.Model == nil {
		r.b.Model = &Model{}
	}
	return r.b.Model, nil
}

func (r *runtime) Close() error { return nil }

// Model is a mock implementation of worker.Model.
type Model struct {
	mu sync.Mutex

	// Segments is returned for every window.
	Segments []worker.Segment

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Delay is slept inside Transcribe.
	Delay time.Duration

	// Windows records the length of every window passed to Transcribe.
	Windows []int

	// Options records the options of the last call.
	Options worker.DecodeOptions

	// Closed is set by Close.
	Closed bool
}

var _ worker.Model = (*Model)(nil)

// Transcribe implements worker.Model.
func (m *Model) Transcribe(ctx context.Context, samples []float32, opts worker.DecodeOptions) ([]worker.Segment, error) {
	m.mu.Lock()
	m.Windows = append(m.Windows, len(samples))
	m.Options = opts
	err, delay := m.Err, m.Delay
	segs := append([]worker.Segment(nil), m.Segments...)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return segs, nil
}

// SetErr replaces the scripted Transcribe error.
func (m *Model) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// WindowCount returns how many windows have been transcribed.
func (m *Model) WindowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Windows)
}

// Close implements worker.Model.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
