package worker

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a worker's model handle.
type State int

// Handle states.
const (
	StateUninitialized State = iota
	StateLoadingRuntime
	StateLoadingModel
	StateReady
	StateTranscribing
	StateErrored
)

var stateNames = [...]string{"uninitialized", "loading_runtime", "loading_model", "ready", "transcribing", "errored"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// modelHandle is the lazily created runtime and model shared by all jobs of
// one worker. A failed load leaves it empty so the next caller retries.
type modelHandle struct {
	mu      sync.Mutex
	state   State
	runtime Runtime
	model   Model
	loads   int

	group singleflight.Group
}

// ready returns the loaded model, or nil.
func (h *modelHandle) ready() Model {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model
}

func (h *modelHandle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *modelHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Loads returns how many times a model has been successfully loaded.
func (h *modelHandle) Loads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loads
}

// ensure returns the loaded model, running load when there is none. Callers
// arriving while a load is in flight wait for it instead of starting another.
// reused is true when the model was already loaded on entry.
func (h *modelHandle) ensure(load func() (Runtime, Model, error)) (m Model, reused bool, err error) {
	if m := h.ready(); m != nil {
		return m, true, nil
	}
	v, err, _ := h.group.Do("model", func() (any, error) {
		if m := h.ready(); m != nil {
			return m, nil
		}
		rt, m, err := load()
		if err != nil {
			h.setState(StateErrored)
			return nil, err
		}
		h.mu.Lock()
		h.runtime, h.model = rt, m
		h.state = StateReady
		h.loads++
		h.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(Model), false, nil
}

// release closes the model and runtime and returns the handle to its
// uninitialised state.
func (h *modelHandle) release() error {
	h.mu.Lock()
	rt, m := h.runtime, h.model
	h.runtime, h.model = nil, nil
	h.state = StateUninitialized
	h.mu.Unlock()

	var first error
	if m != nil {
		first = m.Close()
	}
	if rt != nil {
		if err := rt.Close(); first == nil {
			first = err
		}
	}
	return first
}
