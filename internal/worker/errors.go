package worker

import (
	"errors"
	"fmt"
)

// ErrNoAudio is wrapped by [*InputError] when a job carries no samples.
var ErrNoAudio = errors.New("no audio data provided")

// ErrTerminated is returned by [Worker.Post] after the worker has stopped.
var ErrTerminated = errors.New("worker: terminated")

// InputError reports unusable job input: an empty or malformed sample buffer,
// or a file the coordinator could not read or decode.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return "Invalid audio input: " + e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }
func (e *InputError) Kind() string  { return "InputError" }

// RuntimeLoadError reports a failure to load the inference runtime, fetch a
// model artifact or construct the model. The model handle is left
// uninitialised and the next job retries from scratch.
type RuntimeLoadError struct {
	// Stage is "runtime", "download" or "model".
	Stage string
	Err   error
}

func (e *RuntimeLoadError) Error() string {
	return fmt.Sprintf("Failed to initialize transcription model (%s): %v", e.Stage, e.Err)
}
func (e *RuntimeLoadError) Unwrap() error { return e.Err }
func (e *RuntimeLoadError) Kind() string  { return "RuntimeLoadError" }

// InferenceError reports a failure while the model was transcribing. The
// loaded model stays usable for later jobs.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return "Transcription failed: " + e.Err.Error() }
func (e *InferenceError) Unwrap() error { return e.Err }
func (e *InferenceError) Kind() string  { return "InferenceError" }

// TransportError reports that the worker itself failed: a panic while
// handling a message, or its message stream ending while a job was pending.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "Worker error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Kind() string  { return "TransportError" }
