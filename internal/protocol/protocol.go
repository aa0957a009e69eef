// Package protocol defines the messages exchanged between the coordinator
// and the transcription worker.
//
// Each direction has its own closed set of message types, modelled as an
// interface with an unexported marker method. Every message carries the job
// id it belongs to so the receiver can discard messages for superseded jobs.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Status is the coarse phase reported with each progress update.
type Status string

// Progress statuses.
const (
	StatusLoading      Status = "loading"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// HostMessage is a message sent from the coordinator to the worker.
type HostMessage interface {
	Job() uint64
	hostMessage()
}

// WorkerMessage is a message sent from the worker to the coordinator.
type WorkerMessage interface {
	Job() uint64
	workerMessage()
}

// Transcribe asks the worker to transcribe a preprocessed buffer. Audio holds
// 16 kHz mono samples. When a message arrives through a byte-oriented channel
// the samples may instead be carried as little-endian float32 bytes in Raw.
type Transcribe struct {
	JobID    uint64
	Audio    []float32
	Raw      []byte
	Filename string
}

// Log is a diagnostic line for the side-channel log.
type Log struct {
	JobID   uint64
	Message string
	Data    any
}

// Progress reports the latest percentage and message for a job.
type Progress struct {
	JobID    uint64
	Status   Status
	Message  string
	Progress float64
}

// Complete carries the final transcript of a job.
type Complete struct {
	JobID  uint64
	Result Result
}

// Error reports that a job failed.
type Error struct {
	JobID   uint64
	Message string
	Details *ErrorDetails
}

// ErrorDetails carries the error kind and the wrapped cause chain.
type ErrorDetails struct {
	Name  string `json:"name"`
	Stack string `json:"stack,omitempty"`
}

func (m Transcribe) Job() uint64 { return m.JobID }
func (m Log) Job() uint64        { return m.JobID }
func (m Progress) Job() uint64   { return m.JobID }
func (m Complete) Job() uint64   { return m.JobID }
func (m Error) Job() uint64      { return m.JobID }

func (Transcribe) hostMessage() {}

func (Log) workerMessage()      {}
func (Progress) workerMessage() {}
func (Complete) workerMessage() {}
func (Error) workerMessage()    {}

// IsTerminal reports whether m ends its job.
func IsTerminal(m WorkerMessage) bool {
	switch m.(type) {
	case Complete, Error:
		return true
	}
	return false
}

// Result is a finished transcript.
type Result struct {
	Text   string  `json:"text"`
	Chunks []Chunk `json:"chunks"`
}

// Chunk is one timestamped span of the transcript. Times are seconds from the
// start of the audio. End is nil when the model did not produce one.
type Chunk struct {
	Text  string
	Start float64
	End   *float64
}

type chunkJSON struct {
	Text      string      `json:"text"`
	Timestamp [2]*float64 `json:"timestamp"`
}

// MarshalJSON encodes the chunk as {"text": ..., "timestamp": [start, end|null]}.
func (c Chunk) MarshalJSON() ([]byte, error) {
	start := c.Start
	return json.Marshal(chunkJSON{Text: c.Text, Timestamp: [2]*float64{&start, c.End}})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (c *Chunk) UnmarshalJSON(b []byte) error {
	var raw chunkJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.Text = raw.Text
	c.Start = 0
	if raw.Timestamp[0] != nil {
		c.Start = *raw.Timestamp[0]
	}
	c.End = raw.Timestamp[1]
	return nil
}

// Seconds returns a pointer to v, for building chunks with an end time.
func Seconds(v float64) *float64 { return &v }

// kinded is implemented by the typed errors of the pipeline.
type kinded interface {
	Kind() string
}

// NewError normalises err into an [Error] message. Name is the error kind
// when err (or something it wraps) exposes one; Stack lists the wrapped
// cause chain, outermost first.
func NewError(jobID uint64, err error) Error {
	name := "Error"
	var k kinded
	if errors.As(err, &k) {
		name = k.Kind()
	}

	var chain []string
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}

	return Error{
		JobID:   jobID,
		Message: err.Error(),
		Details: &ErrorDetails{Name: name, Stack: strings.Join(chain, "\n")},
	}
}
