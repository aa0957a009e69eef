package protocol

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestChunkJSON_NullEnd(t *testing.T) {
	b, err := Chunk{Text: " hi", Start: 1.5}.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if got, want := string(b), `{"text":" hi","timestamp":[1.5,null]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	var c Chunk
	if err := c.UnmarshalJSON([]byte(`{"text":"x","timestamp":[2,4.25]}`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if c.Start != 2 || c.End == nil || *c.End != 4.25 {
		t.Errorf("decoded %+v", c)
	}
}

func TestTranscribeEnvelopeCarriesRawSamples(t *testing.T) {
	b, err := Marshal(Transcribe{JobID: 7, Audio: []float32{0.5, -0.5}, Filename: "ep1.mp3"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `"type":"transcribe"`) || !strings.Contains(string(b), `"jobId":7`) {
		t.Errorf("envelope = %s", b)
	}

	m, err := UnmarshalHost(b)
	if err != nil {
		t.Fatalf("UnmarshalHost: %v", err)
	}
	tr, ok := m.(Transcribe)
	if !ok {
		t.Fatalf("got %T, want Transcribe", m)
	}
	if tr.JobID != 7 || tr.Filename != "ep1.mp3" || len(tr.Raw) != 8 || tr.Audio != nil {
		t.Errorf("decoded %+v", tr)
	}
}

func TestWorkerEnvelopes(t *testing.T) {
	msgs := []WorkerMessage{
		Log{JobID: 1, Message: "hello"},
		Progress{JobID: 1, Status: StatusDownloading, Message: "Downloading", Progress: 42.5},
		Complete{JobID: 1, Result: Result{Text: "hi", Chunks: []Chunk{{Text: "hi", Start: 0, End: Seconds(1)}}}},
		Error{JobID: 1, Message: "boom", Details: &ErrorDetails{Name: "InferenceError"}},
	}
	for _, m := range msgs {
		b, err := Marshal(m)
		if err != nil {
			t.Fatalf("Marshal(%T): %v", m, err)
		}
		got, err := UnmarshalWorker(b)
		if err != nil {
			t.Fatalf("UnmarshalWorker(%s): %v", b, err)
		}
		if fmt.Sprintf("%T", got) != fmt.Sprintf("%T", m) || got.Job() != 1 {
			t.Errorf("round trip of %T gave %T job %d", m, got, got.Job())
		}
	}

	if _, err := UnmarshalWorker([]byte(`{"type":"nope","jobId":1,"data":{}}`)); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(Progress{}) || IsTerminal(Log{}) {
		t.Error("non-terminal message reported terminal")
	}
	if !IsTerminal(Complete{}) || !IsTerminal(Error{}) {
		t.Error("terminal message not reported terminal")
	}
}

type kindErr struct{ err error }

func (e *kindErr) Error() string { return "inference failed: " + e.err.Error() }
func (e *kindErr) Unwrap() error { return e.err }
func (e *kindErr) Kind() string  { return "InferenceError" }

func TestNewError(t *testing.T) {
	cause := errors.New("out of memory")
	err := fmt.Errorf("worker: %w", &kindErr{err: cause})

	m := NewError(3, err)
	if m.JobID != 3 || m.Message != err.Error() {
		t.Errorf("got %+v", m)
	}
	if m.Details.Name != "InferenceError" {
		t.Errorf("Name = %q", m.Details.Name)
	}
	if !strings.HasSuffix(m.Details.Stack, "out of memory") {
		t.Errorf("Stack = %q", m.Details.Stack)
	}

	plain := NewError(4, errors.New("x"))
	if plain.Details.Name != "Error" || plain.Details.Stack != "" {
		t.Errorf("plain = %+v", plain.Details)
	}
}
