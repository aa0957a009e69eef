package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/podcast2transcript/p2t/pkg/audio"
)

// Envelope type tags.
const (
	TypeTranscribe = "transcribe"
	TypeLog        = "log"
	TypeProgress   = "progress"
	TypeComplete   = "complete"
	TypeError      = "error"
)

type envelope struct {
	Type  string          `json:"type"`
	JobID uint64          `json:"jobId"`
	Data  json.RawMessage `json:"data"`
}

type transcribeData struct {
	Audio    []byte `json:"audio"`
	Filename string `json:"filename"`
}

type logData struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type progressData struct {
	Status   Status  `json:"status"`
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
}

type errorData struct {
	Message string        `json:"message"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// Marshal encodes a message of either direction as a {type, jobId, data}
// envelope.
func Marshal(m interface{ Job() uint64 }) ([]byte, error) {
	var (
		typ  string
		data any
	)
	switch v := m.(type) {
	case Transcribe:
		raw := v.Raw
		if raw == nil {
			raw = audio.SamplesToBytes(v.Audio)
		}
		typ, data = TypeTranscribe, transcribeData{Audio: raw, Filename: v.Filename}
	case Log:
		typ, data = TypeLog, logData{Message: v.Message, Data: v.Data}
	case Progress:
		typ, data = TypeProgress, progressData{Status: v.Status, Message: v.Message, Progress: v.Progress}
	case Complete:
		typ, data = TypeComplete, v.Result
	case Error:
		typ, data = TypeError, errorData{Message: v.Message, Details: v.Details}
	default:
		return nil, fmt.Errorf("protocol: cannot marshal %T", m)
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", typ, err)
	}
	return json.Marshal(envelope{Type: typ, JobID: m.Job(), Data: b})
}

// UnmarshalHost decodes a coordinator-to-worker envelope. Transcribe audio is
// returned in Raw; the worker coerces it to samples.
func UnmarshalHost(b []byte) (HostMessage, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	switch env.Type {
	case TypeTranscribe:
		var d transcribeData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
		}
		return Transcribe{JobID: env.JobID, Raw: d.Audio, Filename: d.Filename}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown host message type %q", env.Type)
	}
}

// UnmarshalWorker decodes a worker-to-coordinator envelope.
func UnmarshalWorker(b []byte) (WorkerMessage, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	decode := func(v any) error {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("protocol: decode %s: %w", env.Type, err)
		}
		return nil
	}
	switch env.Type {
	case TypeLog:
		var d logData
		if err := decode(&d); err != nil {
			return nil, err
		}
		return Log{JobID: env.JobID, Message: d.Message, Data: d.Data}, nil
	case TypeProgress:
		var d progressData
		if err := decode(&d); err != nil {
			return nil, err
		}
		return Progress{JobID: env.JobID, Status: d.Status, Message: d.Message, Progress: d.Progress}, nil
	case TypeComplete:
		var r Result
		if err := decode(&r); err != nil {
			return nil, err
		}
		return Complete{JobID: env.JobID, Result: r}, nil
	case TypeError:
		var d errorData
		if err := decode(&d); err != nil {
			return nil, err
		}
		return Error{JobID: env.JobID, Message: d.Message, Details: d.Details}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown worker message type %q", env.Type)
	}
}
