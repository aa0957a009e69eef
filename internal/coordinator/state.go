package coordinator

import (
	"time"

	"github.com/podcast2transcript/p2t/internal/protocol"
)

// Phase is the coordinator-side lifecycle of the current file and job.
type Phase string

// Phases.
const (
	PhaseIdle           Phase = "idle"
	PhaseFileSelected   Phase = "file_selected"
	PhasePreprocessing  Phase = "preprocessing"
	PhaseAwaitingWorker Phase = "awaiting_worker"
	PhaseComplete       Phase = "complete"
	PhaseError          Phase = "error"
)

// Stage refines [PhaseAwaitingWorker].
type Stage string

// Worker stages.
const (
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
)

// Terminal reports whether p ends a job.
func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseError }

// isValidTransition reports whether the coordinator may move from one phase
// to another. A new selection or a restart may supersede a job at any point;
// Error is reachable from every phase but Idle.
func isValidTransition(from, to Phase) bool {
	if to == PhaseIdle {
		return from != PhaseIdle
	}
	switch from {
	case PhaseIdle:
		return to == PhaseFileSelected
	case PhaseFileSelected:
		return to == PhaseFileSelected || to == PhasePreprocessing || to == PhaseError
	case PhasePreprocessing:
		return to == PhaseAwaitingWorker || to == PhaseError || to == PhaseFileSelected || to == PhasePreprocessing
	case PhaseAwaitingWorker:
		return to == PhaseAwaitingWorker || to == PhaseComplete || to == PhaseError ||
			to == PhaseFileSelected || to == PhasePreprocessing
	case PhaseComplete, PhaseError:
		return to == PhaseFileSelected || to == PhasePreprocessing
	default:
		return false
	}
}

// FileInfo describes the selected file.
type FileInfo struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
}

// ProgressView is the latest progress shown for the current job.
type ProgressView struct {
	Status   protocol.Status `json:"status"`
	Message  string          `json:"message,omitempty"`
	Progress float64         `json:"progress"`
}

// ErrorView describes a failed job.
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Snapshot is an immutable copy of the coordinator state, suitable for
// rendering or serialising.
type Snapshot struct {
	Phase     Phase            `json:"phase"`
	Stage     Stage            `json:"stage,omitempty"`
	JobID     uint64           `json:"jobId,omitempty"`
	File      *FileInfo        `json:"file,omitempty"`
	Progress  *ProgressView    `json:"progress,omitempty"`
	Notice    string           `json:"notice,omitempty"`
	ShowLogs  bool             `json:"showLogs"`
	Result    *protocol.Result `json:"result,omitempty"`
	Error     *ErrorView       `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// clone returns a deep enough copy that callers cannot mutate coordinator
// state through it. Result is shared; it is never modified after delivery.
func (s Snapshot) clone() Snapshot {
	if s.File != nil {
		f := *s.File
		s.File = &f
	}
	if s.Progress != nil {
		p := *s.Progress
		s.Progress = &p
	}
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	return s
}
