package coordinator

import (
	"sync"
	"time"
)

// LogEntry is one line of the side-channel diagnostic log.
type LogEntry struct {
	Seq     int64     `json:"seq"`
	Time    time.Time `json:"time"`
	JobID   uint64    `json:"jobId,omitempty"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// LogRing keeps the most recent diagnostic entries.
type LogRing struct {
	mu      sync.RWMutex
	nextSeq int64
	max     int
	entries []LogEntry
	now     func() time.Time
}

// NewLogRing creates a ring holding at most max entries (20 when max <= 0).
func NewLogRing(max int) *LogRing {
	if max <= 0 {
		max = 20
	}
	return &LogRing{max: max, entries: make([]LogEntry, 0, max), now: time.Now}
}

// Add appends an entry, assigning sequence and timestamp, and evicts the
// oldest entries beyond capacity.
func (r *LogRing) Add(job uint64, msg string, data any) LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	e := LogEntry{Seq: r.nextSeq, Time: r.now(), JobID: job, Message: msg, Data: data}
	r.entries = append(r.entries, e)
	r.trimLocked()
	return e
}

// Entries returns a copy of the retained entries, oldest first.
func (r *LogRing) Entries() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]LogEntry(nil), r.entries...)
}

// Since returns entries with sequence strictly greater than seq.
func (r *LogRing) Since(seq int64) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []LogEntry
	for _, e := range r.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all entries. Sequence numbers keep increasing.
func (r *LogRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

// Resize changes the capacity, evicting the oldest entries if needed.
func (r *LogRing) Resize(max int) {
	if max <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.max = max
	r.trimLocked()
}

func (r *LogRing) trimLocked() {
	if len(r.entries) > r.max {
		trim := len(r.entries) - r.max
		r.entries = append([]LogEntry(nil), r.entries[trim:]...)
	}
}
