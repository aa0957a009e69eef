package progress

import (
	"sync"
)

// DownloadTracker aggregates byte progress across the artifacts of one model
// load and yields a non-decreasing overall value in the download band. It is
// safe for concurrent use by parallel fetches.
type DownloadTracker struct {
	mu    sync.Mutex
	files map[string]filePct
	count int
	high  float64
}

type filePct struct {
	loaded, total int64
}

// NewDownloadTracker returns a tracker for a manifest of n artifacts. When n
// is zero the tracker sizes itself from the files it observes.
func NewDownloadTracker(n int) *DownloadTracker {
	return &DownloadTracker{files: make(map[string]filePct), count: n, high: DownloadStart}
}

// Update records the byte counts of one file and returns the overall progress
// together with a per-file message.
func (t *DownloadTracker) Update(name string, loaded, total int64) (overall float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.files[name] = filePct{loaded: loaded, total: total}

	n := max(t.count, len(t.files))
	var sum float64
	for _, f := range t.files {
		sum += float64(Percent(f.loaded, f.total))
	}
	v := Overall(sum / float64(n))
	if v > t.high {
		t.high = v
	}
	return t.high, FileMessage(name, loaded, total)
}

// Current returns the highest overall value reported so far.
func (t *DownloadTracker) Current() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.high
}
