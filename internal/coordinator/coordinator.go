// Package coordinator owns the lifecycle of a single transcription job on
// the host side. It runs preprocessing, posts buffers to a lazily spawned
// worker, filters the worker's messages by job id, and arms a watchdog that
// surfaces the diagnostic log when a model download stalls.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/podcast2transcript/p2t/internal/observe"
	"github.com/podcast2transcript/p2t/internal/preprocess"
	"github.com/podcast2transcript/p2t/internal/protocol"
	"github.com/podcast2transcript/p2t/internal/sched"
	"github.com/podcast2transcript/p2t/internal/worker"
)

// Defaults.
const (
	DefaultWatchdogTimeout = 45 * time.Second
	DefaultLogEntries      = 20
)

// Messages shown by the coordinator itself.
const (
	msgPreparing     = "Preparing transcription model..."
	msgWatchdog      = "Download taking longer than expected... Check detailed progress below."
	msgWatchdogLog   = "Transcription seems to be taking longer than expected, showing detailed logs"
	watchdogProgress = 50.0
)

var (
	// ErrNoFile is wrapped by [*worker.InputError] when a job is started
	// before a file was selected.
	ErrNoFile = errors.New("no file selected")

	// ErrUnsupportedMedia is wrapped by [*worker.InputError] when the
	// selected file is neither audio nor video.
	ErrUnsupportedMedia = errors.New("please select an audio or video file")

	// ErrClosed is returned after [Coordinator.Close].
	ErrClosed = errors.New("coordinator: closed")

	errWorkerGone = errors.New("worker stopped unexpectedly")
)

// Worker is the coordinator's view of a transcription worker.
type Worker interface {
	Post(m protocol.HostMessage) error
	Messages() <-chan protocol.WorkerMessage
	Terminate()
}

// WorkerFactory spawns a worker. It is invoked on the first job and again
// after a worker has died.
type WorkerFactory func(ctx context.Context) (Worker, error)

// Preprocessor turns an uploaded file into model input.
type Preprocessor interface {
	Process(ctx context.Context, data []byte, filename string, onProgress preprocess.ProgressFunc) (*preprocess.Result, error)
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithWatchdogTimeout sets how long a job may stay unfinished before the
// slow-download notice is shown.
func WithWatchdogTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.watchdog = d
		}
	}
}

// WithLogEntries sets the diagnostic log capacity.
func WithLogEntries(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.logs = NewLogRing(n)
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// job tracks the single in-flight job.
type job struct {
	id       uint64
	started  time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	span     trace.Span
	watchdog *sched.Task
	worker   Worker
}

// Coordinator drives one job at a time. All methods are safe for concurrent
// use.
type Coordinator struct {
	pre       Preprocessor
	newWorker WorkerFactory
	metrics   *observe.Metrics
	logs      *LogRing

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	watchdog time.Duration
	closed   bool
	file     *File
	worker   Worker
	job      *job
	nextID   uint64
	snap     Snapshot
	subs     map[chan Snapshot]struct{}
}

// New returns an idle Coordinator. No worker is spawned until the first job.
func New(pre Preprocessor, newWorker WorkerFactory, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		pre:       pre,
		newWorker: newWorker,
		logs:      NewLogRing(DefaultLogEntries),
		ctx:       ctx,
		cancel:    cancel,
		watchdog:  DefaultWatchdogTimeout,
		snap:      Snapshot{Phase: PhaseIdle, UpdatedAt: time.Now()},
		subs:      make(map[chan Snapshot]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// SetWatchdogTimeout changes the watchdog duration for jobs started later.
func (c *Coordinator) SetWatchdogTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.watchdog = d
	c.mu.Unlock()
}

// SetLogEntries changes the diagnostic log capacity.
func (c *Coordinator) SetLogEntries(n int) { c.logs.Resize(n) }

// SelectFile makes f the current file. Any in-flight job is superseded and
// the previous transcript, error and progress are cleared. A file that is
// neither audio nor video is rejected without changing state.
func (c *Coordinator) SelectFile(f File) error {
	if !acceptedMedia(f.MediaType) {
		return &worker.InputError{Err: fmt.Errorf("%w (got %q)", ErrUnsupportedMedia, f.MediaType)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.supersedeLocked()
	c.file = &f
	c.moveLocked(PhaseFileSelected)
	info := f.Info()
	c.snap = Snapshot{Phase: PhaseFileSelected, File: &info}
	c.publishLocked()
	return nil
}

// StartTranscription starts a job for the current file and returns its id.
// Preprocessing and the worker round trip run in the background; progress
// is observed through [Coordinator.Subscribe] or [Coordinator.Snapshot].
// ctx only contributes trace context; the job outlives it.
func (c *Coordinator) StartTranscription(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	if c.file == nil {
		return 0, &worker.InputError{Err: ErrNoFile}
	}

	c.supersedeLocked()
	c.nextID++
	id := c.nextID

	jobCtx := trace.ContextWithSpanContext(c.ctx, trace.SpanContextFromContext(ctx))
	jobCtx, cancel := context.WithCancel(jobCtx)
	jobCtx, span := observe.StartJobSpan(jobCtx, "coordinator.job", id)
	c.job = &job{id: id, started: time.Now(), ctx: jobCtx, cancel: cancel, span: span}
	c.metrics.ActiveJobs.Add(jobCtx, 1)

	c.logs.Reset()
	c.moveLocked(PhasePreprocessing)
	info := c.file.Info()
	c.snap = Snapshot{
		Phase:    PhasePreprocessing,
		JobID:    id,
		File:     &info,
		Progress: &ProgressView{Status: protocol.StatusDownloading, Message: msgPreparing},
	}
	c.publishLocked()

	f := *c.file
	go c.run(jobCtx, id, f)
	return id, nil
}

// run preprocesses f and hands the buffer to the worker.
func (c *Coordinator) run(ctx context.Context, id uint64, f File) {
	log := observe.JobLogger(ctx, id)

	data, err := readFile(f)
	if err != nil {
		c.fail(id, &worker.InputError{Err: err})
		return
	}
	res, err := c.pre.Process(ctx, data, f.Name, func(v float64, msg string) {
		c.preprocessProgress(id, v, msg)
	})
	if err != nil {
		c.fail(id, &worker.InputError{Err: err})
		return
	}

	c.mu.Lock()
	if !c.currentLocked(id) {
		c.mu.Unlock()
		return
	}
	w, err := c.ensureWorkerLocked()
	if err != nil {
		c.mu.Unlock()
		c.fail(id, &worker.TransportError{Err: err})
		return
	}
	c.job.worker = w
	c.job.watchdog = sched.After(c.watchdog, func() { c.fireWatchdog(id) })
	c.moveLocked(PhaseAwaitingWorker)
	c.snap.Stage = StageDownloading
	c.publishLocked()
	c.mu.Unlock()

	log.Debug("coordinator: posting buffer", "samples", len(res.Buffer.Samples), "source", res.Source.String())
	msg := protocol.Transcribe{JobID: id, Audio: res.Buffer.Samples, Filename: f.Name}
	if err := w.Post(msg); err != nil {
		c.fail(id, &worker.TransportError{Err: err})
	}
}

func (c *Coordinator) preprocessProgress(id uint64, v float64, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(id) {
		return
	}
	c.snap.Progress = &ProgressView{Status: protocol.StatusTranscribing, Message: msg, Progress: v}
	c.publishLocked()
}

// ensureWorkerLocked returns the live worker, spawning one if needed.
func (c *Coordinator) ensureWorkerLocked() (Worker, error) {
	if c.worker != nil {
		return c.worker, nil
	}
	w, err := c.newWorker(c.ctx)
	if err != nil {
		return nil, err
	}
	c.worker = w
	go c.pump(w)
	return w, nil
}

// pump delivers messages from w until its stream closes.
func (c *Coordinator) pump(w Worker) {
	for m := range w.Messages() {
		c.handle(m)
	}
	c.workerExited(w)
}

func (c *Coordinator) handle(m protocol.WorkerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := m.Job()
	if id == 0 {
		switch m := m.(type) {
		case protocol.Log:
			c.logs.Add(0, m.Message, m.Data)
		case protocol.Progress:
			slog.Debug("coordinator: worker status", "status", m.Status, "message", m.Message)
		}
		return
	}
	if !c.currentLocked(id) {
		c.metrics.StaleMessages.Add(c.ctx, 1)
		slog.Debug("coordinator: discarding stale message", "job", id, "type", fmt.Sprintf("%T", m))
		return
	}

	switch m := m.(type) {
	case protocol.Log:
		c.logs.Add(id, m.Message, m.Data)
	case protocol.Progress:
		c.snap.Progress = &ProgressView{Status: m.Status, Message: m.Message, Progress: m.Progress}
		if m.Status == protocol.StatusTranscribing {
			c.snap.Stage = StageTranscribing
		} else if m.Status != protocol.StatusComplete {
			c.snap.Stage = StageDownloading
		}
		c.publishLocked()
	case protocol.Complete:
		result := m.Result
		c.snap.Result = &result
		c.snap.Stage = ""
		c.snap.Notice = ""
		c.snap.Progress = &ProgressView{Status: protocol.StatusComplete, Message: "Transcription completed successfully!", Progress: 100}
		c.finishLocked(PhaseComplete, "complete")
	case protocol.Error:
		c.setErrorLocked(kindName(m.Details), m.Message, stackOf(m.Details))
		c.finishLocked(PhaseError, "error")
	default:
		slog.Warn("coordinator: unknown worker message", "type", fmt.Sprintf("%T", m))
	}
}

// workerExited resets the worker slot so the next job spawns a fresh one,
// and fails the current job if it was waiting on w.
func (c *Coordinator) workerExited(w Worker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.worker == w {
		c.worker = nil
	}
	if c.closed || c.job == nil || c.job.worker != w {
		return
	}
	err := &worker.TransportError{Err: errWorkerGone}
	c.failLocked(err)
}

// fail ends job id with err unless it was already superseded.
func (c *Coordinator) fail(id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(id) {
		return
	}
	c.failLocked(err)
}

func (c *Coordinator) failLocked(err error) {
	e := protocol.NewError(c.job.id, err)
	c.metrics.RecordJobError(c.job.ctx, e.Details.Name)
	c.logs.Add(c.job.id, "Transcription failed", err.Error())
	c.setErrorLocked(e.Details.Name, e.Message, e.Details.Stack)
	c.finishLocked(PhaseError, "error")
}

func (c *Coordinator) setErrorLocked(kind, msg, details string) {
	c.snap.Error = &ErrorView{Kind: kind, Message: msg, Details: details}
	c.snap.Stage = ""
	c.snap.Progress = &ProgressView{Status: protocol.StatusError, Message: msg, Progress: c.progressLocked()}
}

// finishLocked moves the current job to a terminal phase, disarming the
// watchdog. Later messages for the job are discarded as stale.
func (c *Coordinator) finishLocked(phase Phase, outcome string) {
	j := c.job
	j.watchdog.Stop()
	c.metrics.RecordJob(j.ctx, outcome, time.Since(j.started).Seconds())
	c.metrics.ActiveJobs.Add(j.ctx, -1)
	observe.JobLogger(j.ctx, j.id).Info("coordinator: job finished", "outcome", outcome,
		"duration", time.Since(j.started).Round(time.Millisecond))
	j.span.End()
	j.cancel()
	c.job = nil

	c.moveLocked(phase)
	c.publishLocked()
}

// supersedeLocked abandons the in-flight job, if any.
func (c *Coordinator) supersedeLocked() {
	j := c.job
	if j == nil {
		return
	}
	j.watchdog.Stop()
	c.metrics.RecordJob(j.ctx, "superseded", time.Since(j.started).Seconds())
	c.metrics.ActiveJobs.Add(j.ctx, -1)
	observe.JobLogger(j.ctx, j.id).Info("coordinator: job superseded")
	j.span.End()
	j.cancel()
	c.job = nil
}

func (c *Coordinator) fireWatchdog(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(id) {
		return
	}
	c.metrics.WatchdogFires.Add(c.job.ctx, 1)
	c.logs.Add(id, msgWatchdogLog, nil)
	c.snap.Notice = msgWatchdog
	c.snap.ShowLogs = true
	c.snap.Progress = &ProgressView{Status: protocol.StatusDownloading, Message: msgWatchdog, Progress: watchdogProgress}
	c.publishLocked()
}

// WorkerState reports the live worker's model state. It returns false when
// no worker is running or the worker does not expose its state.
func (c *Coordinator) WorkerState() (worker.State, bool) {
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	s, ok := w.(interface{ State() worker.State })
	if !ok {
		return worker.StateUninitialized, false
	}
	return s.State(), true
}

// SetShowLogs toggles the diagnostic log panel.
func (c *Coordinator) SetShowLogs(show bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.ShowLogs = show
	c.publishLocked()
}

// Clear supersedes any job and returns to idle.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersedeLocked()
	c.file = nil
	c.logs.Reset()
	if c.snap.Phase != PhaseIdle {
		c.moveLocked(PhaseIdle)
	}
	c.snap = Snapshot{Phase: PhaseIdle}
	c.publishLocked()
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// Logs returns the retained diagnostic entries, oldest first.
func (c *Coordinator) Logs() []LogEntry { return c.logs.Entries() }

// LogsSince returns entries newer than seq.
func (c *Coordinator) LogsSince(seq int64) []LogEntry { return c.logs.Since(seq) }

// Result returns the transcript of the last completed job and the file it
// came from.
func (c *Coordinator) Result() (protocol.Result, FileInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.Phase != PhaseComplete || c.snap.Result == nil || c.snap.File == nil {
		return protocol.Result{}, FileInfo{}, false
	}
	return *c.snap.Result, *c.snap.File, true
}

// Subscribe returns a channel receiving a snapshot after every change. Slow
// subscribers only see the latest snapshot. The returned function
// unsubscribes and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	ch <- c.snap.clone()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

// Await blocks until job id reaches a terminal phase, the job is
// superseded, or ctx is done.
func (c *Coordinator) Await(ctx context.Context, id uint64) (Snapshot, error) {
	ch, cancel := c.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return Snapshot{}, ErrClosed
			}
			if s.JobID != id {
				if s.JobID > id || s.Phase == PhaseIdle || s.Phase == PhaseFileSelected {
					return s, fmt.Errorf("coordinator: job %d superseded", id)
				}
				continue
			}
			if s.Phase.Terminal() {
				return s, nil
			}
		}
	}
}

// Close supersedes any job, terminates the worker and closes subscriber
// channels.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.supersedeLocked()
	w := c.worker
	c.worker = nil
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.mu.Unlock()

	if w != nil {
		w.Terminate()
	}
	c.cancel()
}

func (c *Coordinator) currentLocked(id uint64) bool {
	return c.job != nil && c.job.id == id
}

// progressLocked returns the last reported percentage.
func (c *Coordinator) progressLocked() float64 {
	if c.snap.Progress == nil {
		return 0
	}
	return c.snap.Progress.Progress
}

func (c *Coordinator) moveLocked(to Phase) {
	from := c.snap.Phase
	if !isValidTransition(from, to) {
		slog.Warn("coordinator: unexpected phase transition", "from", from, "to", to)
	}
	c.snap.Phase = to
}

// publishLocked stamps the snapshot and offers it to every subscriber,
// replacing an unread older snapshot.
func (c *Coordinator) publishLocked() {
	c.snap.UpdatedAt = time.Now()
	s := c.snap.clone()
	for ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func kindName(d *protocol.ErrorDetails) string {
	if d == nil || d.Name == "" {
		return "Error"
	}
	return d.Name
}

func stackOf(d *protocol.ErrorDetails) string {
	if d == nil {
		return ""
	}
	return d.Stack
}
