// Package worker runs speech-to-text inference in an isolated goroutine.
//
// A [Worker] owns the inference runtime and model exclusively. It receives
// [protocol.HostMessage] values on its inbox and answers with
// [protocol.WorkerMessage] values on its outbox; nothing else is shared with
// the coordinator. Jobs are handled one at a time in arrival order.
//
// The first job triggers loading of the runtime, the parallel download of
// the model artifacts into the on-disk cache, and model construction. Later
// jobs reuse the loaded model. A failed load is not cached: the next job
// starts the load again.
//
// Each job produces a stream of progress and log messages followed by
// exactly one [protocol.Complete] or [protocol.Error].
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/podcast2transcript/p2t/internal/observe"
	"github.com/podcast2transcript/p2t/internal/progress"
	"github.com/podcast2transcript/p2t/internal/protocol"
	"github.com/podcast2transcript/p2t/internal/sched"
	"github.com/podcast2transcript/p2t/pkg/audio"
)

const (
	defaultInboxSize  = 8
	defaultOutboxSize = 256
)

// Worker is the transcription worker. Create with [New]; it runs until
// [Worker.Terminate] is called or its context is cancelled.
type Worker struct {
	backend  Backend
	fetcher  *Fetcher
	manifest []Artifact
	decode   DecodeOptions
	chunking ChunkOptions
	tick     time.Duration
	metrics  *observe.Metrics

	inbox  chan protocol.HostMessage
	outbox chan protocol.WorkerMessage
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	handle modelHandle
}

// Option configures a [Worker].
type Option func(*Worker)

// WithLanguage sets the spoken language passed to the model. Default "en".
func WithLanguage(lang string) Option {
	return func(w *Worker) { w.decode.Language = lang }
}

// WithChunking sets the inference window and overlap.
func WithChunking(c ChunkOptions) Option {
	return func(w *Worker) { w.chunking = c }
}

// WithHeuristicInterval sets how often inference progress estimates are
// emitted. Default [progress.HeuristicInterval].
func WithHeuristicInterval(d time.Duration) Option {
	return func(w *Worker) { w.tick = d }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// New starts a worker that loads models with backend from the artifacts in
// manifest, fetched by fetcher. The worker stops when ctx is cancelled or
// Terminate is called; its outbox is closed afterwards.
func New(ctx context.Context, backend Backend, fetcher *Fetcher, manifest []Artifact, opts ...Option) *Worker {
	w := &Worker{
		backend:  backend,
		fetcher:  fetcher,
		manifest: append([]Artifact(nil), manifest...),
		decode:   DecodeOptions{Language: "en"},
		tick:     progress.HeuristicInterval,
		inbox:    make(chan protocol.HostMessage, defaultInboxSize),
		outbox:   make(chan protocol.WorkerMessage, defaultOutboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	w.chunking = w.chunking.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-w.quit
		cancel()
	}()
	go w.run(ctx)
	return w
}

// Post queues a message for the worker. It blocks while the inbox is full and
// fails with [ErrTerminated] once the worker has stopped.
func (w *Worker) Post(m protocol.HostMessage) error {
	select {
	case <-w.done:
		return ErrTerminated
	case <-w.quit:
		return ErrTerminated
	default:
	}
	select {
	case w.inbox <- m:
		return nil
	case <-w.quit:
		return ErrTerminated
	case <-w.done:
		return ErrTerminated
	}
}

// Messages returns the outbox. It is closed when the worker stops.
func (w *Worker) Messages() <-chan protocol.WorkerMessage { return w.outbox }

// Terminate stops the worker and releases the model. It returns once the
// worker goroutine has exited.
func (w *Worker) Terminate() {
	w.once.Do(func() { close(w.quit) })
	<-w.done
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// State returns the model handle state.
func (w *Worker) State() State { return w.handle.State() }

// ModelLoads returns how many times the model has been loaded.
func (w *Worker) ModelLoads() int { return w.handle.Loads() }

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.outbox)
	defer func() {
		if err := w.handle.release(); err != nil {
			slog.Warn("worker: release model", "err", err)
		}
	}()

	w.log(ctx, 0, "Transcription worker started and ready", nil)
	w.progress(ctx, 0, protocol.StatusLoading, 0, "Transcription worker initialized and ready")

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-w.inbox:
			w.dispatch(ctx, m)
		}
	}
}

// dispatch handles one message, converting a panic into an error for the
// job that caused it.
func (w *Worker) dispatch(ctx context.Context, m protocol.HostMessage) {
	defer func() {
		if r := recover(); r != nil {
			err := &TransportError{Err: fmt.Errorf("panic: %v", r)}
			slog.Error("worker: panic while handling message", "job", m.Job(), "panic", r)
			w.send(ctx, protocol.NewError(m.Job(), err))
		}
	}()

	switch msg := m.(type) {
	case protocol.Transcribe:
		w.log(ctx, msg.JobID, "Starting transcription for: "+msg.Filename, nil)
		w.transcribe(ctx, msg)
	default:
		w.log(ctx, m.Job(), fmt.Sprintf("Unknown message type: %T", m), nil)
	}
}

func (w *Worker) transcribe(ctx context.Context, msg protocol.Transcribe) {
	job := msg.JobID
	fail := func(err error) {
		w.metrics.RecordJobError(ctx, kindOf(err))
		w.log(ctx, job, "Transcription failed", err.Error())
		w.send(ctx, protocol.NewError(job, err))
	}

	w.progress(ctx, job, protocol.StatusDownloading, 0, "Preparing Whisper AI model...")

	model, reused, err := w.handle.ensure(func() (Runtime, Model, error) {
		return w.load(ctx, job)
	})
	if err != nil {
		fail(err)
		return
	}
	if reused {
		w.log(ctx, job, "Transcriber already initialized, reusing cached model", nil)
	} else {
		w.progress(ctx, job, protocol.StatusDownloading, 95, "Whisper model loaded successfully! Ready for transcription...")
	}

	w.progress(ctx, job, protocol.StatusTranscribing, 96, "Validating preprocessed audio: "+msg.Filename)
	samples, err := coerceSamples(msg)
	if err != nil {
		fail(err)
		return
	}

	buf := audio.Buffer{Samples: samples, SampleRate: audio.ModelSampleRate}
	seconds := buf.Seconds()
	w.progress(ctx, job, protocol.StatusTranscribing, progress.InferenceStart,
		fmt.Sprintf("Analyzing %ds of audio with Whisper AI...", int(math.Round(seconds))))
	w.log(ctx, job, fmt.Sprintf("Starting Whisper transcription for %.1fs of audio...", seconds), nil)

	result, err := w.infer(ctx, job, model, buf)
	if err != nil {
		fail(err)
		return
	}

	w.progress(ctx, job, protocol.StatusTranscribing, progress.Finalizing, "Finalizing transcript with timestamps...")
	w.log(ctx, job, fmt.Sprintf("Transcription result: %d characters", len(result.Text)), nil)
	w.progress(ctx, job, protocol.StatusComplete, progress.Complete, "Transcription completed successfully!")
	w.send(ctx, protocol.Complete{JobID: job, Result: result})
}

// infer runs windowed inference while a repeating task reports the
// time-based estimate. The estimator is stopped before the next message is
// sent, so per-job ordering holds.
func (w *Worker) infer(ctx context.Context, job uint64, model Model, buf audio.Buffer) (protocol.Result, error) {
	ctx, span := observe.StartSpan(ctx, "worker.infer")
	defer span.End()

	seconds := buf.Seconds()
	msg := progress.InferenceMessage(seconds)
	estimator := sched.Every(w.tick, func(elapsed time.Duration) {
		w.progress(ctx, job, protocol.StatusTranscribing, progress.InferenceEstimate(elapsed, seconds), msg)
	})
	defer estimator.Stop()

	w.handle.setState(StateTranscribing)
	defer w.handle.setState(StateReady)
	start := time.Now()
	result, err := transcribeWindows(ctx, buf.Samples, buf.SampleRate, w.chunking,
		func(ctx context.Context, i int, window []float32) ([]Segment, error) {
			segs, err := model.Transcribe(ctx, window, w.decode)
			if err == nil {
				w.log(ctx, job, fmt.Sprintf("Processed window %d (%d segments)", i+1, len(segs)), nil)
			}
			return segs, err
		})
	estimator.Stop()

	if err != nil {
		span.RecordError(err)
		return protocol.Result{}, &InferenceError{Err: err}
	}
	w.metrics.InferenceDuration.Record(ctx, time.Since(start).Seconds())

	w.progress(ctx, job, protocol.StatusTranscribing, progress.ResultsReceived, "Whisper AI transcription completed! Processing results...")
	w.log(ctx, job, "Whisper transcription completed", nil)
	return result, nil
}

// load brings up the runtime, fetches the artifacts and builds the model.
func (w *Worker) load(ctx context.Context, job uint64) (Runtime, Model, error) {
	ctx, span := observe.StartSpan(ctx, "worker.load")
	defer span.End()
	start := time.Now()

	w.log(ctx, job, "Starting transcriber initialization...", nil)
	w.handle.setState(StateLoadingRuntime)
	w.progress(ctx, job, protocol.StatusDownloading, 1, "Loading "+w.backend.Name()+" runtime...")
	rt, err := w.backend.LoadRuntime(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, nil, &RuntimeLoadError{Stage: "runtime", Err: err}
	}
	w.progress(ctx, job, protocol.StatusDownloading, 5, w.backend.Name()+" runtime loaded successfully!")

	w.handle.setState(StateLoadingModel)
	w.progress(ctx, job, protocol.StatusDownloading, 10, "Initializing OpenAI Whisper model...")
	w.progress(ctx, job, protocol.StatusDownloading, 12, "Starting model download...")

	tracker := progress.NewDownloadTracker(len(w.manifest))
	files, err := w.fetcher.FetchAll(ctx, w.manifest, func(ev Event) {
		switch ev.Status {
		case EventInitiate:
			w.log(ctx, job, "Download progress: initiate - "+ev.File, nil)
		case EventDownloading:
			overall, msg := tracker.Update(ev.File, ev.Loaded, ev.Total)
			w.progress(ctx, job, protocol.StatusDownloading, overall, msg)
		case EventDone:
			w.log(ctx, job, "Download progress: done - "+ev.File, map[string]any{"bytes": ev.Loaded, "cached": ev.Cached})
		case EventReady:
			w.progress(ctx, job, protocol.StatusDownloading, progress.DownloadCap, "All model components loaded and ready!")
		}
	})
	if err != nil {
		span.RecordError(err)
		closeQuietly(rt)
		return nil, nil, &RuntimeLoadError{Stage: "download", Err: err}
	}

	model, err := rt.LoadModel(ctx, files)
	if err != nil {
		span.RecordError(err)
		closeQuietly(rt)
		return nil, nil, &RuntimeLoadError{Stage: "model", Err: err}
	}

	w.metrics.ModelLoadDuration.Record(ctx, time.Since(start).Seconds())
	w.log(ctx, job, "Whisper model initialized successfully!", nil)
	return rt, model, nil
}

// coerceSamples returns the job's samples, decoding them from the raw byte
// view when necessary.
func coerceSamples(msg protocol.Transcribe) ([]float32, error) {
	samples := msg.Audio
	if len(samples) == 0 && len(msg.Raw) > 0 {
		s, err := audio.SamplesFromBytes(msg.Raw)
		if err != nil {
			return nil, &InputError{Err: err}
		}
		samples = s
	}
	if len(samples) == 0 {
		return nil, &InputError{Err: ErrNoAudio}
	}
	return samples, nil
}

func (w *Worker) send(ctx context.Context, m protocol.WorkerMessage) {
	select {
	case w.outbox <- m:
	case <-ctx.Done():
	}
}

func (w *Worker) progress(ctx context.Context, job uint64, status protocol.Status, pct float64, msg string) {
	w.send(ctx, protocol.Progress{JobID: job, Status: status, Progress: pct, Message: msg})
}

func (w *Worker) log(ctx context.Context, job uint64, msg string, data any) {
	slog.Debug("worker: "+msg, "job", job)
	w.send(ctx, protocol.Log{JobID: job, Message: msg, Data: data})
}

func closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		slog.Debug("worker: close", "err", err)
	}
}

// kindOf returns the taxonomy name of err.
func kindOf(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "Error"
}
