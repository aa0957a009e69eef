// Package app wires the p2t subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the decoder chain,
// preprocessor, worker factory, coordinator and HTTP API from the config;
// Run serves until the context is cancelled; Shutdown tears everything down
// in order. Transcribe runs a single file through the same coordinator for
// the command-line mode.
//
// For testing, inject doubles via functional options (WithBackend,
// WithDecoder). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/podcast2transcript/p2t/internal/config"
	"github.com/podcast2transcript/p2t/internal/coordinator"
	"github.com/podcast2transcript/p2t/internal/health"
	"github.com/podcast2transcript/p2t/internal/observe"
	"github.com/podcast2transcript/p2t/internal/preprocess"
	"github.com/podcast2transcript/p2t/internal/protocol"
	"github.com/podcast2transcript/p2t/internal/web"
	"github.com/podcast2transcript/p2t/internal/worker"
	"github.com/podcast2transcript/p2t/pkg/audio/decode"
)

// App owns all subsystem lifetimes.
type App struct {
	cfgMu     sync.Mutex
	cfg       *config.Config
	workerCfg config.WorkerConfig
	registry  *config.Registry
	metrics   *observe.Metrics
	level     *slog.LevelVar

	backend worker.Backend
	decoder decode.Decoder
	fetcher *worker.Fetcher
	coord   *coordinator.Coordinator
	api     *web.Server
	server  *http.Server

	metricsHandler http.Handler

	listener net.Listener

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects an inference backend instead of creating one from
// the registry.
func WithBackend(b worker.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithRegistry sets the backend registry. Defaults to [DefaultRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithDecoder injects the container decoder instead of the beep/ffmpeg chain.
func WithDecoder(d decode.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics instead of the default Prometheus
// gatherer.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets config reloads change the log level of a handler built
// on v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// New creates and connects all subsystems. No worker is spawned and no
// model is downloaded until the first job.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, workerCfg: cfg.Worker}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = observe.DefaultHandler()
	}

	if a.backend == nil {
		b, err := a.registry.Create(cfg.Worker)
		if err != nil {
			return nil, fmt.Errorf("app: create backend: %w", err)
		}
		a.backend = b
	}
	if a.decoder == nil {
		a.decoder = a.defaultDecoder()
	}

	a.fetcher = worker.NewFetcher(cfg.Worker.CacheDir, worker.WithFetcherMetrics(a.metrics))
	pre := preprocess.New(a.decoder, preprocess.WithMetrics(a.metrics))

	a.coord = coordinator.New(pre, a.newWorker,
		coordinator.WithWatchdogTimeout(cfg.Coordinator.WatchdogTimeout),
		coordinator.WithLogEntries(cfg.Coordinator.LogEntries),
		coordinator.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, func() error {
		a.coord.Close()
		return nil
	})

	checks := health.New(
		health.CacheWritable(a.fetcher.CheckWritable),
		health.WorkerUsable(a.coord.WorkerState),
	)
	a.api = web.New(a.coord,
		web.WithHealth(checks),
		web.WithMetricsHandler(a.metricsHandler),
		web.WithMetrics(a.metrics),
		web.WithMaxUploadBytes(cfg.Coordinator.MaxUploadBytes),
	)

	slog.Info("app initialised",
		"backend", a.backend.Name(),
		"artifacts", len(cfg.Worker.Artifacts),
		"cache_dir", cfg.Worker.CacheDir,
		"watchdog", cfg.Coordinator.WatchdogTimeout,
	)
	return a, nil
}

func (a *App) defaultDecoder() decode.Decoder {
	if a.cfg.Decoder.DisableFFmpeg {
		return decode.Chain{decode.Beep{}}
	}
	return decode.Default(a.cfg.Decoder.FFmpegPath)
}

// newWorker is the coordinator's worker factory.
func (a *App) newWorker(ctx context.Context) (coordinator.Worker, error) {
	w := a.workerCfg
	slog.Info("spawning transcription worker", "backend", a.backend.Name())
	return worker.New(ctx, a.backend, a.fetcher, w.Artifacts,
		worker.WithLanguage(w.Language),
		worker.WithChunking(worker.ChunkOptions{Length: w.ChunkLength, Stride: w.StrideLength}),
		worker.WithMetrics(a.metrics),
	), nil
}

// Coordinator returns the job coordinator.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coord }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Run serves the HTTP API until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.cfgMu.Lock()
	srv := a.cfg.Server
	a.cfgMu.Unlock()

	l := a.listener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", srv.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", srv.ListenAddr, err)
		}
	}

	a.server = &http.Server{
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := srv.TLS; tls != nil {
			err = a.server.ServeTLS(l, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(l)
		}
		errCh <- err
	}()

	slog.Info("app running", "addr", l.Addr().String(), "tls", srv.TLS != nil)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Transcribe runs the file at path through the coordinator and waits for
// its terminal state.
func (a *App) Transcribe(ctx context.Context, path string) (protocol.Result, error) {
	f, err := coordinator.DiskFile(path)
	if err != nil {
		return protocol.Result{}, &worker.InputError{Err: err}
	}
	if err := a.coord.SelectFile(f); err != nil {
		return protocol.Result{}, err
	}
	id, err := a.coord.StartTranscription(ctx)
	if err != nil {
		return protocol.Result{}, err
	}

	snap, err := a.coord.Await(ctx, id)
	if err != nil {
		return protocol.Result{}, err
	}
	if snap.Phase == coordinator.PhaseError {
		if snap.Error != nil {
			return protocol.Result{}, fmt.Errorf("%s: %s", snap.Error.Kind, snap.Error.Message)
		}
		return protocol.Result{}, errors.New("transcription failed")
	}
	return *snap.Result, nil
}

// ApplyConfig applies the reloadable parts of next and records it as the
// current config. Changes that need a restart are logged and ignored.
func (a *App) ApplyConfig(next *config.Config) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()

	d := config.Diff(a.cfg, next)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.WatchdogChanged {
		a.coord.SetWatchdogTimeout(next.Coordinator.WatchdogTimeout)
		slog.Info("watchdog timeout changed", "timeout", next.Coordinator.WatchdogTimeout)
	}
	if d.LogEntriesChanged {
		a.coord.SetLogEntries(next.Coordinator.LogEntries)
	}
	if d.UploadLimitChanged {
		a.api.SetMaxUploadBytes(next.Coordinator.MaxUploadBytes)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "keys", d.RestartRequired)
	}

	// Keep restart-only settings at their running values so later diffs
	// compare against what is actually in effect.
	applied := *a.cfg
	applied.Server.LogLevel = next.Server.LogLevel
	applied.Coordinator = next.Coordinator
	a.cfg = &applied
}

// Shutdown stops the HTTP server, the coordinator and its worker.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
