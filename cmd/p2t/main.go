// Command p2t is the main entry point for the podcast-to-transcript server.
//
// Without -transcribe it serves the HTTP API. With -transcribe it runs one
// file through the same pipeline and writes the transcript export.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/podcast2transcript/p2t/internal/app"
	"github.com/podcast2transcript/p2t/internal/config"
	"github.com/podcast2transcript/p2t/internal/export"
	"github.com/podcast2transcript/p2t/internal/observe"
	"github.com/podcast2transcript/p2t/internal/protocol"
	"github.com/podcast2transcript/p2t/internal/worker"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	input := flag.String("transcribe", "", "transcribe this file and exit instead of serving")
	txtOut := flag.String("txt", "", "write the plain-text transcript here (\"-\" for stdout)")
	srtOut := flag.String("srt", "", "write the SRT subtitles here (\"-\" for stdout)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watchConfig, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "p2t: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(&level))

	slog.Info("p2t starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.Worker.Backend,
		"whisper_compiled", worker.WhisperAvailable,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Setup(ctx, observe.TelemetryConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(cfg,
		app.WithLevelVar(&level),
		app.WithMetricsHandler(tel.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer shutdown(application)

	if *input != "" {
		return transcribeOnce(ctx, application, *input, exportTargets(*input, *txtOut, *srtOut))
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if watchConfig {
		w, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
			application.ApplyConfig(next)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	printStartupSummary(cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("shutdown signal received, stopping")
	return 0
}

// loadConfig reads the config file. A missing file at the default path falls
// back to the built-in defaults, in which case there is nothing to watch.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) && !flagSet("config") {
		return config.Default(), false, nil
	}
	return nil, false, err
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// exportTargets maps each requested format to its output path. With neither
// flag set the text transcript goes to the working directory under its
// default name.
func exportTargets(input, txt, srt string) map[export.Format]string {
	targets := make(map[export.Format]string, 2)
	if txt != "" {
		targets[export.Text] = txt
	}
	if srt != "" {
		targets[export.SRT] = srt
	}
	if len(targets) == 0 {
		targets[export.Text] = export.FileName(filepath.Base(input), export.Text)
	}
	return targets
}

func transcribeOnce(ctx context.Context, a *app.App, input string, targets map[export.Format]string) int {
	start := time.Now()
	res, err := a.Transcribe(ctx, input)
	if err != nil {
		slog.Error("transcription failed", "file", input, "err", err)
		return 1
	}
	slog.Info("transcription complete",
		"file", input,
		"chunks", len(res.Chunks),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	for f, path := range targets {
		if err := writeExport(path, f, res); err != nil {
			slog.Error("write export", "format", f, "path", path, "err", err)
			return 1
		}
	}
	return 0
}

func writeExport(path string, f export.Format, res protocol.Result) error {
	if path == "-" {
		return export.Write(os.Stdout, f, res)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(out, f, res); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	slog.Info("transcript written", "format", f, "path", path)
	return nil
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
		return
	}
	slog.Info("goodbye")
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           p2t startup summary         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Backend", cfg.Worker.Backend)
	printRow("Model", cfg.Worker.ModelFile)
	printRow("Language", cfg.Worker.Language)
	printRow("Artifacts", fmt.Sprint(len(cfg.Worker.Artifacts)))
	printRow("Watchdog", cfg.Coordinator.WatchdogTimeout.String())
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
