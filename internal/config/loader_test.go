package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/podcast2transcript/p2t/internal/config"
	"github.com/podcast2transcript/p2t/internal/worker"
	"github.com/podcast2transcript/p2t/internal/worker/mock"
)

const fullYAML = `
server:
  listen_addr: "127.0.0.1:9000"
  log_level: debug
worker:
  backend: whisper
  cache_dir: /var/cache/p2t
  language: de
  chunk_length: 20s
  stride_length: 4s
  threads: 4
  model_file: ggml-small.bin
  artifacts:
    - name: ggml-small.bin
      url: https://example.com/ggml-small.bin
      size: 487601967
coordinator:
  watchdog_timeout: 1m
  log_entries: 50
  max_upload_bytes: 1048576
decoder:
  ffmpeg_path: /usr/bin/ffmpeg
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != "127.0.0.1:9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	w := cfg.Worker
	if w.ChunkLength != 20*time.Second || w.StrideLength != 4*time.Second {
		t.Errorf("chunking = %s/%s, want 20s/4s", w.ChunkLength, w.StrideLength)
	}
	if w.Threads != 4 || w.Language != "de" || w.ModelFile != "ggml-small.bin" {
		t.Errorf("worker = %+v", w)
	}
	if len(w.Artifacts) != 1 || w.Artifacts[0].Size != 487601967 {
		t.Errorf("artifacts = %+v", w.Artifacts)
	}
	if cfg.Coordinator.WatchdogTimeout != time.Minute || cfg.Coordinator.LogEntries != 50 {
		t.Errorf("coordinator = %+v", cfg.Coordinator)
	}
	if cfg.Decoder.FFmpegPath != "/usr/bin/ffmpeg" {
		t.Errorf("ffmpeg_path = %q", cfg.Decoder.FFmpegPath)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Worker.Backend != config.DefaultBackend || cfg.Worker.CacheDir == "" {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if len(cfg.Worker.Artifacts) != 1 || cfg.Worker.ModelFile != config.DefaultModelFile {
		t.Errorf("default manifest = %+v (model_file %q)", cfg.Worker.Artifacts, cfg.Worker.ModelFile)
	}
	if cfg.Coordinator.WatchdogTimeout != config.DefaultWatchdogTimeout ||
		cfg.Coordinator.LogEntries != config.DefaultLogEntries {
		t.Errorf("coordinator = %+v", cfg.Coordinator)
	}
}

func TestLoadFromReader_MockBackendHasNoManifest(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("worker:\n  backend: mock\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if len(cfg.Worker.Artifacts) != 0 {
		t.Errorf("artifacts = %+v, want none", cfg.Worker.Artifacts)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("worker:\n  bakend: whisper\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "bakend") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\n",
			want: []string{"server.log_level"},
		},
		{
			name: "stride not shorter than window",
			yaml: "worker:\n  chunk_length: 10s\n  stride_length: 10s\n",
			want: []string{"stride_length"},
		},
		{
			name: "artifact problems",
			yaml: `
worker:
  model_file: missing.bin
  artifacts:
    - name: ../escape.bin
      url: https://example.com/a
    - name: a.bin
    - name: a.bin
      url: https://example.com/b
`,
			want: []string{"relative path", "url is required", "duplicate", "model_file"},
		},
		{
			name: "negative coordinator values",
			yaml: "coordinator:\n  watchdog_timeout: -1s\n  log_entries: -2\n",
			want: []string{"watchdog_timeout", "log_entries"},
		},
		{
			name: "incomplete tls",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: []string{"server.tls"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected a validation error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/p2t.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Worker.Backend != "whisper" || cfg.Worker.ModelFile != config.DefaultModelFile {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if len(cfg.Worker.Artifacts) != 1 || cfg.Worker.Artifacts[0].URL != config.DefaultModelURL {
		t.Errorf("artifacts = %+v", cfg.Worker.Artifacts)
	}
	if cfg.Worker.CacheDir == "" {
		t.Error("cache_dir was not defaulted")
	}
	if cfg.Coordinator.MaxUploadBytes != config.DefaultMaxUploadBytes {
		t.Errorf("max_upload_bytes = %d", cfg.Coordinator.MaxUploadBytes)
	}
}

func TestLogLevelSlog(t *testing.T) {
	t.Parallel()
	if config.LogDebug.Slog().String() != "DEBUG" || config.LogLevel("").Slog().String() != "INFO" {
		t.Error("unexpected slog level mapping")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.Create(config.WorkerConfig{Backend: "whisper"})
	if !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Fatalf("Create on empty registry = %v, want ErrBackendNotRegistered", err)
	}

	var got config.WorkerConfig
	r.Register("b", func(c config.WorkerConfig) (worker.Backend, error) {
		got = c
		return &mock.Backend{}, nil
	})
	r.Register("a", func(config.WorkerConfig) (worker.Backend, error) { return &mock.Backend{}, nil })

	if names := r.Names(); len(names) != 2 || names[0] != "a" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
	b, err := r.Create(config.WorkerConfig{Backend: "b", Language: "fr"})
	if err != nil || b == nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Language != "fr" {
		t.Errorf("factory got %+v", got)
	}
}
