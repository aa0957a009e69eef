// Package config provides the configuration schema, loader, backend registry
// and hot-reload watcher for the p2t transcription server.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/podcast2transcript/p2t/internal/worker"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog returns the matching [slog.Level]. Unknown values map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultBackend         = "whisper"
	DefaultLanguage        = "en"
	DefaultChunkLength     = 30 * time.Second
	DefaultStrideLength    = 5 * time.Second
	DefaultWatchdogTimeout = 45 * time.Second
	DefaultLogEntries      = 20
	DefaultMaxUploadBytes  = 512 << 20
	DefaultFFmpegPath      = "ffmpeg"

	// DefaultModelFile is the ggml model fetched when no artifacts are listed.
	DefaultModelFile = "ggml-base.en.bin"
	DefaultModelURL  = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/" + DefaultModelFile
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Worker      WorkerConfig      `yaml:"worker"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Decoder     DecoderConfig     `yaml:"decoder"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// WorkerConfig selects the inference backend and the model it loads.
type WorkerConfig struct {
	// Backend names a factory registered in the [Registry] ("whisper", "mock").
	Backend string `yaml:"backend"`

	// CacheDir stores downloaded model artifacts across runs.
	CacheDir string `yaml:"cache_dir"`

	// Language is passed to the model decoder. Empty means auto-detect.
	Language string `yaml:"language"`

	ChunkLength  time.Duration `yaml:"chunk_length"`
	StrideLength time.Duration `yaml:"stride_length"`

	// Threads caps inference threads. 0 keeps the backend default.
	Threads uint `yaml:"threads"`

	// ModelFile names the artifact holding the model weights.
	ModelFile string `yaml:"model_file"`

	// Artifacts is the fixed manifest fetched before the first job.
	Artifacts []worker.Artifact `yaml:"artifacts"`
}

// CoordinatorConfig controls job supervision. All fields are hot-reloadable.
type CoordinatorConfig struct {
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	LogEntries      int           `yaml:"log_entries"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// DecoderConfig controls container decoding.
type DecoderConfig struct {
	// FFmpegPath is the ffmpeg binary used for formats the native decoders
	// cannot read. Set DisableFFmpeg to skip the fallback.
	FFmpegPath    string `yaml:"ffmpeg_path"`
	DisableFFmpeg bool   `yaml:"disable_ffmpeg"`
}

// ApplyDefaults fills zero-valued fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	w := &cfg.Worker
	if w.Backend == "" {
		w.Backend = DefaultBackend
	}
	if w.CacheDir == "" {
		w.CacheDir = defaultCacheDir()
	}
	if w.ChunkLength == 0 {
		w.ChunkLength = DefaultChunkLength
	}
	if w.StrideLength == 0 {
		w.StrideLength = DefaultStrideLength
	}
	if len(w.Artifacts) == 0 && w.Backend == DefaultBackend {
		w.Artifacts = []worker.Artifact{{Name: DefaultModelFile, URL: DefaultModelURL}}
		if w.ModelFile == "" {
			w.ModelFile = DefaultModelFile
		}
	}

	c := &cfg.Coordinator
	if c.WatchdogTimeout == 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.LogEntries == 0 {
		c.LogEntries = DefaultLogEntries
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if cfg.Decoder.FFmpegPath == "" {
		cfg.Decoder.FFmpegPath = DefaultFFmpegPath
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "p2t", "models")
}
