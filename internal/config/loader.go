package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownBackends lists the backend names shipped with p2t.
// Used by [Validate] to warn about unrecognised backend names.
var KnownBackends = []string{"whisper", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Worker
	w := cfg.Worker
	if w.Backend != "" && !slices.Contains(KnownBackends, w.Backend) {
		slog.Warn("unknown worker backend; it must be registered before startup",
			"backend", w.Backend,
			"known", KnownBackends,
		)
	}
	if w.ChunkLength < 0 {
		errs = append(errs, fmt.Errorf("worker.chunk_length %s must not be negative", w.ChunkLength))
	}
	if w.StrideLength < 0 {
		errs = append(errs, fmt.Errorf("worker.stride_length %s must not be negative", w.StrideLength))
	}
	if w.ChunkLength > 0 && w.StrideLength >= w.ChunkLength {
		errs = append(errs, fmt.Errorf("worker.stride_length %s must be shorter than chunk_length %s", w.StrideLength, w.ChunkLength))
	}

	seen := make(map[string]int, len(w.Artifacts))
	for i, a := range w.Artifacts {
		prefix := fmt.Sprintf("worker.artifacts[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if !filepath.IsLocal(a.Name) {
				errs = append(errs, fmt.Errorf("%s.name %q must be a relative path inside the cache", prefix, a.Name))
			}
			if prev, ok := seen[a.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of worker.artifacts[%d]", prefix, a.Name, prev))
			}
			seen[a.Name] = i
		}
		if a.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", prefix))
		}
	}
	if w.ModelFile != "" && len(w.Artifacts) > 0 {
		if _, ok := seen[w.ModelFile]; !ok {
			errs = append(errs, fmt.Errorf("worker.model_file %q is not listed in worker.artifacts", w.ModelFile))
		}
	}

	// Coordinator
	c := cfg.Coordinator
	if c.WatchdogTimeout < 0 {
		errs = append(errs, fmt.Errorf("coordinator.watchdog_timeout %s must not be negative", c.WatchdogTimeout))
	}
	if c.LogEntries < 0 {
		errs = append(errs, fmt.Errorf("coordinator.log_entries %d must not be negative", c.LogEntries))
	}
	if c.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("coordinator.max_upload_bytes %d must not be negative", c.MaxUploadBytes))
	}

	return errors.Join(errs...)
}
