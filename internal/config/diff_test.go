package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/podcast2transcript/p2t/internal/config"
	"github.com/podcast2transcript/p2t/internal/worker"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	if d := config.Diff(a, b); !d.Empty() {
		t.Errorf("Diff of identical configs = %+v", d)
	}
}

func TestDiff_Reloadable(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Server.LogLevel = config.LogDebug
	new.Coordinator.WatchdogTimeout = 10 * time.Second
	new.Coordinator.LogEntries = 5

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.WatchdogChanged || !d.LogEntriesChanged || d.UploadLimitChanged {
		t.Errorf("coordinator diff = %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Server.ListenAddr = ":9999"
	new.Worker.Artifacts = append(slices.Clone(new.Worker.Artifacts), worker.Artifact{Name: "vocab.json", URL: "https://example.com/v"})
	new.Decoder.DisableFFmpeg = true

	d := config.Diff(old, new)
	for _, key := range []string{"server.listen_addr", "worker.artifacts", "decoder"} {
		if !slices.Contains(d.RestartRequired, key) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, key)
		}
	}
	if d.LogLevelChanged || d.WatchdogChanged {
		t.Errorf("unexpected reloadable changes: %+v", d)
	}
}

func TestDiff_TLS(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}
	if d := config.Diff(old, new); !slices.Contains(d.RestartRequired, "server.tls") {
		t.Errorf("RestartRequired = %v, want server.tls", d.RestartRequired)
	}
	old.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}
	if d := config.Diff(old, new); !d.Empty() {
		t.Errorf("equal TLS blocks reported as changed: %+v", d)
	}
}
