package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/podcast2transcript/p2t/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
worker:
  backend: mock
coordinator:
  watchdog_timeout: 45s
`

const watcherUpdatedYAML = `
server:
  log_level: debug
worker:
  backend: mock
coordinator:
  watchdog_timeout: 10s
`

const watcherInvalidYAML = `
coordinator:
  watchdog_timeout: soon
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// countingWatcher starts a watcher that reports every reload on a channel.
func countingWatcher(t *testing.T, path string) (*config.Watcher, <-chan [2]*config.Config) {
	t.Helper()
	changes := make(chan [2]*config.Config, 4)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		changes <- [2]*config.Config{old, new}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, changes
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	w, _ := countingWatcher(t, path)
	cfg := w.Current()
	if cfg == nil || cfg.Coordinator.WatchdogTimeout != 45*time.Second {
		t.Fatalf("Current() = %+v", cfg)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)
	w, changes := countingWatcher(t, path)

	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, watcherUpdatedYAML)

	var got [2]*config.Config
	select {
	case got = <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	d := config.Diff(got[0], got[1])
	if !d.WatchdogChanged || !d.LogLevelChanged {
		t.Errorf("diff = %+v, want watchdog and log level changes", d)
	}
	if w.Current().Coordinator.WatchdogTimeout != 10*time.Second {
		t.Errorf("Current() not updated: %+v", w.Current().Coordinator)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)
	w, changes := countingWatcher(t, path)

	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, watcherInvalidYAML)
	time.Sleep(200 * time.Millisecond)

	select {
	case c := <-changes:
		t.Fatalf("callback fired for invalid config: %+v", c[1])
	default:
	}
	if w.Current().Coordinator.WatchdogTimeout != 45*time.Second {
		t.Errorf("Current() should still hold the old config")
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)
	_, changes := countingWatcher(t, path)

	time.Sleep(50 * time.Millisecond)
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	select {
	case <-changes:
		t.Error("callback fired for a touch without content change")
	default:
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}
