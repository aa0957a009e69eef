package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/podcast2transcript/p2t/internal/observe"
	"github.com/podcast2transcript/p2t/internal/progress"
)

// Artifact is one file the model needs, fetched once and cached on disk.
type Artifact struct {
	// Name is the cache-relative path, e.g. "ggml-small.bin".
	Name string `yaml:"name"`

	// URL is the HTTP(S) source.
	URL string `yaml:"url"`

	// Size is the expected size in bytes. Optional; used when the server
	// sends no Content-Length and to validate cache entries.
	Size int64 `yaml:"size"`

	// SHA256 is the expected hex digest. Optional.
	SHA256 string `yaml:"sha256"`
}

// EventStatus is the phase of an artifact fetch.
type EventStatus string

// Fetch phases.
const (
	EventInitiate    EventStatus = "initiate"
	EventDownloading EventStatus = "downloading"
	EventDone        EventStatus = "done"
	EventReady       EventStatus = "ready"
)

// Event is a fetch progress notification.
type Event struct {
	Status EventStatus
	File   string
	Loaded int64
	Total  int64
	Cached bool
}

// Fetcher downloads artifacts into a cache directory.
type Fetcher struct {
	dir     string
	client  *http.Client
	metrics *observe.Metrics
}

// FetcherOption configures a [Fetcher].
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client. Defaults to [http.DefaultClient].
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithFetcherMetrics sets the metrics recorder.
func WithFetcherMetrics(m *observe.Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// NewFetcher returns a Fetcher caching into dir.
func NewFetcher(dir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{dir: dir, client: http.DefaultClient}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// Dir returns the cache directory.
func (f *Fetcher) Dir() string { return f.dir }

// CheckWritable verifies the cache directory exists (creating it if needed)
// and accepts new files.
func (f *Fetcher) CheckWritable() error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("artifact cache: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("artifact cache: %w", err)
	}
	name := tmp.Name()
	tmp.Close()
	return os.Remove(name)
}

// FetchAll fetches every artifact in parallel and returns a map of artifact
// name to local path. onEvent is called serially, never from two goroutines
// at once. The first failure cancels the remaining fetches.
func (f *Fetcher) FetchAll(ctx context.Context, manifest []Artifact, onEvent func(Event)) (map[string]string, error) {
	var mu sync.Mutex
	emit := func(ev Event) {
		if onEvent == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onEvent(ev)
	}

	paths := make([]string, len(manifest))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range manifest {
		g.Go(func() error {
			p, err := f.Fetch(gctx, a, emit)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make(map[string]string, len(manifest))
	for i, a := range manifest {
		files[a.Name] = paths[i]
	}
	emit(Event{Status: EventReady})
	return files, nil
}

// Fetch returns the cached path of a, downloading it first when absent.
func (f *Fetcher) Fetch(ctx context.Context, a Artifact, onEvent func(Event)) (string, error) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	if !filepath.IsLocal(a.Name) {
		return "", fmt.Errorf("artifact %q: name must be a local relative path", a.Name)
	}
	dst := filepath.Join(f.dir, filepath.FromSlash(a.Name))

	onEvent(Event{Status: EventInitiate, File: a.Name})

	if fi, err := os.Stat(dst); err == nil && fi.Mode().IsRegular() && (a.Size <= 0 || fi.Size() == a.Size) {
		onEvent(Event{Status: EventDownloading, File: a.Name, Loaded: fi.Size(), Total: fi.Size(), Cached: true})
		onEvent(Event{Status: EventDone, File: a.Name, Loaded: fi.Size(), Total: fi.Size(), Cached: true})
		return dst, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("artifact %q: %w", a.Name, err)
	}
	n, total, err := f.download(ctx, a, dst, onEvent)
	if err != nil {
		return "", fmt.Errorf("artifact %q: %w", a.Name, err)
	}
	onEvent(Event{Status: EventDone, File: a.Name, Loaded: n, Total: total})
	return dst, nil
}

func (f *Fetcher) download(ctx context.Context, a Artifact, dst string, onEvent func(Event)) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("GET %s: %s", a.URL, resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = a.Size
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, 0, err
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	body := &progressReader{r: resp.Body, total: total, last: -1, report: func(loaded int64) {
		onEvent(Event{Status: EventDownloading, File: a.Name, Loaded: loaded, Total: total})
	}}
	n, err := io.Copy(io.MultiWriter(tmp, hash), body)
	f.metrics.ArtifactBytes.Add(ctx, n, observe.WithArtifact(a.Name))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, total, err
	}
	if total > 0 && n != total {
		return n, total, fmt.Errorf("short download: got %d of %d bytes", n, total)
	}
	if a.SHA256 != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != a.SHA256 {
			return n, total, fmt.Errorf("checksum mismatch: got %s, want %s", got, a.SHA256)
		}
	}
	if total <= 0 {
		total = n
	}
	body.final(n, total)

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return n, total, err
	}
	slog.Debug("artifact cached", "name", a.Name, "bytes", n, "path", dst)
	return n, total, nil
}

// progressReader reports bytes read whenever the integer percentage changes,
// or on every read when the total is unknown.
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	last   int
	report func(loaded int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.loaded += int64(n)
	if n > 0 {
		pct := progress.Percent(p.loaded, p.total)
		if p.total <= 0 || pct != p.last {
			p.last = pct
			p.report(p.loaded)
		}
	}
	return n, err
}

// final emits a 100% report if the last read did not already produce one.
func (p *progressReader) final(loaded, total int64) {
	if p.last != 100 {
		p.total = total
		p.last = 100
		p.report(loaded)
	}
}
