package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/podcast2transcript/p2t/internal/worker"
)

func serve(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_IgnoresCheckers(t *testing.T) {
	h := New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("down") }})
	code, body := serve(t, h, "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v, want 200 ok", code, body)
	}
}

func TestReadyz(t *testing.T) {
	pass := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("disk full") }

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "model_cache", Check: pass}, {Name: "worker", Check: pass}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"model_cache": "ok", "worker": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{Name: "model_cache", Check: fail}, {Name: "worker", Check: pass}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"model_cache": "fail: disk full", "worker": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := serve(t, New(tt.checkers...), "/readyz")
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestCacheWritable(t *testing.T) {
	f := worker.NewFetcher(t.TempDir())
	if err := CacheWritable(f.CheckWritable).Check(context.Background()); err != nil {
		t.Errorf("writable temp dir reported %v", err)
	}

	probeErr := errors.New("read-only file system")
	c := CacheWritable(func() error { return probeErr })
	if err := c.Check(context.Background()); !errors.Is(err, probeErr) {
		t.Errorf("Check = %v, want %v", err, probeErr)
	}
}

func TestWorkerUsable(t *testing.T) {
	tests := []struct {
		state   worker.State
		running bool
		wantErr bool
	}{
		{worker.StateUninitialized, false, false},
		{worker.StateReady, true, false},
		{worker.StateTranscribing, true, false},
		{worker.StateErrored, true, true},
		{worker.StateErrored, false, false},
	}
	for _, tt := range tests {
		c := WorkerUsable(func() (worker.State, bool) { return tt.state, tt.running })
		if err := c.Check(context.Background()); (err != nil) != tt.wantErr {
			t.Errorf("state %v running %v: err = %v, wantErr %v", tt.state, tt.running, err, tt.wantErr)
		}
	}
}
