package progress

import (
	"sync"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"config.json", "Model configuration"},
		{"onnx/config.json", "Model configuration"},
		{"tokenizer.json", "Text tokenizer"},
		{"preprocessor_config.json", "Audio preprocessor"},
		{"generation_config.json", "Generation settings"},
		{"ggml-small.bin", "Neural network weights"},
		{"model.safetensors", "Neural network weights"},
		{"encoder_model_quantized.onnx", "ONNX model file"},
		{"vocab.txt", "vocab.txt"},
	}
	for _, tt := range tests {
		if got := Classify(tt.name); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1048576, "1 MB"},
		{1073741824, "1 GB"},
		{5 * 1073741824 * 1024, "5120 GB"},
		{1234567, "1.18 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFileMessage(t *testing.T) {
	if got, want := FileMessage("tokenizer.json", 512, 1024), "Downloading Text tokenizer: 50% (512 Bytes / 1 KB)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := FileMessage("config.json", 10, 10), "Downloaded Model configuration"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		pct  float64
		want float64
	}{
		{0, 15},
		{50, 53},
		{100, 90},
		{120, 90},
	}
	for _, tt := range tests {
		if got := Overall(tt.pct); got != tt.want {
			t.Errorf("Overall(%v) = %v, want %v", tt.pct, got, tt.want)
		}
	}
}

func TestDownloadTracker_MonotonicAndCapped(t *testing.T) {
	tr := NewDownloadTracker(2)

	steps := []struct {
		file          string
		loaded, total int64
	}{
		{"config.json", 0, 100},
		{"ggml-small.bin", 0, 1000},
		{"config.json", 100, 100},
		{"ggml-small.bin", 500, 1000},
		// A fresh 0% for a file already complete must not pull the value down.
		{"config.json", 0, 100},
		{"ggml-small.bin", 1000, 1000},
		{"config.json", 100, 100},
	}
	last := 0.0
	for i, s := range steps {
		v, _ := tr.Update(s.file, s.loaded, s.total)
		if v < last {
			t.Errorf("step %d: overall %v decreased from %v", i, v, last)
		}
		if v > DownloadCap {
			t.Errorf("step %d: overall %v above cap", i, v)
		}
		last = v
	}
	if last != DownloadCap {
		t.Errorf("final overall = %v, want %v", last, DownloadCap)
	}
	if tr.Current() != last {
		t.Errorf("Current = %v, want %v", tr.Current(), last)
	}
}

func TestDownloadTracker_ConcurrentUpdates(t *testing.T) {
	tr := NewDownloadTracker(4)
	var wg sync.WaitGroup
	for f := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := string(rune('a'+f)) + ".bin"
			for b := int64(0); b <= 100; b += 10 {
				tr.Update(name, b, 100)
			}
		}()
	}
	wg.Wait()
	if got := tr.Current(); got != DownloadCap {
		t.Errorf("Current = %v, want %v", got, DownloadCap)
	}
}

func TestInferenceEstimate(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		seconds float64
		want    float64
	}{
		{0, 60, 97},
		{3 * time.Second, 60, 97.5},
		{time.Hour, 60, 99},
		{time.Second, 0, 97},
	}
	for _, tt := range tests {
		got := InferenceEstimate(tt.elapsed, tt.seconds)
		if got != tt.want {
			t.Errorf("InferenceEstimate(%v, %v) = %v, want %v", tt.elapsed, tt.seconds, got, tt.want)
		}
		if got >= 100 {
			t.Errorf("estimate reached %v", got)
		}
	}
}

func TestInferenceMessage(t *testing.T) {
	if got, want := InferenceMessage(61), "Processing 2min audio - Whisper AI analyzing speech patterns..."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
