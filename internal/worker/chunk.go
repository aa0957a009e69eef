package worker

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/podcast2transcript/p2t/internal/protocol"
)

// ChunkOptions controls windowed inference over long audio.
type ChunkOptions struct {
	// Length is the window size. Default 30s.
	Length time.Duration

	// Stride is the overlap between consecutive windows. Default 5s. A
	// negative value disables overlap, as does a stride not shorter than
	// Length.
	Stride time.Duration
}

// Default window geometry.
const (
	DefaultChunkLength = 30 * time.Second
	DefaultChunkStride = 5 * time.Second
)

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.Length <= 0 {
		o.Length = DefaultChunkLength
	}
	if o.Stride == 0 {
		o.Stride = DefaultChunkStride
	}
	if o.Stride >= o.Length {
		o.Stride = -1
	}
	return o
}

// window is a half-open sample range [start, end).
type window struct {
	start, end int
}

// planWindows splits n samples at rate into overlapping windows.
func planWindows(n, rate int, opts ChunkOptions) []window {
	if n == 0 {
		return nil
	}
	opts = opts.withDefaults()
	length := int(opts.Length.Seconds() * float64(rate))
	step := length - int(max(opts.Stride, 0).Seconds()*float64(rate))
	if length <= 0 || step <= 0 {
		return []window{{0, n}}
	}

	var ws []window
	for s := 0; ; s += step {
		e := min(s+length, n)
		ws = append(ws, window{s, e})
		if e == n {
			break
		}
	}
	return ws
}

// windowRunner runs inference for one window. index is zero-based.
type windowRunner func(ctx context.Context, index int, samples []float32) ([]Segment, error)

// transcribeWindows runs every window and merges segments into one ordered
// transcript. Where two windows overlap, segments starting before the
// midpoint of the overlap are taken from the earlier window and the rest
// from the later one.
func transcribeWindows(ctx context.Context, samples []float32, rate int, opts ChunkOptions, run windowRunner) (protocol.Result, error) {
	ws := planWindows(len(samples), rate, opts)
	toSec := func(i int) float64 { return float64(i) / float64(rate) }

	var chunks []protocol.Chunk
	for i, w := range ws {
		if err := ctx.Err(); err != nil {
			return protocol.Result{}, err
		}
		segs, err := run(ctx, i, samples[w.start:w.end])
		if err != nil {
			return protocol.Result{}, err
		}

		lo, hi := -1.0, -1.0
		if i > 0 {
			lo = toSec(w.start+ws[i-1].end) / 2
		}
		if i < len(ws)-1 {
			hi = toSec(ws[i+1].start+w.end) / 2
		}

		offset := toSec(w.start)
		for _, s := range segs {
			start := offset + s.Start.Seconds()
			if lo >= 0 && start < lo {
				continue
			}
			if hi >= 0 && start >= hi {
				continue
			}
			c := protocol.Chunk{Text: s.Text, Start: start}
			if s.End > 0 {
				c.End = protocol.Seconds(offset + s.End.Seconds())
			}
			chunks = append(chunks, c)
		}
	}

	sort.SliceStable(chunks, func(a, b int) bool { return chunks[a].Start < chunks[b].Start })

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return protocol.Result{Text: strings.Join(parts, " "), Chunks: chunks}, nil
}
