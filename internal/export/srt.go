package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/podcast2transcript/p2t/internal/protocol"
)

// MissingEndSpan is the cue length used when a chunk has no end time.
const MissingEndSpan = 5.0

// WriteSRT writes r as SubRip cues numbered from 1.
func WriteSRT(w io.Writer, r protocol.Result) error {
	bw := bufio.NewWriter(w)
	for i, c := range r.Chunks {
		end := c.Start + MissingEndSpan
		if c.End != nil {
			end = *c.End
		}
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", i+1, SRTTime(c.Start), SRTTime(end), strings.TrimSpace(c.Text))
	}
	return bw.Flush()
}

// SRTTime formats seconds as HH:MM:SS,mmm. Milliseconds are truncated.
func SRTTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	whole := math.Floor(seconds)
	ms := int(math.Floor((seconds - whole) * 1000))
	total := int(whole)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", total/3600, total%3600/60, total%60, ms)
}
