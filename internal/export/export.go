// Package export renders finished transcripts as downloadable files.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/podcast2transcript/p2t/internal/protocol"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	Text Format = "txt"
	SRT  Format = "srt"
)

// ParseFormat maps an extension, with or without the leading dot, to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case Text, SRT:
		return f, nil
	default:
		return "", fmt.Errorf("export: unsupported format %q", s)
	}
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == SRT {
		return "application/x-subrip; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// FileName returns the download name for a transcript of source:
// "{base}-transcript.{ext}", where base drops the source extension.
func FileName(source string, f Format) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "audio"
	}
	return base + "-transcript." + string(f)
}

// Write renders r in format f.
func Write(w io.Writer, f Format, r protocol.Result) error {
	switch f {
	case Text:
		return WriteText(w, r)
	case SRT:
		return WriteSRT(w, r)
	default:
		return fmt.Errorf("export: unsupported format %q", f)
	}
}

// WriteText writes the full transcript text.
func WriteText(w io.Writer, r protocol.Result) error {
	_, err := io.WriteString(w, r.Text)
	return err
}

// Timestamped renders one "[m:ss] text" line per chunk, the form shown in
// the chunk list.
func Timestamped(r protocol.Result) string {
	var b strings.Builder
	for _, c := range r.Chunks {
		fmt.Fprintf(&b, "[%s] %s\n", Clock(c.Start), strings.TrimSpace(c.Text))
	}
	return b.String()
}

// Clock formats seconds as m:ss.
func Clock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
