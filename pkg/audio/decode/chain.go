package decode

import (
	"context"
	"errors"
	"log/slog"
)

// Chain tries each decoder in order and returns the first success. Decoders
// implementing [Supporter] are skipped when they reject the sniffed type.
type Chain []Decoder

var _ Decoder = Chain(nil)

// Decode implements [Decoder].
func (c Chain) Decode(ctx context.Context, data []byte, filename string) (*Audio, error) {
	if len(data) == 0 {
		return nil, &Error{Filename: filename, Err: ErrEmpty}
	}
	mt := Sniff(data)

	var errs []error
	for _, d := range c {
		if s, ok := d.(Supporter); ok && !s.Supports(mt) {
			continue
		}
		a, err := d.Decode(ctx, data, filename)
		if err == nil {
			return a, nil
		}
		if ctx.Err() != nil {
			return nil, &Error{Filename: filename, MediaType: mt.String(), Err: ctx.Err()}
		}
		slog.Debug("decoder failed, trying next", "file", filename, "type", mt.String(), "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		errs = append(errs, ErrUnsupported)
	}
	return nil, &Error{Filename: filename, MediaType: mt.String(), Err: errors.Join(errs...)}
}

// Default returns the standard chain: pure-Go decoding first, ffmpeg second.
func Default(ffmpegPath string) Chain {
	return Chain{Beep{}, NewFFmpeg(ffmpegPath)}
}
