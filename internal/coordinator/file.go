package coordinator

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a user-selected media file. Open may be called more than once.
type File struct {
	Name      string
	MediaType string
	Size      int64
	Open      func() (io.ReadCloser, error)
}

// Info returns the descriptive fields of f.
func (f File) Info() FileInfo {
	return FileInfo{Name: f.Name, MediaType: f.MediaType, Size: f.Size}
}

// BytesFile wraps in-memory content. An empty mediaType is sniffed from data.
func BytesFile(name, mediaType string, data []byte) File {
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = mimetype.Detect(data).String()
	}
	return File{
		Name:      name,
		MediaType: mediaType,
		Size:      int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// DiskFile describes the file at path, sniffing its media type from content.
func DiskFile(path string) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if !fi.Mode().IsRegular() {
		return File{}, fmt.Errorf("%s: not a regular file", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:      filepath.Base(path),
		MediaType: mt.String(),
		Size:      fi.Size(),
		Open:      func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// acceptedMedia reports whether a declared media type is audio or video.
func acceptedMedia(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	return strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/")
}

func readFile(f File) ([]byte, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("%s: no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
