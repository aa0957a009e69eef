// Package web exposes the coordinator over HTTP: upload, state, a WebSocket
// state stream, the diagnostic log and transcript downloads.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/podcast2transcript/p2t/internal/coordinator"
	"github.com/podcast2transcript/p2t/internal/export"
	"github.com/podcast2transcript/p2t/internal/health"
	"github.com/podcast2transcript/p2t/internal/observe"
	"github.com/podcast2transcript/p2t/internal/worker"
)

// DefaultMaxUploadBytes bounds request bodies when no limit is configured.
const DefaultMaxUploadBytes = 512 << 20

// multipartMemory is held in memory before spilling to temporary files.
const multipartMemory = 32 << 20

// Server serves the transcription API.
type Server struct {
	coord     *coordinator.Coordinator
	health    *health.Handler
	metrics   *observe.Metrics
	metricsH  http.Handler
	maxUpload atomic.Int64
	logPoll   time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsH = h }
}

// WithMetrics sets the recorder used by the request middleware. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMaxUploadBytes limits the upload request body.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.SetMaxUploadBytes(n) }
}

// WithLogPoll sets how often the stream checks for new log entries between
// state changes. Default 500ms.
func WithLogPoll(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.logPoll = d
		}
	}
}

// New returns a Server for coord.
func New(coord *coordinator.Coordinator, opts ...Option) *Server {
	s := &Server{coord: coord, logPoll: 500 * time.Millisecond}
	s.maxUpload.Store(DefaultMaxUploadBytes)
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetMaxUploadBytes changes the upload limit for subsequent requests.
func (s *Server) SetMaxUploadBytes(n int64) {
	if n > 0 {
		s.maxUpload.Store(n)
	}
}

// Handler returns the routed handler wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transcriptions", s.handleUpload)
	mux.HandleFunc("GET /api/transcriptions/current", s.handleCurrent)
	mux.HandleFunc("DELETE /api/transcriptions/current", s.handleClear)
	mux.HandleFunc("GET /api/transcriptions/stream", s.handleStream)
	mux.HandleFunc("GET /api/transcriptions/logs", s.handleLogs)
	mux.HandleFunc("GET /api/transcriptions/export.txt", s.handleExport(export.Text))
	mux.HandleFunc("GET /api/transcriptions/export.srt", s.handleExport(export.SRT))
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsH != nil {
		mux.Handle("GET /metrics", s.metricsH)
	}
	return observe.Middleware(s.metrics)(mux)
}

// handleUpload selects the uploaded file and starts a job for it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload.Load())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New(`multipart field "file" is required`))
		return
	}
	data, err := io.ReadAll(part)
	part.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	f := coordinator.BytesFile(header.Filename, header.Header.Get("Content-Type"), data)
	if err := s.coord.SelectFile(f); err != nil {
		writeCoordinatorError(w, err)
		return
	}
	id, err := s.coord.StartTranscription(r.Context())
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	observe.Logger(r.Context()).Info("transcription started",
		"job", id, "file", f.Name, "type", f.MediaType, "bytes", f.Size)
	writeJSON(w, http.StatusAccepted, s.coord.Snapshot())
}

func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.coord.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type logsResponse struct {
	Entries []coordinator.LogEntry `json:"entries"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.coord.Logs()
	if v := r.URL.Query().Get("since"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("since: %w", err))
			return
		}
		entries = s.coord.LogsSince(seq)
	}
	if entries == nil {
		entries = []coordinator.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Entries: entries})
}

func (s *Server) handleExport(f export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		res, info, ok := s.coord.Result()
		if !ok {
			writeError(w, http.StatusConflict, errors.New("no completed transcript"))
			return
		}
		w.Header().Set("Content-Type", f.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(info.Name, f)))
		if err := export.Write(w, f, res); err != nil {
			slog.Warn("web: write export", "format", f, "err", err)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeCoordinatorError(w http.ResponseWriter, err error) {
	var inErr *worker.InputError
	switch {
	case errors.Is(err, coordinator.ErrUnsupportedMedia):
		writeError(w, http.StatusUnsupportedMediaType, err)
	case errors.As(err, &inErr):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, coordinator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		resp.Kind = k.Kind()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("web: encode response", "err", err)
	}
}
