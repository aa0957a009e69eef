package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/podcast2transcript/p2t/internal/coordinator"
)

const writeTimeout = 5 * time.Second

// StreamMessage is one frame of the state stream. Logs holds entries added
// since the previous frame.
type StreamMessage struct {
	Snapshot *coordinator.Snapshot  `json:"snapshot,omitempty"`
	Logs     []coordinator.LogEntry `json:"logs,omitempty"`
}

// handleStream upgrades to a WebSocket and pushes a frame on every state
// change and whenever new log entries appear. Client frames are ignored.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("web: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	snaps, cancel := s.coord.Subscribe()
	defer cancel()

	ticker := time.NewTicker(s.logPoll)
	defer ticker.Stop()

	var lastSeq int64
	send := func(snap *coordinator.Snapshot) error {
		msg := StreamMessage{Snapshot: snap, Logs: s.coord.LogsSince(lastSeq)}
		if n := len(msg.Logs); n > 0 {
			lastSeq = msg.Logs[n-1].Seq
		}
		if msg.Snapshot == nil && len(msg.Logs) == 0 {
			return nil
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, msg)
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			err = send(&snap)
		case <-ticker.C:
			err = send(nil)
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
				slog.Debug("web: stream write", "err", err)
			}
			return
		}
	}
}
