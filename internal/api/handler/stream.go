package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/phrasetracker/internal/jobs"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

const (
	defaultStreamInterval = time.Second
	writeWait             = 10 * time.Second

	// queued jobs are peeked, with a full status load every refreshEvery ticks
	refreshEvery = 10
)

// NewStreamHandler returns an http.HandlerFunc for
// GET /api/v1/classify/status/{jobID}/stream. It upgrades to a websocket,
// sends the status view whenever progress changes, and closes the socket
// after sending a terminal view.
func NewStreamHandler(svc JobService, interval time.Duration) http.HandlerFunc {
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := loadView(w, r, svc)
		if !ok {
			return
		}
		id := chi.URLParam(r, "jobID")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "job_id", id, "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Reads only surface control frames and client disconnects.
		go func() {
			defer cancel()
			_ = conn.SetReadDeadline(time.Time{})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *jobs.StatusView
		peeks := 0
		for {
			if changed(last, view) {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(view); err != nil {
					return
				}
				last = view
			}
			if view.Terminal() {
				closeSocket(conn, websocket.CloseNormalClosure, "job finished")
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if view.Status == models.JobStatusPending && peeks < refreshEvery {
				status, err := svc.Peek(ctx, id)
				if err == nil && status == models.JobStatusPending {
					peeks++
					continue
				}
			}
			peeks = 0

			view, err = svc.Status(ctx, id)
			if errors.Is(err, jobs.ErrJobNotFound) {
				closeSocket(conn, websocket.CloseNormalClosure, "job expired")
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("job status lookup failed", "job_id", id, "error", err)
					closeSocket(conn, websocket.CloseInternalServerErr, "status unavailable")
				}
				return
			}
		}
	}
}

func changed(last, next *jobs.StatusView) bool {
	return last == nil ||
		last.Status != next.Status ||
		last.Progress != next.Progress ||
		last.FailedChunks != next.FailedChunks
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
