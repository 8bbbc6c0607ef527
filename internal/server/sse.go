package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/conneroisu/scribe/internal/events"
	scribeerrors "github.com/conneroisu/scribe/internal/errors"
)

const heartbeatFrame = ": ping\n\n"

// eventFrame formats a delivery as a Server-Sent Events frame. A lagged
// delivery is already a synthetic Reload, so it is sent like any other.
func eventFrame(d events.Delivery) string {
	return fmt.Sprintf("data: %s\n\n", d.Event.Kind())
}

// handleEvents streams reload notifications as text/event-stream until the
// client goes away or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	// subscribe before the headers go out so a client that reacts to the
	// open stream cannot miss a reload published in between
	sub := s.bus.Subscribe()
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn(ctx, err, "Event stream unsupported by response writer")
		return
	}
	s.logger.Debug(ctx, "Event stream opened", "subscriber", sub.ID().String())

	var heartbeat <-chan time.Time
	if s.config.Server.Heartbeat > 0 {
		ticker := time.NewTicker(s.config.Server.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-heartbeat:
			if !s.writeFrame(w, rc, heartbeatFrame) {
				return
			}
		case <-sub.Ready():
			for {
				d, ok := sub.Next()
				if !ok {
					break
				}
				if d.Lagged {
					s.logger.Warn(ctx, scribeerrors.NewLaggedError(d.Missed), "Event stream lagged, forcing reload",
						"subscriber", sub.ID().String())
				}
				if !s.writeFrame(w, rc, eventFrame(d)) {
					return
				}
			}
		}
	}
}

func (s *Server) writeFrame(w http.ResponseWriter, rc *http.ResponseController, frame string) bool {
	if _, err := io.WriteString(w, frame); err != nil {
		return false
	}
	return rc.Flush() == nil
}
